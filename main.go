package main

import (
	"os"

	"github.com/cloudpack/packstore/cmd"
	"github.com/cloudpack/packstore/internal"
)

var logger = internal.GetLogger("packstore_main")

func main() {
	if err := cmd.Main(os.Args); err != nil {
		logger.Fatal(err)
	}
}
