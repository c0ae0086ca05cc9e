package internal

import "fmt"

var (
	version      = "0.3.0"
	revision     = "unknown"
	revisionDate = "unknown"
)

// Version returns the full version string reported by the CLI.
func Version() string {
	return fmt.Sprintf("%s (%s %s)", version, revisionDate, revision)
}
