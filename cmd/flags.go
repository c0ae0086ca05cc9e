package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/cloudpack/packstore/internal"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "loglevel",
			Usage: "log level: trace/debug/info/warn/error",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "logdir",
			Usage: "write logs to a rotated file under this directory",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "disable colored log output",
		},
	}
}

// storeFlags are shared by every command that opens the store.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "meta",
			Value: "redis://127.0.0.1:6379/1",
			Usage: "metadata store uri (redis://host:port/db or mem://)",
		},
		&cli.StringFlag{
			Name:  "datadir",
			Value: "/packstore/data",
			Usage: "package directory for the posix backend",
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "S3 endpoint; selects the S3 backend when set",
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Value: "us-east-1",
			Usage: "S3 region",
		},
		&cli.StringFlag{
			Name:  "s3-bucket",
			Usage: "S3 bucket holding the packages",
		},
		&cli.StringFlag{
			Name:  "key",
			Usage: "encryption key: 64-char hex or a passphrase (env PACKSTORE_KEY)",
			EnvVars: []string{"PACKSTORE_KEY"},
		},
		&cli.StringFlag{
			Name:  "compression",
			Value: "zstd",
			Usage: "compress blocks with the specified algorithm: none/snappy/zlib/zstd",
		},
		&cli.StringFlag{
			Name:  "encryption",
			Value: "aes256-gcm",
			Usage: "block cipher: aes256-gcm/chacha20-poly1305",
		},
	}
}

func expandFlags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, group := range groups {
		flags = append(flags, group...)
	}
	return flags
}

func setupLogging(c *cli.Context) {
	switch c.String("loglevel") {
	case "trace":
		internal.SetLogLevel(logrus.TraceLevel)
	case "debug":
		internal.SetLogLevel(logrus.DebugLevel)
	case "info":
		internal.SetLogLevel(logrus.InfoLevel)
	case "warn":
		internal.SetLogLevel(logrus.WarnLevel)
	case "error":
		internal.SetLogLevel(logrus.ErrorLevel)
	default:
		internal.SetLogLevel(logrus.InfoLevel)
	}
	if c.Bool("no-color") {
		internal.DisableLogColor()
	}
	if logDir := c.String("logdir"); logDir != "" {
		internal.SetOutFile(logDir + "/packstore.log")
	}
}
