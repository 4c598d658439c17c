package cmd

import (
	"github.com/urfave/cli/v2"
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
			Usage: "directory for log files, stderr when empty",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "disable colors",
		},
	}
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "TOML configuration file",
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "KEY=VALUE file loaded into the environment",
			Value: ".env",
		},
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "block-size",
			Usage: "block length in bytes, or characters with --text (K/M/G suffixes accepted)",
		},
		&cli.StringFlag{
			Name:  "chunk-size",
			Usage: "bytes read and deduplicated at a time (K/M/G suffixes accepted)",
		},
		&cli.BoolFlag{
			Name:  "text",
			Usage: "decode the source as UTF-8 and count blocks in characters",
		},
		&cli.StringFlag{
			Name:  "engine",
			Usage: "dedup engine name",
		},
		&cli.StringFlag{
			Name:  "target-time",
			Usage: "advisory time budget per chunk, e.g. 10s or 500ms",
		},
		&cli.StringFlag{
			Name:  "compression",
			Usage: "compress unique blocks to estimate storage: none/snappy/zlib",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "write the JSON report to this path",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the JSON report instead of the text summary",
		},
		&cli.StringFlag{
			Name:  "meta-addr",
			Usage: "redis address for run history, e.g. 127.0.0.1:6379/1",
		},
		&cli.StringFlag{
			Name:  "upload-endpoint",
			Usage: "S3 endpoint the report is uploaded to",
		},
		&cli.StringFlag{
			Name:  "upload-bucket",
			Usage: "bucket for uploaded reports",
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "endpoint for s3:// sources, AWS when empty",
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Usage: "region for s3:// sources",
		},
		&cli.BoolFlag{
			Name:    "background",
			Aliases: []string{"d"},
			Usage:   "run in background, output goes to --logdir or ~/.blockdedup",
		},
	}
}

func expandFlags(compoundFlags ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, flags_ := range compoundFlags {
		flags = append(flags, flags_...)
	}
	return flags
}
