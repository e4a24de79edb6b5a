// Package main is the multiview command line: HTTP service, offline fusion and live capture.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagConfig      = "config"
	flagEnvFile     = "env-file"
	flagStrategy    = "strategy"
	flagDir         = "dir"
	flagJSON        = "json"
	flagInterval    = "interval"
	flagCycles      = "cycles"
	flagConcurrency = "concurrency"
)

func main() {
	app := &cli.App{
		Name:  "multiview",
		Usage: "count drinks seen by several cameras without double counting",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "YAML or TOML configuration file",
				EnvVars: []string{"MULTIVIEW_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:  flagEnvFile,
				Usage: ".env files applied before environment overrides",
				Value: cli.NewStringSlice(".env"),
			},
			&cli.StringFlag{
				Name:  flagStrategy,
				Usage: "fusion strategy: max or geometric (overrides the config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serveAction,
			},
			{
				Name:      "fuse",
				Usage:     "fuse images from disk, one per camera",
				ArgsUsage: "[camera=path ...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagDir,
						Usage: "directory of camera_<id>_<timestamp> captures, fused per timestamp",
					},
					&cli.BoolFlag{
						Name:  flagJSON,
						Usage: "print JSON responses instead of tables",
					},
				},
				Action: fuseAction,
			},
			{
				Name:  "watch",
				Usage: "capture from the configured cameras and print fused counts",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  flagInterval,
						Usage: "time between fusion cycles",
						Value: defaultInterval,
					},
					&cli.IntFlag{
						Name:  flagCycles,
						Usage: "stop after this many cycles, 0 runs until interrupted",
					},
					&cli.IntFlag{
						Name:  flagConcurrency,
						Usage: "parallel detections per cycle, 0 for one per camera",
					},
				},
				Action: watchAction,
			},
			{
				Name:      "counts",
				Usage:     "fuse per-camera counts given as camera:label=n,label=n",
				ArgsUsage: "camera:label=n[,label=n] ...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagJSON,
						Usage: "print a JSON response instead of a table",
					},
				},
				Action: countsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
