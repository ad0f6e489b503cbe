package main

import (
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:                   "kestrel",
		Usage:                  "declarative, incremental build engine",
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "project file to resolve",
				Value: "project.kdl",
			},
			&cli.StringFlag{
				Name:  "build-directory",
				Usage: "root directory build outputs are written under",
				Value: "build",
			},
			&cli.StringFlag{
				Name:  "settings-dir",
				Usage: "directory holding settings.toml and named profiles",
				Value: ".kestrel",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "named build profile (defaults to settings' default_profile)",
			},
			&cli.IntFlag{
				Name:  "jobs",
				Usage: "maximum concurrent commands (0 = auto-detect)",
			},
			&cli.BoolFlag{
				Name:  "keep-going",
				Usage: "continue building independent branches after a failure",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "report what would run without executing or writing anything",
			},
			&cli.BoolFlag{
				Name:  "force-probe-execution",
				Usage: "force re-evaluation of resolve-time probes",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "error, warning, info, debug, or trace",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "log-time",
				Usage: "prefix log lines with elapsed time",
			},
			&cli.BoolFlag{
				Name:  "show-command-lines",
				Usage: "echo full command lines instead of a one-line summary",
			},
			&cli.StringSliceFlag{
				Name:  "changed-files",
				Usage: "treat these paths as changed regardless of their on-disk timestamp",
			},
			&cli.StringSliceFlag{
				Name:  "files-to-consider",
				Usage: "restrict staleness checks to these paths",
			},
			&cli.BoolFlag{
				Name:  "all-file-tags",
				Usage: "instantiate every declared rule, not just those reachable from each product's active file tags",
			},
		},
		Commands: []*cli.Command{
			resolveCommand,
			buildCommand,
			cleanCommand,
			installCommand,
			runCommand,
			shellCommand,
			statusCommand,
			dumpNodesCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(fatal(err))
	}
}
