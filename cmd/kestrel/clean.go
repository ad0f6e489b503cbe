package main

import (
	"github.com/urfave/cli/v2"

	"github.com/kestrel-build/kestrel/internal/clean"
)

var cleanCommand = &cli.Command{
	Name:      "clean",
	Usage:     "remove generated artifacts of the named products, or all of them",
	ArgsUsage: "[product...]",
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		ctx, cancel := cancelOnSignal()
		defer cancel()

		f, _, err := ensureResolved(ctx, rt)
		if err != nil {
			return err
		}

		cleaner := clean.New(clean.NewOSFileSystem())
		return f.Clean(ctx, cleaner, rt.BuildDir, c.Args().Slice(), rt.BuildOptions.KeepGoing, logListener("clean"))
	},
}
