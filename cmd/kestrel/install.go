package main

import (
	"github.com/urfave/cli/v2"

	"github.com/kestrel-build/kestrel/internal/facade"
)

var installCommand = &cli.Command{
	Name:      "install",
	Usage:     "copy installable artifacts of the named products to --install-root",
	ArgsUsage: "[product...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "install-root",
			Usage: "destination root directory for installed artifacts",
			Value: "install",
		},
	},
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

		installer := &facade.Installer{InstallRoot: c.String("install-root")}
		return f.Install(ctx, installer, c.Args().Slice(), logListener("install"))
	},
}
