package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kestrel-build/kestrel/internal/buildgraph"
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
)

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "report the build graph's presence and per-product summary",
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}

		fmt.Printf("project file:  %s\n", rt.ProjectFile)
		fmt.Printf("project id:    %s\n", rt.ProjectID)
		fmt.Printf("build dir:     %s\n", rt.BuildDir)

		snap, err := buildgraph.Load(rt.BuildGraphPath, rt.ConfigSnapshot)
		var loadErr *kerrors.BuildGraphLoadError
		switch {
		case err == nil:
			fmt.Println("build graph:   present")
			fmt.Printf("last resolve:  %s -> %s\n", snap.LastStartResolveTime.Format("2006-01-02 15:04:05"), snap.LastEndResolveTime.Format("2006-01-02 15:04:05"))
			fmt.Printf("products:      %d\n", len(snap.Products))
			for _, p := range snap.Products {
				fmt.Printf("  - %s\n", p.Name)
			}
			return nil
		case errors.As(err, &loadErr) && loadErr.SubKind == kerrors.NoBuildGraph:
			fmt.Println("build graph:   none (never resolved)")
			return nil
		case errors.As(err, &loadErr) && loadErr.SubKind == kerrors.SchemaMismatch:
			fmt.Println("build graph:   stale (configuration changed since last resolve)")
			return nil
		default:
			fmt.Fprintln(os.Stderr, "kestrel: build graph at "+rt.BuildGraphPath+" is unreadable")
			return err
		}
	},
}
