package main

import (
	"os"

	"github.com/urfave/cli/v2"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
)

var dumpNodesCommand = &cli.Command{
	Name:      "dump-nodes",
	Usage:     "print the resolved build graph's node tree for the named products, or all of them",
	ArgsUsage: "[product...]",
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		ctx, cancel := cancelOnSignal()
		defer cancel()

		_, project, err := ensureResolved(ctx, rt)
		if err != nil {
			return err
		}

		products, err := selectedProducts(project, c.Args().Slice())
		if err != nil {
			return err
		}
		return graph.DumpNodeTree(os.Stdout, products)
	},
}

func selectedProducts(project *graph.Project, names []string) ([]*graph.Product, error) {
	if len(names) == 0 {
		out := make([]*graph.Product, 0, len(project.Products))
		for _, p := range project.Products {
			out = append(out, p)
		}
		return out, nil
	}
	out := make([]*graph.Product, 0, len(names))
	for _, name := range names {
		p, ok := project.Products[name]
		if !ok {
			return nil, kerrors.NewConfigurationError("product", name, productNamesOf(project), nil)
		}
		out = append(out, p)
	}
	return out, nil
}
