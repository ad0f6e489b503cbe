package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/facade"
	"github.com/kestrel-build/kestrel/internal/graph"
)

func productNamesOf(project *graph.Project) []string {
	out := make([]string, 0, len(project.Products))
	for name := range project.Products {
		out = append(out, name)
	}
	return out
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "build a product and spawn its executable",
	ArgsUsage: "<product> [arg...]",
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		args := c.Args().Slice()
		if len(args) == 0 {
			return kerrors.NewConfigurationError("product", "", nil, fmt.Errorf("run requires a product name"))
		}
		productName, passthrough := args[0], args[1:]

		ctx, cancel := cancelOnSignal()
		defer cancel()

		project, err := runBuild(ctx, rt, []string{productName})
		if err != nil {
			return err
		}
		product, ok := project.Products[productName]
		if !ok {
			return kerrors.NewConfigurationError("product", productName, productNamesOf(project), nil)
		}

		runEnv := facade.NewRunEnvironment(product, nil, envMap(os.Environ()))
		result, err := runEnv.RunTarget(ctx, "", passthrough)
		if err != nil {
			return err
		}
		os.Stdout.Write(result.Stdout)
		os.Stderr.Write(result.Stderr)
		if result.ExitCode != 0 {
			return kerrors.NewIOError("run", productName, fmt.Errorf("exited with status %d", result.ExitCode))
		}
		return nil
	},
}

var shellCommand = &cli.Command{
	Name:      "shell",
	Usage:     "build a product and open an interactive shell with its run environment",
	ArgsUsage: "<product>",
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		args := c.Args().Slice()
		if len(args) == 0 {
			return kerrors.NewConfigurationError("product", "", nil, fmt.Errorf("shell requires a product name"))
		}
		productName := args[0]

		ctx, cancel := cancelOnSignal()
		defer cancel()

		project, err := runBuild(ctx, rt, []string{productName})
		if err != nil {
			return err
		}
		product, ok := project.Products[productName]
		if !ok {
			return kerrors.NewConfigurationError("product", productName, productNamesOf(project), nil)
		}

		runEnv := facade.NewRunEnvironment(product, nil, envMap(os.Environ()))
		result, err := runEnv.RunShell(ctx, "", rt.BuildDir)
		if err != nil {
			return err
		}
		os.Stdout.Write(result.Stdout)
		os.Stderr.Write(result.Stderr)
		return nil
	},
}

func envMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
