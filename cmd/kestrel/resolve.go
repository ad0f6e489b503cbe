package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/urfave/cli/v2"

	"github.com/kestrel-build/kestrel/internal/buildgraph"
	"github.com/kestrel-build/kestrel/internal/changetrack"
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/facade"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/logging"
	"github.com/kestrel-build/kestrel/internal/projectdesc"
)

var resolveCommand = &cli.Command{
	Name:  "resolve",
	Usage: "resolve the project file into a build graph and persist it",
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		ctx, cancel := cancelOnSignal()
		defer cancel()
		_, _, err = runSetup(ctx, rt)
		return err
	},
}

// runSetup is the one place that runs the setup job and persists a fresh
// buildgraph.Snapshot: every other command that needs a resolved project
// (build, clean, install, run, shell, dump-nodes) calls this rather than
// duplicating the resolve-then-save sequence. It returns the resolver
// alongside the facade since the resolver is the only place the compiled
// rule scripts (needed by the build job) live after a resolve.
func runSetup(ctx context.Context, rt *runtime) (*facade.Facade, *projectdesc.FSResolver, error) {
	if err := os.MkdirAll(rt.BuildDir, 0o755); err != nil {
		return nil, nil, err
	}

	old, pool, err := buildgraph.LoadWithGraph(rt.BuildGraphPath, rt.ConfigSnapshot)
	if err != nil {
		var loadErr *kerrors.BuildGraphLoadError
		if !errors.As(err, &loadErr) || (loadErr.SubKind != kerrors.NoBuildGraph && loadErr.SubKind != kerrors.SchemaMismatch) {
			return nil, nil, err
		}
		old, pool = buildgraph.Snapshot{}, nil
	}

	f := facade.New(nil, rt.BuildGraphPath)
	resolver := newResolver(rt)

	start := time.Now()
	err = f.Setup(ctx, resolver, func(e facade.Event) {
		if e.Kind == facade.TaskStarted {
			fmt.Fprintln(os.Stderr, "kestrel: resolving "+rt.ProjectFile)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	project := f.Project()

	current := storedProducts(project, rt.ProjectFile)
	needsFull, reason := old.FullResolveCheck(
		0, 0,
		environmentSnapshot(rt), nil,
		changetrack.ProbeSnapshot{}, false,
		productResolveChecks(old.Products, current),
	).NeedsFullResolve()
	if needsFull {
		logging.Debugf("full resolve: %s", reason)
	}

	status := changetrack.ClassifyProducts(productDiffs(old.Products, current, project))
	var stale []string
	if pool != nil {
		for name, product := range project.Products {
			id, ok := old.ProductGraphs[name]
			if !ok {
				continue
			}
			_, nodes, err := buildgraph.LoadProductGraph(pool, id)
			if err != nil {
				continue
			}
			stale = append(stale, staleOutputs(product, nodes)...)
			if needsFull || status[name] == changetrack.Changed {
				continue
			}
			if err := buildgraph.Reattach(product, nodes); err != nil {
				logging.Debugf("product %s: could not reattach stored state: %v", name, err)
			}
		}
	}
	rt.staleArtifacts = stale
	rt.resolveStart, rt.resolveEnd = start, time.Now()

	if err := saveGraph(rt, project); err != nil {
		return nil, nil, err
	}
	return f, resolver, nil
}

// saveGraph rebuilds a buildgraph.Snapshot from project's current state
// and persists it via buildgraph.SaveWithGraph. runSetup calls this once
// right after resolving; runBuild calls it again once the build job
// finishes, so LastApplicationTime/transformer state produced by the
// build itself also survives to the next process invocation.
func saveGraph(rt *runtime, project *graph.Project) error {
	snap := buildgraph.Snapshot{
		Environment:          environmentSnapshot(rt),
		Products:             storedProducts(project, rt.ProjectFile),
		LastStartResolveTime: rt.resolveStart,
		LastEndResolveTime:   rt.resolveEnd,
		Dependencies:         dependencySnapshots(project),
	}
	return buildgraph.SaveWithGraph(rt.BuildGraphPath, snap, project, rt.ConfigSnapshot)
}

func environmentSnapshot(rt *runtime) map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || rt.Settings.IsEnvIgnored(k) {
			continue
		}
		env[k] = v
	}
	return env
}

// storedProducts captures each product's change-tracking fingerprint: the
// project file's own mtime (every product in a single-file KDL project is
// redefined whenever that file changes) and the sorted set of non-generated
// source artifacts the product currently resolves to, which is what a
// wildcard glob picking up or dropping a file actually changes.
func storedProducts(project *graph.Project, projectFile string) []buildgraph.StoredProduct {
	var definingModTime time.Time
	if info, err := os.Stat(projectFile); err == nil {
		definingModTime = info.ModTime()
	}

	names := make([]string, 0, len(project.Products))
	for name := range project.Products {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]buildgraph.StoredProduct, 0, len(names))
	for _, name := range names {
		out = append(out, buildgraph.StoredProduct{
			Name:                name,
			DefiningFileModTime: definingModTime,
			WildcardSources:     sourcePaths(project.Products[name]),
		})
	}
	return out
}

func sourcePaths(product *graph.Product) []string {
	paths := make([]string, 0, len(product.Artifacts))
	for path, a := range product.Artifacts {
		if !a.IsGenerated() {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

func storedProductByName(products []buildgraph.StoredProduct, name string) (buildgraph.StoredProduct, bool) {
	for _, p := range products {
		if p.Name == name {
			return p, true
		}
	}
	return buildgraph.StoredProduct{}, false
}

func productResolveChecks(old, current []buildgraph.StoredProduct) []changetrack.ProductResolveCheck {
	checks := make([]changetrack.ProductResolveCheck, 0, len(old)+len(current))
	for _, c := range current {
		stored, existed := storedProductByName(old, c.Name)
		check := changetrack.ProductResolveCheck{
			Name:                  c.Name,
			DefiningFileModTime:   c.DefiningFileModTime,
			WildcardSources:       c.WildcardSources,
			StoredWildcardSources: c.WildcardSources,
		}
		if existed {
			check.StoredWildcardSources = stored.WildcardSources
		} else {
			check.PreviouslyMissingNowExists = true
		}
		checks = append(checks, check)
	}
	for _, o := range old {
		if _, stillPresent := storedProductByName(current, o.Name); !stillPresent {
			checks = append(checks, changetrack.ProductResolveCheck{Name: o.Name, Removed: true})
		}
	}
	return checks
}

func productDiffs(old []buildgraph.StoredProduct, current []buildgraph.StoredProduct, project *graph.Project) []changetrack.ProductDiff {
	diffs := make([]changetrack.ProductDiff, 0, len(current))
	for name, product := range project.Products {
		stored, existed := storedProductByName(old, name)
		deps := make([]string, 0, len(product.Dependencies))
		for _, d := range product.Dependencies {
			deps = append(deps, d.Name)
		}
		curr, _ := storedProductByName(current, name)
		diffs = append(diffs, changetrack.ProductDiff{
			Name:             name,
			RuleSetChanged:   !existed,
			SourceSetChanged: existed && !equalSourceSets(curr.WildcardSources, stored.WildcardSources),
			Dependencies:     deps,
		})
	}
	return diffs
}

func equalSourceSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// staleOutputs returns every output path a previous build recorded for
// product's rule nodes that the freshly resolved product no longer
// produces as a generated artifact, for --remove-stale-artifacts.
func staleOutputs(product *graph.Product, nodes []buildgraph.StoredRuleNode) []string {
	var out []string
	for _, n := range nodes {
		if !n.HasTransformer {
			continue
		}
		for _, o := range n.Transformer.Outputs {
			if a, ok := product.Artifacts[o.Path]; ok && a.IsGenerated() {
				continue
			}
			out = append(out, o.Path)
		}
	}
	return out
}

// dependencySnapshots captures every transformer's current
// changetrack.DependencySnapshot, keyed by its primary output artifact's
// path, so the next process's Snapshot.UpToDate can compare against it.
func dependencySnapshots(project *graph.Project) map[string]changetrack.DependencySnapshot {
	out := make(map[string]changetrack.DependencySnapshot)
	for _, product := range project.Products {
		for _, node := range product.RuleNodes {
			t := node.Transformer
			if t == nil || len(t.Outputs) == 0 {
				continue
			}
			out[t.Outputs[0].Path()] = importedFileSnapshot(t)
		}
	}
	return out
}

// importedFileSnapshot hashes every script file a transformer's
// prepare/command scripts imported, the one dependency kind of §4.7 a
// resolve can capture without re-evaluating the scripts themselves.
func importedFileSnapshot(t *graph.Transformer) changetrack.DependencySnapshot {
	files := make(map[string]struct{}, len(t.ImportedFilesUsedInPrepareScript)+len(t.ImportedFilesUsedInCommands))
	for _, f := range t.ImportedFilesUsedInPrepareScript {
		files[f] = struct{}{}
	}
	for _, f := range t.ImportedFilesUsedInCommands {
		files[f] = struct{}{}
	}
	hashes := make(map[string]uint64, len(files))
	for f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		hashes[f] = xxhash.Sum64(data)
	}
	return changetrack.DependencySnapshot{ImportedFileHashes: hashes}
}
