package facade

import (
	"context"
	"fmt"

	"github.com/kestrel-build/kestrel/internal/apply"
	"github.com/kestrel-build/kestrel/internal/command"
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/ruleorder"
	"github.com/kestrel-build/kestrel/internal/scheduler"
	"github.com/kestrel-build/kestrel/internal/script"
)

// CompiledRules is the per-rule compiled-script bundle internal/projectdesc
// hands the façade after parsing a project: the rule-application engine's
// inputs and the command runner's script closures, keyed by the *graph.Rule
// the resolver instantiated rule nodes from.
type CompiledRules struct {
	Apply    map[*graph.Rule]apply.CompiledRule
	Commands map[*graph.Rule]map[int]command.ScriptCommandFunc
}

// ScopeBuilder constructs the script.Scope a rule node's compiled scripts
// run against. internal/projectdesc supplies the real implementation
// (properties resolved from the product's module tree); tests can use a
// bare scope.
type ScopeBuilder func(node *graph.RuleNode, product *graph.Product, project *graph.Project) *script.Scope

// BuildOrchestrator wires internal/apply, internal/command, and
// internal/scheduler together to run the build job of §4.11: reapply
// every out-of-date rule node of the selected products in dependency
// order, running each transformer's commands as it becomes up to date.
type BuildOrchestrator struct {
	Apply     *apply.Engine
	Runner    *command.Runner
	Scheduler *scheduler.Scheduler
	BuildDir  func(product *graph.Product) string
	Scope     ScopeBuilder
}

// Build runs the build job against the named products (all products of
// the current project when names is empty), under f's single-job-per-
// project lock. rules supplies the compiled scripts for every rule
// reachable from the selected products.
func (f *Facade) Build(ctx context.Context, orch *BuildOrchestrator, names []string, rules CompiledRules, keepGoing bool, emitTo Listener) error {
	return f.runJob(BuildJob, emitTo, false, func() error {
		project := f.Project()
		if project == nil {
			return kerrors.NewInternalError("facade: project resolved", "build requested before setup", nil)
		}

		products, err := selectProducts(project, names)
		if err != nil {
			return err
		}

		jobs, err := planBuildJobs(orch, project, products, rules)
		if err != nil {
			return err
		}

		emit(emitTo, Event{Kind: TotalEffortChanged, Job: BuildJob, Total: len(jobs)})

		done := 0
		orch.Scheduler.OnTransition = func(id string, state scheduler.NodeState) {
			if state == scheduler.Built || state == scheduler.Failed || state == scheduler.Skipped {
				done++
				emit(emitTo, Event{Kind: TaskProgress, Job: BuildJob, Done: done, Total: len(jobs)})
			}
		}

		result := orch.Scheduler.Execute(ctx, jobs, keepGoing)
		if result.Err != nil {
			return result.Err
		}
		return nil
	})
}

func selectProducts(project *graph.Project, names []string) ([]*graph.Product, error) {
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
			return nil, kerrors.NewConfigurationError("product", name, productNames(project), nil)
		}
		out = append(out, p)
	}
	return out, nil
}

func productNames(project *graph.Project) []string {
	out := make([]string, 0, len(project.Products))
	for name := range project.Products {
		out = append(out, name)
	}
	return out
}

// planBuildJobs builds one scheduler.Job per rule node of the selected
// products, ordered and cross-linked by each rule's producer/consumer
// relationship (the same relationship internal/ruleorder computes for
// instantiation), so the scheduler never runs a consumer before its
// producer has had a chance to apply.
func planBuildJobs(orch *BuildOrchestrator, project *graph.Project, products []*graph.Product, rules CompiledRules) ([]scheduler.Job, error) {
	var jobs []scheduler.Job

	for _, product := range products {
		productRules := rulesOf(product)
		order, err := ruleorder.Build(productRules).Order(productRules)
		if err != nil {
			return nil, err
		}

		nodesByRule := make(map[*graph.Rule][]*graph.RuleNode)
		for _, node := range product.RuleNodes {
			nodesByRule[node.Rule] = append(nodesByRule[node.Rule], node)
		}

		jobIDsByRule := make(map[*graph.Rule][]string)
		for i, rule := range order {
			nodes := nodesByRule[rule]
			var dependsOn []string
			for _, earlier := range order[:i] {
				if producesFor(earlier, rule) {
					dependsOn = append(dependsOn, jobIDsByRule[earlier]...)
				}
			}

			for j, node := range nodes {
				id := fmt.Sprintf("%s/%s#%d", product.Name, rule.Name, j)
				jobIDsByRule[rule] = append(jobIDsByRule[rule], id)

				node := node
				product := product
				jobs = append(jobs, scheduler.Job{
					ID:        id,
					DependsOn: dependsOn,
					Run: func(ctx context.Context) error {
						return orch.runNode(ctx, node, product, project, rules)
					},
				})
			}
		}
	}

	return jobs, nil
}

func (orch *BuildOrchestrator) runNode(ctx context.Context, node *graph.RuleNode, product *graph.Product, project *graph.Project, rules CompiledRules) error {
	buildDir := ""
	if orch.BuildDir != nil {
		buildDir = orch.BuildDir(product)
	}

	applied, err := orch.Apply.Apply(node, product, project, buildDir, rules.Apply[node.Rule])
	if err != nil {
		return err
	}
	if !applied || node.Transformer == nil {
		return nil
	}

	var scope *script.Scope
	if orch.Scope != nil {
		scope = orch.Scope(node, product, project)
	}
	return orch.Runner.Run(ctx, node.Transformer, scope, rules.Commands[node.Rule])
}

// rulesOf returns the distinct rules a product's already-instantiated
// rule nodes were created from.
func rulesOf(product *graph.Product) []*graph.Rule {
	seen := make(map[*graph.Rule]bool)
	var rules []*graph.Rule
	for _, n := range product.RuleNodes {
		if !seen[n.Rule] {
			seen[n.Rule] = true
			rules = append(rules, n.Rule)
		}
	}
	return rules
}

// producesFor reports whether producer's output tags can satisfy one of
// consumer's input tag sets, the same adjacency rule internal/ruleorder
// uses to build its graph (duplicated here in miniature because the
// executable edge needs the job IDs, not just the rule order).
func producesFor(producer, consumer *graph.Rule) bool {
	wants := consumer.Inputs.Union(consumer.InputsFromDependencies).Union(consumer.ExplicitlyDependsOn)
	for tag := range producer.OutputFileTags {
		if wants.Contains(tag) && !consumer.ExcludedInputs.Contains(tag) {
			return true
		}
	}
	return false
}
