// Package ruleorder builds the per-product rule graph of §4.4: a directed
// graph over a product's declared Rules (not yet instantiated as rule
// nodes), used to find root rules and a valid instantiation order before
// the rule-application engine (internal/apply) takes over.
package ruleorder

import (
	"fmt"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// RuleGraph is the producer/consumer adjacency over one product's rules.
type RuleGraph struct {
	rules     []*graph.Rule
	producers map[*graph.Rule][]*graph.Rule // consumer -> rules it depends on
}

// Build computes the rule graph for rules: an edge runs from a producing
// rule A to a consuming rule B when any of A's output tags appears in
// B's inputs, inputsFromDependencies, or explicitlyDependsOn tag sets,
// and A's outputs are not entirely excluded by B.excludedInputs.
func Build(rules []*graph.Rule) *RuleGraph {
	g := &RuleGraph{rules: rules, producers: make(map[*graph.Rule][]*graph.Rule)}
	for _, consumer := range rules {
		consumerWants := consumer.Inputs.
			Union(consumer.InputsFromDependencies).
			Union(consumer.ExplicitlyDependsOn)
		for _, producer := range rules {
			if producer == consumer {
				continue
			}
			if producesFor(producer, consumerWants, consumer.ExcludedInputs) {
				g.producers[consumer] = append(g.producers[consumer], producer)
			}
		}
	}
	return g
}

func producesFor(producer *graph.Rule, wants, excluded types.TagSet) bool {
	for tag := range producer.OutputFileTags {
		if wants.Contains(tag) && !excluded.Contains(tag) {
			return true
		}
	}
	return false
}

// Roots returns the rules whose output tags intersect productFileTags —
// the product's own top-level target tags (§4.4).
func (g *RuleGraph) Roots(productFileTags types.TagSet) []*graph.Rule {
	var roots []*graph.Rule
	for _, r := range g.rules {
		for tag := range r.OutputFileTags {
			if productFileTags.Contains(tag) {
				roots = append(roots, r)
				break
			}
		}
	}
	return roots
}

// Order performs a DFS from roots through each consumer's producers,
// returning rules in an order where every rule appears after all rules it
// depends on (a valid instantiation order for internal/apply). A cycle
// among the rules is reported as a CycleError naming every participant.
func (g *RuleGraph) Order(roots []*graph.Rule) ([]*graph.Rule, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[*graph.Rule]int)
	var order []*graph.Rule
	var stack []string

	var visit func(r *graph.Rule) error
	visit = func(r *graph.Rule) error {
		switch state[r] {
		case done:
			return nil
		case visiting:
			participants := make([]kerrors.CycleParticipant, 0, len(stack)+1)
			for _, name := range stack {
				participants = append(participants, kerrors.CycleParticipant{Description: name})
			}
			participants = append(participants, kerrors.CycleParticipant{Description: ruleName(r)})
			return kerrors.NewCycleError(participants)
		}

		state[r] = visiting
		stack = append(stack, ruleName(r))
		for _, producer := range g.producers[r] {
			if err := visit(producer); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[r] = done
		order = append(order, r)
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func ruleName(r *graph.Rule) string {
	if r.Name == "" {
		return fmt.Sprintf("rule@%p", r)
	}
	return r.Name
}

// Layout is the result of instantiating a product's rule graph: the
// roots (product-level targets) and a full topological order, both
// expressed as rule nodes newly registered with product.
type Layout struct {
	Roots []*graph.RuleNode
	Order []*graph.RuleNode
}

// Instantiate builds the rule graph over rules, finds its roots against
// productFileTags, computes a topological order, and creates one
// *graph.RuleNode per rule in that order, registered with product.
func Instantiate(product *graph.Product, rules []*graph.Rule, productFileTags types.TagSet) (*Layout, error) {
	return InstantiateWithOptions(product, rules, productFileTags, false)
}

// InstantiateWithOptions is Instantiate, plus allFileTags (the
// activeFileTagsOnly build option inverted): when true every declared
// rule is instantiated as its own root regardless of whether its output
// tags intersect productFileTags, rather than only the rules reachable
// from the product's own top-level tags.
func InstantiateWithOptions(product *graph.Product, rules []*graph.Rule, productFileTags types.TagSet, allFileTags bool) (*Layout, error) {
	g := Build(rules)
	roots := g.Roots(productFileTags)
	if allFileTags {
		roots = rules
	}
	order, err := g.Order(roots)
	if err != nil {
		return nil, err
	}

	nodesByRule := make(map[*graph.Rule]*graph.RuleNode, len(order))
	layout := &Layout{}
	for _, r := range order {
		n := graph.NewRuleNode(product, r)
		product.AddRuleNode(n)
		nodesByRule[r] = n
		layout.Order = append(layout.Order, n)
	}
	for _, r := range roots {
		if n, ok := nodesByRule[r]; ok {
			layout.Roots = append(layout.Roots, n)
		}
	}
	return layout, nil
}
