package ruleorder

import (
	"testing"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
	"github.com/stretchr/testify/require"
)

func TestOrderPlacesProducersBeforeConsumers(t *testing.T) {
	compile := &graph.Rule{
		Name:           "compile",
		Inputs:         types.NewTagSet("cpp"),
		OutputFileTags: types.NewTagSet("obj"),
	}
	link := &graph.Rule{
		Name:           "link",
		Inputs:         types.NewTagSet("obj"),
		OutputFileTags: types.NewTagSet("application"),
	}

	g := Build([]*graph.Rule{compile, link})
	roots := g.Roots(types.NewTagSet("application"))
	require.Len(t, roots, 1)
	require.Equal(t, "link", roots[0].Name)

	order, err := g.Order(roots)
	require.NoError(t, err)
	require.Equal(t, []*graph.Rule{compile, link}, order)
}

func TestOrderDetectsCycle(t *testing.T) {
	a := &graph.Rule{Name: "a", Inputs: types.NewTagSet("y"), OutputFileTags: types.NewTagSet("x")}
	b := &graph.Rule{Name: "b", Inputs: types.NewTagSet("x"), OutputFileTags: types.NewTagSet("y")}

	g := Build([]*graph.Rule{a, b})
	_, err := g.Order([]*graph.Rule{a})
	require.Error(t, err)
	var cycleErr *kerrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestExcludedInputsSuppressesEdge(t *testing.T) {
	producer := &graph.Rule{Name: "gen", OutputFileTags: types.NewTagSet("header")}
	consumer := &graph.Rule{
		Name:           "compile",
		Inputs:         types.NewTagSet("header"),
		ExcludedInputs: types.NewTagSet("header"),
		OutputFileTags: types.NewTagSet("obj"),
	}

	g := Build([]*graph.Rule{producer, consumer})
	require.Empty(t, g.producers[consumer])
}

func TestInstantiateRegistersRuleNodesWithProduct(t *testing.T) {
	proj := graph.NewProject("app")
	p := proj.AddProduct("app")

	compile := &graph.Rule{Name: "compile", OutputFileTags: types.NewTagSet("obj")}
	link := &graph.Rule{Name: "link", Inputs: types.NewTagSet("obj"), OutputFileTags: types.NewTagSet("application")}

	layout, err := Instantiate(p, []*graph.Rule{compile, link}, types.NewTagSet("application"))
	require.NoError(t, err)
	require.Len(t, layout.Roots, 1)
	require.Len(t, layout.Order, 2)
	require.Len(t, p.RuleNodes, 2)
}
