package graph

import (
	"bytes"
	"testing"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/types"
	"github.com/stretchr/testify/require"
)

func TestAddArtifactRejectsDuplicatePathWithinProduct(t *testing.T) {
	proj := NewProject("app")
	p := proj.AddProduct("app")

	a1 := NewSourceArtifact("/src/main.cpp")
	require.NoError(t, p.AddArtifact(a1))

	a2 := NewSourceArtifact("/src/main.cpp")
	err := p.AddArtifact(a2)
	require.Error(t, err)
	var conflictErr *kerrors.ConflictError
	require.ErrorAs(t, err, &conflictErr)
}

func TestAddArtifactRejectsDuplicateGeneratedAcrossProducts(t *testing.T) {
	proj := NewProject("app")
	p1 := proj.AddProduct("lib")
	p2 := proj.AddProduct("app")

	out1 := NewGeneratedArtifact("/build/shared.o", nil)
	require.NoError(t, p1.AddArtifact(out1))

	out2 := NewGeneratedArtifact("/build/shared.o", nil)
	err := p2.AddArtifact(out2)
	require.Error(t, err)
}

func TestRetagArtifactKeepsFileTagIndexInSync(t *testing.T) {
	proj := NewProject("app")
	p := proj.AddProduct("app")

	a := NewSourceArtifact("/src/main.cpp")
	a.FileTags = types.NewTagSet("cpp")
	require.NoError(t, p.AddArtifact(a))
	require.Len(t, p.ArtifactsWithTag("cpp"), 1)

	p.RetagArtifact(a, types.NewTagSet("obj"))
	require.Empty(t, p.ArtifactsWithTag("cpp"))
	require.Len(t, p.ArtifactsWithTag("obj"), 1)
}

func TestWireTransformerSatisfiesI1(t *testing.T) {
	proj := NewProject("app")
	p := proj.AddProduct("app")

	in := NewSourceArtifact("/src/main.cpp")
	require.NoError(t, p.AddArtifact(in))

	rule := &Rule{Name: "cxx", OutputFileTags: types.NewTagSet("obj")}
	tr := NewTransformer(rule)
	out := NewGeneratedArtifact("/build/main.o", tr)
	tr.Inputs = []*Artifact{in}
	tr.Outputs = []*Artifact{out}
	require.NoError(t, p.AddArtifact(out))

	WireTransformer(tr)

	require.True(t, tr.ContainsOutput(out))
	require.Contains(t, out.Children, GraphNode(in))
	require.Contains(t, in.Parents, GraphNode(out))
}

func TestCheckAcyclicDetectsCycle(t *testing.T) {
	a := NewSourceArtifact("/a")
	b := NewSourceArtifact("/b")
	a.Children = []GraphNode{b}
	b.Children = []GraphNode{a}

	err := CheckAcyclic([]GraphNode{a})
	require.Error(t, err)
	var cycleErr *kerrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestCheckAcyclicAcceptsSharedNonCyclicNode(t *testing.T) {
	shared := NewSourceArtifact("/shared.h")
	a := NewSourceArtifact("/a.cpp")
	b := NewSourceArtifact("/b.cpp")
	a.Children = []GraphNode{shared}
	b.Children = []GraphNode{shared}

	require.NoError(t, CheckAcyclic([]GraphNode{a, b}))
}

func TestPropertyInternerDeduplicatesByContent(t *testing.T) {
	pi := NewPropertyInterner()
	m1 := pi.Intern(map[string]string{"qbs.optimization": "fast"})
	m2 := pi.Intern(map[string]string{"qbs.optimization": "fast"})
	m3 := pi.Intern(map[string]string{"qbs.optimization": "small"})

	require.Same(t, m1, m2)
	require.NotSame(t, m1, m3)
}

func TestDumpNodeTreeWritesIndentedArtifactNames(t *testing.T) {
	proj := NewProject("app")
	p := proj.AddProduct("app")

	in := NewSourceArtifact("/src/main.cpp")
	require.NoError(t, p.AddArtifact(in))

	rule := &Rule{Name: "cxx"}
	tr := NewTransformer(rule)
	out := NewGeneratedArtifact("/build/main.o", tr)
	tr.Inputs = []*Artifact{in}
	tr.Outputs = []*Artifact{out}
	require.NoError(t, p.AddArtifact(out))
	WireTransformer(tr)

	var buf bytes.Buffer
	require.NoError(t, DumpNodeTree(&buf, []*Product{p}))

	output := buf.String()
	require.Contains(t, output, "main.o")
	require.Contains(t, output, "    main.cpp")
}

func TestRemovedArtifactSentinel(t *testing.T) {
	sentinel := RemovedArtifact("/gone.cpp")
	require.True(t, IsRemovedArtifact(sentinel))

	real := NewSourceArtifact("/here.cpp")
	require.False(t, IsRemovedArtifact(real))
}
