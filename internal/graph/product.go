package graph

import (
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/types"
)

// Product exclusively owns its artifacts and rule nodes (§3 "A product
// exclusively owns its nodes; destroying the product destroys them").
type Product struct {
	Name string

	// Project is a weak back-reference.
	Project *Project

	Artifacts map[string]*Artifact // keyed by absolute path
	RuleNodes []*RuleNode

	// ArtifactsByFileTag is the secondary index I6 requires to stay in
	// sync with each artifact's FileTags.
	ArtifactsByFileTag map[types.FileTag]map[string]*Artifact

	// Dependencies lists products whose artifacts this product's rules
	// may draw on via Rule.InputsFromDependencies.
	Dependencies []*Product
}

// NewProduct creates an empty product named name, owned by project.
func NewProduct(project *Project, name string) *Product {
	return &Product{
		Name:               name,
		Project:            project,
		Artifacts:          make(map[string]*Artifact),
		ArtifactsByFileTag: make(map[types.FileTag]map[string]*Artifact),
	}
}

// AddArtifact inserts a into the product, enforcing I3 (no two artifacts
// in one product share a filePath) and registering it with the project's
// file resource registry, which separately enforces I3's cross-product
// rule for generated artifacts. It updates ArtifactsByFileTag (I6).
func (p *Product) AddArtifact(a *Artifact) error {
	if existing, ok := p.Artifacts[a.Path()]; ok {
		loc := types.SourceLocation{FilePath: a.Path()}
		return kerrors.NewConflictError(a.Path(), "artifact in product "+p.Name, loc, "artifact in product "+p.Name, loc)
	}

	if p.Project != nil && p.Project.Registry != nil {
		if err := p.Project.Registry.Insert(a); err != nil {
			return err
		}
	}

	a.Product = p
	p.Artifacts[a.Path()] = a
	for tag := range a.FileTags {
		p.indexByTag(tag, a)
	}
	return nil
}

// RemoveArtifact drops a from the product and every index referencing it.
// Idempotent.
func (p *Product) RemoveArtifact(a *Artifact) {
	if _, ok := p.Artifacts[a.Path()]; !ok {
		return
	}
	delete(p.Artifacts, a.Path())
	for tag := range a.FileTags {
		delete(p.ArtifactsByFileTag[tag], a.Path())
	}
	if p.Project != nil && p.Project.Registry != nil {
		p.Project.Registry.Remove(a)
	}
}

// RetagArtifact updates a's FileTags to newTags, keeping ArtifactsByFileTag
// (I6) in sync. Call this instead of mutating a.FileTags directly whenever
// a is already owned by a product.
func (p *Product) RetagArtifact(a *Artifact, newTags types.TagSet) {
	for tag := range a.FileTags {
		if !newTags.Contains(tag) {
			delete(p.ArtifactsByFileTag[tag], a.Path())
		}
	}
	for tag := range newTags {
		if !a.FileTags.Contains(tag) {
			p.indexByTag(tag, a)
		}
	}
	a.FileTags = newTags.Clone()
}

func (p *Product) indexByTag(tag types.FileTag, a *Artifact) {
	byPath, ok := p.ArtifactsByFileTag[tag]
	if !ok {
		byPath = make(map[string]*Artifact)
		p.ArtifactsByFileTag[tag] = byPath
	}
	byPath[a.Path()] = a
}

// ArtifactsWithTag returns every artifact in the product carrying tag.
func (p *Product) ArtifactsWithTag(tag types.FileTag) []*Artifact {
	byPath := p.ArtifactsByFileTag[tag]
	out := make([]*Artifact, 0, len(byPath))
	for _, a := range byPath {
		out = append(out, a)
	}
	return out
}

// AddRuleNode registers a rule node as owned by the product.
func (p *Product) AddRuleNode(n *RuleNode) {
	n.Product = p
	p.RuleNodes = append(p.RuleNodes, n)
}

// WireTransformer applies a freshly-built transformer's effect on the
// graph: registers it as the owner of each output artifact and, per I1,
// adds every input and explicit dependency as a child of each output so
// "a.transformer.outputs.contains(a) and every artifact in
// a.transformer.inputs is an element of a.children" holds for all a.
func WireTransformer(t *Transformer) {
	for _, out := range t.Outputs {
		out.Transformer = t
		for _, in := range t.Inputs {
			out.AddChild(in)
		}
		for _, dep := range t.ExplicitlyDependsOn {
			out.AddChild(dep)
		}
	}
}
