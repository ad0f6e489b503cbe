package changetrack

// ProductStatus classifies a product's change relative to the stored
// build graph.
type ProductStatus uint8

const (
	Unchanged ProductStatus = iota
	FileListChanged
	Changed
)

func (s ProductStatus) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case FileListChanged:
		return "file list changed"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// ProductDiff is one product's resolve-time diff against its stored
// counterpart: whether its own declared rule/artifact set changed
// (Changed), whether only its wildcard-expanded source set changed
// (FileListChanged), and the names of products it depends on, used to
// propagate Changed status transitively.
type ProductDiff struct {
	Name             string
	RuleSetChanged   bool
	SourceSetChanged bool
	Dependencies     []string
}

// ClassifyProducts assigns each product its own status, then propagates
// Changed to every product that (transitively) depends on a Changed
// product — a dependency's rebuilt outputs can change what a dependent
// product's rules see.
func ClassifyProducts(diffs []ProductDiff) map[string]ProductStatus {
	status := make(map[string]ProductStatus, len(diffs))
	for _, d := range diffs {
		switch {
		case d.RuleSetChanged:
			status[d.Name] = Changed
		case d.SourceSetChanged:
			status[d.Name] = FileListChanged
		default:
			status[d.Name] = Unchanged
		}
	}

	for propagated := true; propagated; {
		propagated = false
		for _, d := range diffs {
			if status[d.Name] == Changed {
				continue
			}
			for _, dep := range d.Dependencies {
				if status[dep] == Changed {
					status[d.Name] = Changed
					propagated = true
					break
				}
			}
		}
	}
	return status
}
