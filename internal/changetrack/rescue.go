package changetrack

import (
	"time"

	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// RescuedArtifact is a generated artifact's data captured before its
// owning transformer is discarded, so it can be reattached if the new
// resolve creates an artifact at the same path.
type RescuedArtifact struct {
	Path         string
	Timestamp    time.Time
	HasTimestamp bool
	FileTags     types.TagSet
	Properties   *graph.PropertyMap
}

// CaptureRescuable snapshots every generated artifact of product before
// its rule nodes are torn down for re-resolve.
func CaptureRescuable(product *graph.Product) map[string]RescuedArtifact {
	out := make(map[string]RescuedArtifact, len(product.Artifacts))
	for path, a := range product.Artifacts {
		if !a.IsGenerated() {
			continue
		}
		ts, hasTS := a.Timestamp()
		out[path] = RescuedArtifact{
			Path:         path,
			Timestamp:    ts,
			HasTimestamp: hasTS,
			FileTags:     a.FileTags.Clone(),
			Properties:   a.Properties,
		}
	}
	return out
}

// Reattach restores a rescued artifact's timestamp and properties onto
// the matching-path artifact of the newly resolved product, if one
// exists. An artifact whose path no longer appears is simply dropped —
// the rule that produced it was removed.
func Reattach(rescued map[string]RescuedArtifact, newProduct *graph.Product) {
	for path, r := range rescued {
		a, ok := newProduct.Artifacts[path]
		if !ok || !a.IsGenerated() {
			continue
		}
		if r.HasTimestamp {
			a.SetTimestamp(r.Timestamp)
		}
		if r.Properties != nil {
			a.Properties = r.Properties
		}
	}
}
