package facade

import (
	"context"
	"fmt"

	"github.com/kestrel-build/kestrel/internal/clean"
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
)

// Clean runs the clean job of §4.11: remove every generated artifact of
// the named products (all products when names is empty) from disk and
// from the graph, via cleaner. With keepGoing, a removal failure on one
// product does not stop the rest; the job still reports an error overall
// if any removal failed.
func (f *Facade) Clean(ctx context.Context, cleaner *clean.Cleaner, buildRoot string, names []string, keepGoing bool, emitTo Listener) error {
	return f.runJob(CleanJob, emitTo, false, func() error {
		project := f.Project()
		if project == nil {
			return kerrors.NewInternalError("facade: project resolved", "clean requested before setup", nil)
		}
		products, err := selectProducts(project, names)
		if err != nil {
			return err
		}

		emit(emitTo, Event{Kind: TotalEffortChanged, Job: CleanJob, Total: len(products)})

		var failed []string
		for i, product := range products {
			select {
			case <-ctx.Done():
				return kerrors.NewCancelledError("clean")
			default:
			}

			result := cleaner.CleanProduct(product, buildRoot, keepGoing)
			failed = append(failed, result.Failed...)
			emit(emitTo, Event{Kind: TaskProgress, Job: CleanJob, Done: i + 1, Total: len(products)})
			if result.Err != nil {
				return result.Err
			}
		}
		if len(failed) > 0 {
			return kerrors.NewIOError("remove", failed[0], fmt.Errorf("%d artifact(s) could not be removed", len(failed)))
		}
		return nil
	})
}
