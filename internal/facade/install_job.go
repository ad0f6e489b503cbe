package facade

import (
	"context"
	"io"
	"os"
	"path/filepath"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
)

// installDirProperty is the module property an artifact's resolved
// properties carry when it is marked for installation: its value is the
// destination directory, relative to installRoot.
const installDirProperty = "installDir"

// Installer copies generated artifacts flagged with installDirProperty
// to their installRoot-relative destination (the "installArtifacts"
// build option, §4.8). It is a thin os.* wrapper rather than an
// interface: unlike internal/clean, no test in this package needs to
// fake partial filesystem failures, so the extra seam isn't worth it.
type Installer struct {
	InstallRoot string
}

// Install runs the install job of §4.11: copy every generated artifact
// of the named products (all products when names is empty) that carries
// an installDir property to <installRoot>/<installDir>/<basename>.
func (f *Facade) Install(ctx context.Context, installer *Installer, names []string, emitTo Listener) error {
	return f.runJob(InstallJob, emitTo, false, func() error {
		project := f.Project()
		if project == nil {
			return kerrors.NewInternalError("facade: project resolved", "install requested before setup", nil)
		}
		products, err := selectProducts(project, names)
		if err != nil {
			return err
		}

		var targets []*graph.Artifact
		for _, product := range products {
			for _, a := range product.Artifacts {
				if !a.IsGenerated() || a.Properties == nil {
					continue
				}
				if _, ok := a.Properties.Get(installDirProperty); ok {
					targets = append(targets, a)
				}
			}
		}

		emit(emitTo, Event{Kind: TotalEffortChanged, Job: InstallJob, Total: len(targets)})

		for i, a := range targets {
			select {
			case <-ctx.Done():
				return kerrors.NewCancelledError("install")
			default:
			}
			if err := installer.installOne(a); err != nil {
				return err
			}
			emit(emitTo, Event{Kind: TaskProgress, Job: InstallJob, Done: i + 1, Total: len(targets)})
		}
		return nil
	})
}

func (installer *Installer) installOne(a *graph.Artifact) error {
	dir, _ := a.Properties.Get(installDirProperty)
	destDir := filepath.Join(installer.InstallRoot, dir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return kerrors.NewIOError("mkdir", destDir, err)
	}
	dest := filepath.Join(destDir, filepath.Base(a.Path()))
	return copyFile(a.Path(), dest)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return kerrors.NewIOError("open", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return kerrors.NewIOError("create", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return kerrors.NewIOError("copy", dest, err)
	}
	if err := out.Close(); err != nil {
		return kerrors.NewIOError("close", dest, err)
	}
	return nil
}
