// Package facade implements the external-interface façade of §4.11: the
// four asynchronous job kinds (setup, build, clean, install) the CLI
// (cmd/kestrel) drives, each emitting taskStarted/totalEffortChanged/
// taskProgress/finished events, with at most one job active per project
// and the setup job additionally holding a file lock on the build-graph
// file. The locking shape follows the teacher's internal/indexing lock
// manager (retry-free here: a second request fails immediately rather
// than waiting, per §4.11's "fails immediately with a job in progress
// error").
package facade

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
)

// JobKind is one of the four façade job kinds.
type JobKind int

const (
	SetupJob JobKind = iota
	BuildJob
	CleanJob
	InstallJob
)

func (k JobKind) String() string {
	switch k {
	case SetupJob:
		return "setup"
	case BuildJob:
		return "build"
	case CleanJob:
		return "clean"
	case InstallJob:
		return "install"
	default:
		return "unknown"
	}
}

// EventKind distinguishes the four signal shapes a job emits.
type EventKind int

const (
	TaskStarted EventKind = iota
	TotalEffortChanged
	TaskProgress
	Finished
)

// Event is one façade signal. Only the fields relevant to Kind are
// populated.
type Event struct {
	Kind  EventKind
	Job   JobKind
	Total int
	Done  int

	Success bool
	Err     error
}

// Listener receives job events. It may be called from any goroutine and
// must not block for long, since command execution waits on nothing but
// can be delayed by a slow listener.
type Listener func(Event)

func emit(l Listener, e Event) {
	if l != nil {
		l(e)
	}
}

// jobInProgressError is returned when a second job is requested against a
// project that already has one active (§4.11).
type jobInProgressError struct {
	Active JobKind
}

func (e *jobInProgressError) Error() string {
	return fmt.Sprintf("job in progress: a %s job is already running for this project", e.Active)
}

// LockRelease releases a previously acquired lock.
type LockRelease func()

// projectLock enforces "at most one job active per project" (§4.11). It
// is deliberately non-blocking: a contending request fails immediately
// rather than queuing, matching the spec's stated behavior exactly
// (the teacher's IndexLockManager retries with backoff instead, but
// §4.11 explicitly calls for immediate failure here).
type projectLock struct {
	mu     sync.Mutex
	busy   bool
	active JobKind
}

func (l *projectLock) tryAcquire(kind JobKind) (LockRelease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy {
		return nil, &jobInProgressError{Active: l.active}
	}
	l.busy = true
	l.active = kind
	return func() {
		l.mu.Lock()
		l.busy = false
		l.mu.Unlock()
	}, nil
}

// fileLock is a sibling lock file guaranteeing single-writer access to
// the persisted build graph (§6 "a sibling lock file guarantees
// single-writer access"). It is created with O_EXCL so a second process
// (or a concurrent goroutine holding a stale handle) observes a clear
// conflict rather than silently overwriting the file.
type fileLock struct {
	path string
}

func (f fileLock) acquire() (LockRelease, error) {
	if f.path == "" {
		return func() {}, nil
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, kerrors.NewIOError("lock", f.path, fmt.Errorf("build graph is locked by another process"))
		}
		return nil, kerrors.NewIOError("lock", f.path, err)
	}
	file.Close()
	return func() { os.Remove(f.path) }, nil
}

// Facade orchestrates setup/build/clean/install jobs against one project.
// It owns no I/O of its own beyond the locks; the actual work is done by
// the collaborators passed to each job method.
type Facade struct {
	lock          projectLock
	buildGraphLck fileLock

	mu      sync.RWMutex
	project *graph.Project

	Now func() time.Time
}

// New returns a Facade guarding project, whose persisted build graph
// lives at buildGraphPath (used only to derive the sibling lock file
// path; "" disables the file lock, e.g. for in-memory tests).
func New(project *graph.Project, buildGraphPath string) *Facade {
	lockPath := ""
	if buildGraphPath != "" {
		lockPath = buildGraphPath + ".lock"
	}
	return &Facade{
		buildGraphLck: fileLock{path: lockPath},
		project:       project,
		Now:           time.Now,
	}
}

// Project returns the façade's current project snapshot.
func (f *Facade) Project() *graph.Project {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.project
}

func (f *Facade) setProject(p *graph.Project) {
	f.mu.Lock()
	f.project = p
	f.mu.Unlock()
}

// runJob is the shared job envelope: acquire the project lock (and,
// for setup, the build-graph file lock), emit taskStarted, run work,
// emit exactly one finished event, and release the locks in reverse
// order (§4.11).
func (f *Facade) runJob(kind JobKind, emitTo Listener, needsBuildGraphLock bool, work func() error) error {
	release, err := f.lock.tryAcquire(kind)
	if err != nil {
		return err
	}
	defer release()

	if needsBuildGraphLock {
		releaseFile, err := f.buildGraphLck.acquire()
		if err != nil {
			return err
		}
		defer releaseFile()
	}

	emit(emitTo, Event{Kind: TaskStarted, Job: kind})
	err = work()
	emit(emitTo, Event{Kind: Finished, Job: kind, Success: err == nil, Err: err})
	return err
}

// Resolver produces a fresh *graph.Project from a project description
// (§6 "Resolver produces a TopLevelProject"). internal/projectdesc is
// the in-repo implementation; tests substitute a closure.
type Resolver interface {
	Resolve(ctx context.Context) (*graph.Project, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(ctx context.Context) (*graph.Project, error)

func (f ResolverFunc) Resolve(ctx context.Context) (*graph.Project, error) { return f(ctx) }

// Setup runs the setup job: resolve the project description and install
// the result as the façade's current project, under the build-graph file
// lock (§4.11 "the setup job additionally acquires a file lock on the
// build-graph file to prevent concurrent writers").
func (f *Facade) Setup(ctx context.Context, resolver Resolver, emitTo Listener) error {
	return f.runJob(SetupJob, emitTo, true, func() error {
		emit(emitTo, Event{Kind: TotalEffortChanged, Job: SetupJob, Total: 1})
		project, err := resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		f.setProject(project)
		emit(emitTo, Event{Kind: TaskProgress, Job: SetupJob, Done: 1, Total: 1})
		return nil
	})
}
