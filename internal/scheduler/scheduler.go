// Package scheduler implements the parallel DAG executor of §4.8: given
// an arbitrary set of jobs with dependency edges, it runs each job once
// every dependency has completed, bounded by a global job-count
// semaphore and per-pool semaphores, honoring dry-run, keep-going, and
// two-stage (soft, then hard) cancellation.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kestrel-build/kestrel/internal/config"
	"github.com/kestrel-build/kestrel/internal/logging"
	"github.com/kestrel-build/kestrel/internal/types"
)

// NodeState is a job's position in the Buildable/Building/Built state
// machine (§4.8), with Failed and Skipped covering keep-going and
// cancellation outcomes.
type NodeState int32

const (
	Buildable NodeState = iota
	Building
	Built
	Failed
	Skipped
)

func (s NodeState) String() string {
	switch s {
	case Buildable:
		return "buildable"
	case Building:
		return "building"
	case Built:
		return "built"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Job is one unit of scheduled work: a rule application plus its
// commands, identified by ID, gated on its DependsOn job IDs completing
// first, and billed against Pool's semaphore if it has one.
type Job struct {
	ID        string
	Pool      types.JobPool
	DependsOn []string
	Run       func(ctx context.Context) error
}

// Result summarizes one Execute call.
type Result struct {
	Failed []string
	Err    error
}

// Scheduler runs a Job set according to BuildOptions. It is reusable
// across Execute calls but not safe to Execute concurrently with itself.
type Scheduler struct {
	maxJobCount      int
	jobLimitsPerPool map[types.JobPool]int
	now              func() time.Time

	// OnTransition, if set, is called (from arbitrary goroutines) every
	// time a job changes state, for progress reporting (§4.11).
	OnTransition func(jobID string, state NodeState)

	mu            sync.Mutex
	cancel        context.CancelFunc
	softCancelled bool
}

// New builds a Scheduler from BuildOptions, defaulting MaxJobCount to
// numCPU when unset.
func New(opts config.BuildOptions, numCPU int) *Scheduler {
	maxJobs := opts.MaxJobCount
	if maxJobs <= 0 {
		maxJobs = numCPU
	}
	if maxJobs <= 0 {
		maxJobs = 1
	}
	return &Scheduler{
		maxJobCount:      maxJobs,
		jobLimitsPerPool: opts.JobLimitsPerPool,
		now:              time.Now,
	}
}

// RequestCancel implements §4.8's soft-then-hard cancellation: the first
// call stops the scheduler from starting any job not already running
// (existing jobs finish normally); a second call cancels the execution
// context outright, which (via context.Context propagation into
// internal/command's process executor) terminates in-flight subprocesses.
func (s *Scheduler) RequestCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.softCancelled {
		s.softCancelled = true
		logging.Infof("build cancellation requested, finishing in-flight jobs")
		return
	}
	if s.cancel != nil {
		logging.Warningf("build cancellation requested again, terminating in-flight jobs")
		s.cancel()
	}
}

func (s *Scheduler) isSoftCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softCancelled
}

// Execute runs jobs to completion, respecting DependsOn edges. When
// keepGoing is false, the first job failure prevents any job that has
// not yet started (including ones with no relation to the failure) from
// starting; when true, only the failed job's dependents are skipped and
// unrelated branches keep running.
func (s *Scheduler) Execute(ctx context.Context, jobs []Job, keepGoing bool) Result {
	if len(jobs) == 0 {
		return Result{}
	}

	execCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.softCancelled = false
	s.mu.Unlock()
	defer cancel()

	byID := make(map[string]Job, len(jobs))
	doneCh := make(map[string]chan struct{}, len(jobs))
	failedFlag := make(map[string]*atomic.Bool, len(jobs))
	starters := make(map[string]*sync.Once, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
		doneCh[j.ID] = make(chan struct{})
		failedFlag[j.ID] = &atomic.Bool{}
		starters[j.ID] = &sync.Once{}
	}

	globalSem := semaphore.NewWeighted(int64(s.maxJobCount))
	var poolMu sync.Mutex
	poolSems := make(map[types.JobPool]*semaphore.Weighted)
	poolSemFor := func(pool types.JobPool) *semaphore.Weighted {
		if pool == types.DefaultJobPool {
			return nil
		}
		poolMu.Lock()
		defer poolMu.Unlock()
		if sem, ok := poolSems[pool]; ok {
			return sem
		}
		limit := s.jobLimitsPerPool[pool]
		if limit <= 0 {
			return nil
		}
		sem := semaphore.NewWeighted(int64(limit))
		poolSems[pool] = sem
		return sem
	}

	var errMu sync.Mutex
	var firstErr error
	var failedIDs []string
	var firstFailureRequiresHalt atomic.Bool

	g, gctx := errgroup.WithContext(execCtx)

	var start func(id string)
	start = func(id string) {
		starters[id].Do(func() {
			g.Go(func() error {
				defer close(doneCh[id])
				job := byID[id]
				s.transition(id, Buildable)

				depFailed := false
				for _, dep := range job.DependsOn {
					start(dep)
					select {
					case <-doneCh[dep]:
					case <-gctx.Done():
						depFailed = true
					}
					if failedFlag[dep].Load() {
						depFailed = true
					}
				}

				if depFailed {
					failedFlag[id].Store(true)
					s.transition(id, Skipped)
					logging.Debugf("skipping job %s: a dependency did not complete", id)
					return nil
				}
				if (!keepGoing && firstFailureRequiresHalt.Load()) || s.isSoftCancelled() || gctx.Err() != nil {
					failedFlag[id].Store(true)
					s.transition(id, Skipped)
					return nil
				}

				if err := globalSem.Acquire(gctx, 1); err != nil {
					failedFlag[id].Store(true)
					s.transition(id, Skipped)
					return nil
				}
				defer globalSem.Release(1)

				if sem := poolSemFor(job.Pool); sem != nil {
					if err := sem.Acquire(gctx, 1); err != nil {
						failedFlag[id].Store(true)
						s.transition(id, Skipped)
						return nil
					}
					defer sem.Release(1)
				}

				s.transition(id, Building)
				runErr := job.Run(gctx)
				if runErr != nil {
					failedFlag[id].Store(true)
					s.transition(id, Failed)
					errMu.Lock()
					if firstErr == nil {
						firstErr = runErr
					}
					failedIDs = append(failedIDs, id)
					errMu.Unlock()
					if !keepGoing {
						firstFailureRequiresHalt.Store(true)
					}
					return nil
				}
				s.transition(id, Built)
				return nil
			})
		})
	}

	for _, j := range jobs {
		start(j.ID)
	}
	_ = g.Wait()

	return Result{Failed: failedIDs, Err: firstErr}
}

func (s *Scheduler) transition(id string, state NodeState) {
	if s.OnTransition != nil {
		s.OnTransition(id, state)
	}
}
