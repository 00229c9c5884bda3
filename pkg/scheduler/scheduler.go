// Package scheduler implements the C6 periodic job runner: a single
// process-wide cooperative scheduler that starts one goroutine per
// registered job and stops them all on shutdown.
//
// Generalizes the teacher's pkg/queue.WorkerPool/Worker — a pool that
// starts N polling workers on goroutines, each looping poll→claim→
// process→sleep until a stop channel closes — into a scheduler that
// runs a small fixed set of named jobs (BrainTick, Wakeup,
// ScheduledTasks) instead of a variable worker count over one session
// queue.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one periodic task. Interval is read once at registration;
// Run is invoked every interval until the scheduler stops. Run should
// itself swallow the errors it can recover from and return only for
// logging purposes — per spec.md §7, "C6 jobs swallow their own errors
// (emitting UI events) to keep the scheduler running."
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// Scheduler starts each registered Job as an independent goroutine on
// a shared executor and stops them together on Stop, mirroring
// WorkerPool's Start/Stop shape applied to jobs instead of session
// workers.
type Scheduler struct {
	jobs     []Job
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler with the given jobs. Jobs are not started
// until Start is called.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, stopCh: make(chan struct{})}
}

// Start launches one goroutine per job. Call it once: there is no guard,
// so each further call launches another goroutine per job.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, job)
	}
}

// Stop signals every job goroutine to stop after its in-flight Run
// completes, and waits for them to exit. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer s.wg.Done()

	log := slog.With("job", job.Name())
	log.Info("scheduler job started", "interval", job.Interval())

	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			log.Info("scheduler job stopping")
			return
		case <-ctx.Done():
			log.Info("scheduler job context cancelled")
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				log.Error("scheduler job run failed", "error", err)
			}
		}
	}
}
