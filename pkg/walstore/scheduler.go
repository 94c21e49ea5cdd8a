package walstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/recdb/pkg/metrics"
)

// Scheduler runs a task once after a waiting time, per key.
//
// While a job for key is waiting, further registrations for the same key are
// absorbed by it. A job stops absorbing registrations once it starts running;
// the next registration then creates a new job.
type Scheduler interface {
	Register(key string, wait time.Duration, task func()) error
}

// DeferredScheduler runs deferred tasks on one background worker, so tasks
// never overlap. Use [DeferredScheduler.Shutdown] to run waiting jobs
// immediately and stop the worker.
type DeferredScheduler struct {
	log logrus.FieldLogger

	mu     sync.Mutex
	jobs   map[string]*deferredJob
	closed bool

	queue    chan queuedJob
	inflight sync.WaitGroup
	done     chan struct{}
}

type deferredJob struct {
	key   string
	timer *time.Timer
	task  func()
}

type queuedJob struct {
	job     *deferredJob
	trigger string
}

// NewDeferredScheduler starts the worker. A nil log uses the logrus standard
// logger.
func NewDeferredScheduler(log logrus.FieldLogger) *DeferredScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &DeferredScheduler{
		log:   log.WithField("component", "scheduler"),
		jobs:  make(map[string]*deferredJob),
		queue: make(chan queuedJob, 16),
		done:  make(chan struct{}),
	}

	go s.work()

	return s
}

// Register schedules task to run after wait unless a job for key is already
// waiting. Returns [ErrSchedulerClosed] once Shutdown started.
func (s *DeferredScheduler) Register(key string, wait time.Duration, task func()) error {
	if wait <= 0 {
		return fmt.Errorf("walstore: waiting time must be positive, got %s", wait)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}

	if _, ok := s.jobs[key]; ok {
		metrics.SchedulerJobsCoalescedTotal.Inc()

		return nil
	}

	job := &deferredJob{key: key, task: task}
	s.jobs[key] = job
	s.inflight.Add(1)

	job.timer = time.AfterFunc(wait, func() {
		s.queue <- queuedJob{job: job, trigger: metrics.TriggerTimer}
	})

	metrics.SchedulerJobsScheduledTotal.Inc()
	metrics.SchedulerPendingJobs.Set(float64(len(s.jobs)))

	return nil
}

// Pending returns the number of jobs waiting for their timer.
func (s *DeferredScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.jobs)
}

// Shutdown stops accepting registrations, runs every waiting job now and
// waits until all jobs finished. Jobs whose timer already fired are allowed to
// complete. Returns ctx's error if ctx ends first; the worker keeps draining
// in that case. Calling Shutdown again waits for the same drain.
func (s *DeferredScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return s.waitDone(ctx)
	}

	s.closed = true

	var early []*deferredJob

	for _, job := range s.jobs {
		if job.timer.Stop() {
			early = append(early, job)
		}
	}

	s.mu.Unlock()

	s.log.WithField("jobs", len(early)).Debug("shutting down, running waiting jobs")

	for _, job := range early {
		s.queue <- queuedJob{job: job, trigger: metrics.TriggerShutdown}
	}

	go func() {
		s.inflight.Wait()
		close(s.queue)
	}()

	return s.waitDone(ctx)
}

func (s *DeferredScheduler) waitDone(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", context.Cause(ctx))
	}
}

func (s *DeferredScheduler) work() {
	defer close(s.done)

	for q := range s.queue {
		s.run(q)
	}
}

func (s *DeferredScheduler) run(q queuedJob) {
	defer s.inflight.Done()

	s.mu.Lock()
	if s.jobs[q.job.key] == q.job {
		delete(s.jobs, q.job.key)
	}
	metrics.SchedulerPendingJobs.Set(float64(len(s.jobs)))
	s.mu.Unlock()

	metrics.SchedulerJobsRunTotal.WithLabelValues(q.trigger).Inc()

	err := runTask(q.job.task)
	if err != nil {
		s.log.WithError(err).WithField("key", q.job.key).Error("deferred task failed")
	}
}

func runTask(task func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	task()

	return nil
}

// ManualScheduler records jobs and runs them only when asked. It is meant for
// tests that need to control when deferred writes happen.
type ManualScheduler struct {
	mu    sync.Mutex
	jobs  map[string]func()
	order []string
	waits map[string]time.Duration
	total int
}

// NewManualScheduler returns an empty ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{
		jobs:  make(map[string]func()),
		waits: make(map[string]time.Duration),
	}
}

// Register records task unless a job for key is pending.
func (m *ManualScheduler) Register(key string, wait time.Duration, task func()) error {
	if wait <= 0 {
		return errors.New("walstore: waiting time must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[key]; ok {
		return nil
	}

	m.jobs[key] = task
	m.waits[key] = wait
	m.order = append(m.order, key)
	m.total++

	return nil
}

// Pending returns the keys of waiting jobs in registration order.
func (m *ManualScheduler) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.order...)
}

// Wait returns the waiting time a pending job was registered with.
func (m *ManualScheduler) Wait(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.waits[key]

	return d, ok
}

// Scheduled returns how many jobs were created so far.
func (m *ManualScheduler) Scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.total
}

// RunPending runs all waiting jobs in registration order on the calling
// goroutine and returns how many ran. Jobs registered while running stay
// pending.
func (m *ManualScheduler) RunPending() int {
	m.mu.Lock()
	order := m.order
	jobs := m.jobs
	m.order = nil
	m.jobs = make(map[string]func())
	m.waits = make(map[string]time.Duration)
	m.mu.Unlock()

	for _, key := range order {
		metrics.SchedulerJobsRunTotal.WithLabelValues(metrics.TriggerManual).Inc()
		jobs[key]()
	}

	return len(order)
}

var (
	_ Scheduler = (*DeferredScheduler)(nil)
	_ Scheduler = (*ManualScheduler)(nil)
)
