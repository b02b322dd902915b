package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidSchedule is returned for schedule strings that cannot be parsed.
var ErrInvalidSchedule = errors.New("invalid schedule format")

var jobSeq atomic.Uint64

// permanentError marks a job failure that should stop the job for good.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that the scheduler stops the job that returned it.
// Other jobs keep running.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// InMemoryJob represents a job with in-memory state
type InMemoryJob struct {
	id       string
	name     string
	jobFunc  JobFunc
	schedule string
	interval time.Duration

	mu      sync.RWMutex
	lastRun time.Time
	nextRun time.Time
	lastErr error
	runs    int
	stopped bool

	runMu sync.Mutex // serialises executions of the same job
}

// NewInMemoryJob creates a new in-memory job
func NewInMemoryJob(name string, schedule string, jobFunc JobFunc) (*InMemoryJob, error) {
	interval, err := parseSchedule(schedule)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}

	return &InMemoryJob{
		id:       generateJobID(),
		name:     name,
		jobFunc:  jobFunc,
		schedule: schedule,
		interval: interval,
		nextRun:  time.Now(),
	}, nil
}

// Run executes the job function once and records the outcome.
func (ij *InMemoryJob) Run(ctx context.Context) error {
	ij.runMu.Lock()
	defer ij.runMu.Unlock()

	started := time.Now()
	err := ij.jobFunc(ctx)

	ij.mu.Lock()
	ij.lastRun = started
	ij.lastErr = err
	ij.runs++
	ij.mu.Unlock()

	return err
}

// generateJobID creates a unique ID for the job
func generateJobID() string {
	return fmt.Sprintf("job_%d_%d", jobSeq.Add(1), time.Now().UnixNano())
}

// ValidateSchedule reports whether schedule would be accepted by Schedule.
func ValidateSchedule(schedule string) error {
	_, err := parseSchedule(schedule)
	return err
}

// parseSchedule parses the schedule string to determine the interval
func parseSchedule(schedule string) (time.Duration, error) {
	switch {
	case strings.HasPrefix(schedule, "@every "):
		intervalStr := strings.TrimSpace(strings.TrimPrefix(schedule, "@every "))
		duration, err := time.ParseDuration(intervalStr)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid duration: %v", ErrInvalidSchedule, err)
		}
		if duration <= 0 {
			return 0, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidSchedule, duration)
		}
		return duration, nil
	case schedule == "@hourly":
		return time.Hour, nil
	case schedule == "@daily":
		return 24 * time.Hour, nil
	case schedule == "@minutely":
		return time.Minute, nil
	default:
		if len(strings.Fields(schedule)) == 5 {
			return 0, fmt.Errorf("%w: cron expressions are not supported, use @every <duration>, @minutely, @hourly or @daily", ErrInvalidSchedule)
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, schedule)
	}
}

// ID returns the job ID
func (ij *InMemoryJob) ID() string {
	return ij.id
}

// Name returns the job name
func (ij *InMemoryJob) Name() string {
	return ij.name
}

// Schedule returns the schedule string
func (ij *InMemoryJob) Schedule() string {
	return ij.schedule
}

// Interval returns the delay between the end of one run and the next.
func (ij *InMemoryJob) Interval() time.Duration {
	return ij.interval
}

// LastRun returns the start time of the last run
func (ij *InMemoryJob) LastRun() time.Time {
	ij.mu.RLock()
	defer ij.mu.RUnlock()
	return ij.lastRun
}

// NextRun returns the next run time
func (ij *InMemoryJob) NextRun() time.Time {
	ij.mu.RLock()
	defer ij.mu.RUnlock()
	return ij.nextRun
}

// LastError returns the error of the last run, if any
func (ij *InMemoryJob) LastError() error {
	ij.mu.RLock()
	defer ij.mu.RUnlock()
	return ij.lastErr
}

// Runs returns how many times the job has run
func (ij *InMemoryJob) Runs() int {
	ij.mu.RLock()
	defer ij.mu.RUnlock()
	return ij.runs
}

// Stopped reports whether the job was stopped by a permanent failure
func (ij *InMemoryJob) Stopped() bool {
	ij.mu.RLock()
	defer ij.mu.RUnlock()
	return ij.stopped
}

func (ij *InMemoryJob) setNextRun(t time.Time) {
	ij.mu.Lock()
	ij.nextRun = t
	ij.mu.Unlock()
}

func (ij *InMemoryJob) markStopped() {
	ij.mu.Lock()
	ij.stopped = true
	ij.nextRun = time.Time{}
	ij.mu.Unlock()
}

// InMemoryScheduler runs every job in its own goroutine. Jobs share no
// clock: each waits its interval after its own previous run completes, so
// the effective period is the interval plus the run time.
type InMemoryScheduler struct {
	log     *zap.Logger
	jobs    map[string]*InMemoryJob
	cancels map[string]context.CancelFunc
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewInMemoryScheduler creates a new in-memory scheduler
func NewInMemoryScheduler(log *zap.Logger) *InMemoryScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemoryScheduler{
		log:     log.Named("scheduler"),
		jobs:    make(map[string]*InMemoryJob),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Schedule adds a job to the scheduler. If the scheduler is already
// running the job starts right away.
func (s *InMemoryScheduler) Schedule(job Job) error {
	inMemJob, ok := job.(*InMemoryJob)
	if !ok {
		wrapped, err := NewInMemoryJob(job.Name(), job.Schedule(), job.Run)
		if err != nil {
			return err
		}
		inMemJob = wrapped
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[inMemJob.ID()]; exists {
		return fmt.Errorf("job with ID %s is already scheduled", inMemJob.ID())
	}
	s.jobs[inMemJob.ID()] = inMemJob

	if s.running {
		s.launch(inMemJob)
	}

	return nil
}

// ScheduleFunc creates and schedules a function as a job
func (s *InMemoryScheduler) ScheduleFunc(name string, schedule string, job JobFunc) error {
	jobObj, err := NewInMemoryJob(name, schedule, job)
	if err != nil {
		return err
	}
	return s.Schedule(jobObj)
}

// Start begins running all scheduled jobs
func (s *InMemoryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, job := range s.jobs {
		s.launch(job)
	}

	return nil
}

// launch starts the loop of a single job. Callers hold s.mu.
func (s *InMemoryScheduler) launch(job *InMemoryJob) {
	jobCtx, cancel := context.WithCancel(s.ctx)
	s.cancels[job.ID()] = cancel

	s.wg.Add(1)
	go s.run(jobCtx, job)
}

// run is the loop of one job
func (s *InMemoryScheduler) run(ctx context.Context, job *InMemoryJob) {
	defer s.wg.Done()

	log := s.log.With(zap.String("job", job.Name()), zap.String("job_id", job.ID()))
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := job.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if IsPermanent(err) {
				job.markStopped()
				log.Error("Job stopped after permanent failure", zap.Error(err))
				return
			}
			log.Warn("Error running job", zap.Error(err))
		}

		job.setNextRun(time.Now().Add(job.interval))
		timer.Reset(job.interval)
	}
}

// Stop cancels all jobs and waits for them to return
func (s *InMemoryScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return errors.New("scheduler is not running")
	}
	s.running = false
	cancel := s.cancel
	s.cancels = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	return nil
}

// Wait blocks until every job loop has returned.
func (s *InMemoryScheduler) Wait() {
	s.wg.Wait()
}

// Jobs returns all scheduled jobs
func (s *InMemoryScheduler) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}

	return jobs
}

// Remove removes a job by ID, stopping its loop if it is running
func (s *InMemoryScheduler) Remove(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return fmt.Errorf("job with ID %s does not exist", jobID)
	}

	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
		delete(s.cancels, jobID)
	}
	delete(s.jobs, jobID)
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *InMemoryScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
