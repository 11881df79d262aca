package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sjperalta/interlock-api/pkg/logger"
)

// Job represents a background task
type Job func(ctx context.Context) error

// Worker runs the side effects of compliance operations (notifications,
// audit entries, event publishing) off the request path, plus the recurring
// sweep and reminder jobs.
type Worker struct {
	ctx    context.Context
	cancel context.CancelFunc

	// loopCtx stops interval schedulers without cancelling in-flight jobs
	loopCtx    context.Context
	stopLoops  context.CancelFunc
	loops      sync.WaitGroup
	inFlight   sync.WaitGroup
	sem        chan struct{}
	cron       *cron.Cron
	mu         sync.RWMutex
	closed     bool
	stats      WorkerStats
	lastRuns   map[string]JobRun
	maxWorkers int
}

// WorkerStats holds statistics about the worker
type WorkerStats struct {
	ActiveJobs    int   `json:"active_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	QueueLength   int   `json:"queue_length"`
	MaxConcurrent int   `json:"max_concurrent"`
}

// JobRun describes the most recent run of a named scheduled job
type JobRun struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// NewWorker creates a worker running at most 2*numWorkers jobs at once,
// with a floor of 10.
func NewWorker(numWorkers int) *Worker {
	limit := numWorkers * 2
	if limit < 10 {
		limit = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	loopCtx, stopLoops := context.WithCancel(ctx)
	return &Worker{
		ctx:        ctx,
		cancel:     cancel,
		loopCtx:    loopCtx,
		stopLoops:  stopLoops,
		sem:        make(chan struct{}, limit),
		lastRuns:   make(map[string]JobRun),
		maxWorkers: limit,
	}
}

// EnqueueAsync runs job in its own goroutine once a slot is free. After
// Shutdown has begun the job runs inline so no side effect is dropped.
func (w *Worker) EnqueueAsync(job Job) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = w.run(context.Background(), "inline", job)
		return
	}
	w.inFlight.Add(1)
	w.stats.QueueLength++
	w.mu.Unlock()

	go func() {
		defer w.inFlight.Done()
		w.sem <- struct{}{}
		defer func() { <-w.sem }()

		w.mu.Lock()
		w.stats.QueueLength--
		w.mu.Unlock()
		_ = w.run(w.ctx, "async", job)
	}()
}

// run executes job with panic recovery and stat tracking
func (w *Worker) run(ctx context.Context, label string, job Job) (err error) {
	w.trackJobStart()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			logger.Error(fmt.Sprintf("[Worker] Job %s error: %v", label, err))
			w.trackJobFailure()
		}
		w.trackJobEnd()
	}()
	return job(ctx)
}

// ScheduleEveryImmediate runs a job once at startup, then at fixed intervals, so a
// restarted process does not wait a whole interval for its first sweep.
func (w *Worker) ScheduleEveryImmediate(name string, interval time.Duration, job Job) {
	w.loops.Add(1)
	go func() {
		defer w.loops.Done()
		w.runScheduledJob(name, job)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.loopCtx.Done():
				return
			case <-ticker.C:
				w.runScheduledJob(name, job)
			}
		}
	}()
}

// ScheduleCron runs a job on a standard five-field cron expression (UTC).
// Runs of the same job never overlap; a run still in progress skips the next tick.
func (w *Worker) ScheduleCron(name, spec string, job Job) error {
	w.mu.Lock()
	if w.cron == nil {
		w.cron = cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
		w.cron.Start()
	}
	c := w.cron
	w.mu.Unlock()

	if _, err := c.AddFunc(spec, func() { w.runScheduledJob(name, job) }); err != nil {
		return fmt.Errorf("invalid cron spec %q for %s: %w", spec, name, err)
	}
	return nil
}

func (w *Worker) runScheduledJob(name string, job Job) {
	start := time.Now()
	err := w.run(w.ctx, name, job)
	if err == nil {
		logger.Info(fmt.Sprintf("[Scheduler] Job %s completed in %v", name, time.Since(start)))
	}
	w.recordRun(name, start, err)
}

// Shutdown stops the schedulers, waits for running and queued jobs to
// finish, then cancels the worker context.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	w.closed = true
	c := w.cron
	w.mu.Unlock()

	w.stopLoops()
	if c != nil {
		<-c.Stop().Done()
	}
	w.loops.Wait()
	w.inFlight.Wait()
	w.cancel()
}

// GetStats returns the current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	stats := w.stats
	stats.MaxConcurrent = w.maxWorkers
	return stats
}

// LastRuns returns the most recent run of every named scheduled job
func (w *Worker) LastRuns() map[string]JobRun {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]JobRun, len(w.lastRuns))
	for k, v := range w.lastRuns {
		out[k] = v
	}
	return out
}

func (w *Worker) recordRun(name string, start time.Time, err error) {
	run := JobRun{StartedAt: start, Duration: time.Since(start)}
	if err != nil {
		run.Error = err.Error()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRuns[name] = run
}

func (w *Worker) trackJobStart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.ActiveJobs++
}

// trackJobEnd is called for every finished job, so CompletedJobs counts
// successes and failures alike; FailedJobs is the failing subset.
func (w *Worker) trackJobEnd() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.ActiveJobs--
	w.stats.CompletedJobs++
}

func (w *Worker) trackJobFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.FailedJobs++
}
