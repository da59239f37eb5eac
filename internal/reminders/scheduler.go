package reminders

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alekspetrov/taskboard/internal/logging"
)

// DefaultInterval is how often the reminder cycle runs.
const DefaultInterval = time.Minute

// Pipeline is one scan followed by one dispatch.
type Pipeline struct {
	Scanner    *Scanner
	Dispatcher *Dispatcher
	Now        func() time.Time
}

// RunOnce executes a full cycle.
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	candidates := p.Scanner.Scan(ctx, now())
	if len(candidates) == 0 {
		return Result{}, nil
	}
	return p.Dispatcher.Dispatch(ctx, candidates)
}

// Runner is what the scheduler runs each tick.
type Runner interface {
	RunOnce(ctx context.Context) (Result, error)
}

// Scheduler runs the reminder cycle on a fixed interval. Ticks never overlap:
// if a cycle is still running when the next is due, the next waits.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	cron     *cron.Cron
	logger   *slog.Logger

	mu         sync.Mutex
	running    bool
	entryID    cron.EntryID
	cancel     context.CancelFunc
	first      sync.WaitGroup
	lastRun    time.Time
	lastResult Result
	lastErr    error
	runs       int
}

// NewScheduler creates a scheduler. A non-positive interval uses DefaultInterval.
func NewScheduler(runner Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := logging.WithComponent("reminders.scheduler")
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.DelayIfStillRunning(cronLogger{logger}),
		)),
	}
}

// Start schedules the cycle and runs it once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	job := cron.FuncJob(func() { s.run(ctx) })
	s.entryID = s.cron.Schedule(cron.Every(s.interval), job)
	s.cron.Start()
	s.running = true

	// Run the first cycle through the same wrapped job so it serializes with
	// scheduled ticks.
	entry := s.cron.Entry(s.entryID)
	s.first.Add(1)
	go func() {
		defer s.first.Done()
		entry.WrappedJob.Run()
	}()

	s.logger.Info("reminder scheduler started",
		slog.Duration("interval", s.interval),
		slog.Time("next_run", entry.Next),
	)
}

// Stop halts scheduling and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.first.Wait()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	res, err := s.runner.RunOnce(ctx)

	s.mu.Lock()
	s.lastRun, s.lastResult, s.lastErr = start, res, err
	s.runs++
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("reminder cycle failed", slog.Any("error", err))
		return
	}
	if res.Sent+res.Failed+res.Duplicates > 0 {
		s.logger.Info("reminder cycle complete",
			slog.Int("sent", res.Sent),
			slog.Int("failed", res.Failed),
			slog.Int("duplicates", res.Duplicates),
			slog.Duration("took", time.Since(start)),
		)
	}
}

// Status describes the scheduler for status endpoints.
type Status struct {
	Running    bool          `json:"running"`
	Interval   time.Duration `json:"interval"`
	Runs       int           `json:"runs"`
	LastRun    time.Time     `json:"lastRun,omitzero"`
	NextRun    time.Time     `json:"nextRun,omitzero"`
	LastResult Result        `json:"lastResult"`
	LastError  string        `json:"lastError,omitempty"`
}

// Status returns scheduler status information.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:    s.running,
		Interval:   s.interval,
		Runs:       s.runs,
		LastRun:    s.lastRun,
		LastResult: s.lastResult,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.running {
		st.NextRun = s.cron.Entry(s.entryID).Next
	}
	return st
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
