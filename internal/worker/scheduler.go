// Package worker runs background jobs on fixed intervals.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/clock"
)

// Job is one scheduled execution. It must not panic; schedulers recover anyway.
type Job func(ctx context.Context)

// Scheduler fires jobs every interval. A job that is still running when its
// next tick arrives is started again; overlap handling belongs to the job.
type Scheduler interface {
	ScheduleEvery(interval time.Duration, name string, job Job) error
	Start()
	// Stop stops firing and waits for running jobs or ctx, whichever is first.
	Stop(ctx context.Context) error
}

// CronScheduler is backed by robfig/cron.
type CronScheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewCronScheduler builds a scheduler whose jobs receive a context cancelled on Stop.
func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

func (s *CronScheduler) ScheduleEvery(interval time.Duration, name string, job Job) error {
	if interval < time.Second {
		return fmt.Errorf("schedule %s: interval %s below cron resolution", name, interval)
	}
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { job(s.ctx) }))
	s.logger.Info("job scheduled",
		zap.String("job", name),
		zap.Duration("interval", interval),
		zap.Int("entry_id", int(id)))
	return nil
}

func (s *CronScheduler) Start() { s.cron.Start() }

func (s *CronScheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ logger *zap.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

// TickerScheduler drives jobs from clock tickers, so tests can advance a fake
// clock instead of waiting.
type TickerScheduler struct {
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries []tickerEntry
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	running sync.WaitGroup
}

type tickerEntry struct {
	name     string
	interval time.Duration
	job      Job
}

func NewTickerScheduler(c clock.Clock, logger *zap.Logger) *TickerScheduler {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TickerScheduler{clock: c, logger: logger, ctx: ctx, cancel: cancel}
}

func (s *TickerScheduler) ScheduleEvery(interval time.Duration, name string, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := tickerEntry{name: name, interval: interval, job: job}
	s.entries = append(s.entries, entry)
	if s.started {
		s.startLocked(entry)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

func (s *TickerScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, entry := range s.entries {
		s.startLocked(entry)
	}
}

func (s *TickerScheduler) startLocked(entry tickerEntry) {
	ticker := s.clock.NewTicker(entry.interval)
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.running.Add(1)
				go s.fire(entry)
			}
		}
	}()
}

func (s *TickerScheduler) fire(entry tickerEntry) {
	defer s.running.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", zap.String("job", entry.name), zap.Any("panic", r))
		}
	}()
	entry.job(s.ctx)
}

func (s *TickerScheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
