package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/monitor"
)

// SweepRunner is the part of the SLA monitor the jobs call.
type SweepRunner interface {
	Run(ctx context.Context, kind monitor.Kind) (monitor.SweepResult, error)
}

// RegisterSLASweeps schedules the warning and breach sweeps on s.
func RegisterSLASweeps(s Scheduler, runner SweepRunner, warningEvery, breachEvery time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := s.ScheduleEvery(warningEvery, "sla-warning-sweep", sweepJob(runner, monitor.KindWarning, logger)); err != nil {
		return err
	}
	return s.ScheduleEvery(breachEvery, "sla-breach-sweep", sweepJob(runner, monitor.KindBreach, logger))
}

func sweepJob(runner SweepRunner, kind monitor.Kind, logger *zap.Logger) Job {
	return func(ctx context.Context) {
		// Skips and per-ticket failures are logged by the monitor itself.
		if _, err := runner.Run(ctx, kind); err != nil && !errors.Is(err, monitor.ErrSweepSkipped) {
			logger.Error("sla sweep failed", zap.String("sweep", string(kind)), zap.Error(err))
		}
	}
}
