// Package jobs contains implementations of scheduled background jobs.
package jobs

import (
	"context"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/application/command"
	"github.com/medprep-hub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP ABANDONED SESSIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SweepAbandonedSessionsJob abandons sessions whose learner walked away.
// A swept session never qualifies toward the content unlock and is never
// folded into lifetime aggregates.
type SweepAbandonedSessionsJob struct {
	handler *command.SweepSessionsHandler
	timeout time.Duration
	idle    time.Duration
	log     *logger.Logger
}

// NewSweepAbandonedSessionsJob creates the sweep job. A non-positive
// idle timeout falls back to the default.
func NewSweepAbandonedSessionsJob(handler *command.SweepSessionsHandler, idle time.Duration, log *logger.Logger) *SweepAbandonedSessionsJob {
	if idle <= 0 {
		idle = command.DefaultIdleTimeout
	}
	if log == nil {
		log = logger.Default()
	}

	return &SweepAbandonedSessionsJob{
		handler: handler,
		timeout: 2 * time.Minute,
		idle:    idle,
		log:     log.With(logger.Component("sweep-job")),
	}
}

// Name returns the unique name of the job.
func (j *SweepAbandonedSessionsJob) Name() string {
	return "sweep_abandoned_sessions"
}

// Description returns a human-readable description of the job.
func (j *SweepAbandonedSessionsJob) Description() string {
	return "abandons unfinished sessions that have been idle past the timeout"
}

// Run executes one sweep pass.
func (j *SweepAbandonedSessionsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	result, err := j.handler.Handle(ctx, command.SweepSessionsCommand{
		IdleTimeout: j.idle,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if result.Swept > 0 || result.Failed > 0 {
		j.log.Info("sweep pass finished",
			logger.Int("swept", result.Swept),
			logger.Int("failed", result.Failed),
		)
	}

	return nil
}
