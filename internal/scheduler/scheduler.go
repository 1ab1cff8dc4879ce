/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc("@every 1m", s.jobs.ProcessElapsedCountdowns); err != nil {
		s.logger.Error("failed to schedule bonus sweep job", "error", err)
	} else {
		s.logger.Info("scheduled bonus sweep job", "schedule", "@every 1m")
	}

	if _, err := s.cron.AddFunc("@every 5m", s.jobs.ProcessPaymentExpiry); err != nil {
		s.logger.Error("failed to schedule payment expiry job", "error", err)
	} else {
		s.logger.Info("scheduled payment expiry job", "schedule", "@every 5m")
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
