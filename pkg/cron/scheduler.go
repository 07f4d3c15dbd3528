// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/demandsight/demand-planner/internal/domain/import/session"
)

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	sessions *session.Store
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(sessions *session.Store, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:     c,
		sessions: sessions,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Session sweep: runs every 15 minutes
	_, err := s.cron.AddFunc("*/15 * * * *", s.sweepSessions)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the session sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepSessions()
}

// sweepSessions evicts wizard sessions idle past the TTL.
func (s *Scheduler) sweepSessions() {
	removed := s.sessions.Sweep()
	if removed > 0 {
		s.logger.Info("expired idle import sessions",
			slog.Int("removed", removed),
			slog.Int("remaining", s.sessions.Len()),
		)
	}
}
