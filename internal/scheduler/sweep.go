// Package scheduler drives the background compaction sweep: a single
// recurring gocron job that asks CCE to check every active conversation's
// token usage and fire the compact protocol proactively, supplementing the
// on-demand session:compact IPC call.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// EventPublisher allows the sweeper to emit lifecycle events without
// depending on a concrete event bus implementation.
type EventPublisher interface {
	Publish(eventType string, payload any)
}

// Event type constants for compaction sweep lifecycle notifications.
const (
	EventSweepStarted  = "cce.sweep.started"
	EventSweepFinished = "cce.sweep.finished"
	EventSweepFailed   = "cce.sweep.failed"
)

// SweepFinishedPayload is EventSweepFinished's payload: how many
// conversations the tick actually compacted.
type SweepFinishedPayload struct {
	Compacted int `json:"compacted"`
}

// SweepFailedPayload is EventSweepFailed's payload: the error that aborted
// the tick, carried as a string so the payload stays JSON/comparison-safe
// across the bus.
type SweepFailedPayload struct {
	Error string `json:"error"`
}

// SweepFunc performs one compaction sweep over all active conversations. It
// returns the number of conversations it compacted.
type SweepFunc func(ctx context.Context) (compacted int, err error)

// Config holds the sweeper configuration.
type Config struct {
	Interval       time.Duration
	Sweep          SweepFunc
	Logger         *slog.Logger
	EventPublisher EventPublisher // optional
}

// Sweeper runs Config.Sweep on a fixed interval using gocron, mirroring the
// teacher's general task scheduler but narrowed to this one recurring job.
type Sweeper struct {
	cron   gocron.Scheduler
	cfg    Config
	mu     sync.Mutex
	jobID  *gocron.Job
	logger *slog.Logger
}

// New creates a new Sweeper.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	return &Sweeper{cron: cron, cfg: cfg, logger: cfg.Logger}, nil
}

// Start registers the recurring sweep job and starts the scheduler.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(s.runSweep),
	)
	if err != nil {
		return fmt.Errorf("scheduling compaction sweep: %w", err)
	}
	j := job
	s.jobID = &j

	s.cron.Start()
	s.logger.Info("compaction sweep scheduler started", "interval", s.cfg.Interval)
	return nil
}

// Stop shuts down the gocron scheduler.
func (s *Sweeper) Stop() error {
	return s.cron.Shutdown()
}

// runSweep is invoked by gocron on each tick; it never propagates an error to
// gocron itself — failures are logged and published instead, since a single
// failed sweep must not stop future ticks.
func (s *Sweeper) runSweep() {
	ctx := context.Background()
	s.publish(EventSweepStarted, nil)

	compacted, err := s.cfg.Sweep(ctx)
	if err != nil {
		s.logger.Warn("compaction sweep failed", "error", err)
		s.publish(EventSweepFailed, SweepFailedPayload{Error: err.Error()})
		return
	}

	s.logger.Info("compaction sweep finished", "compacted", compacted)
	s.publish(EventSweepFinished, SweepFinishedPayload{Compacted: compacted})
}

func (s *Sweeper) publish(eventType string, payload any) {
	if s.cfg.EventPublisher == nil {
		return
	}
	s.cfg.EventPublisher.Publish(eventType, payload)
}
