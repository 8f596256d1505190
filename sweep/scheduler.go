package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/scratchdir/internal/logfields"
)

// Scheduler wraps gocron for running periodic sweeps in daemon mode.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// SchedulePeriodicSweep registers a sweep on the given interval.
// Returns the job ID for later management.
func (s *Scheduler) SchedulePeriodicSweep(interval time.Duration, sweeper *Sweeper) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.executeSweep, sweeper),
		gocron.WithName("scratch-sweep"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic sweep job: %w", err)
	}
	return job.ID().String(), nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting sweep scheduler")
	s.scheduler.Start()
}

// Shutdown gracefully stops the scheduler.
func (s *Scheduler) Shutdown() error {
	slog.Info("Stopping sweep scheduler")
	return s.scheduler.Shutdown()
}

// executeSweep is called by gocron on each tick.
func (s *Scheduler) executeSweep(sweeper *Sweeper) {
	report, err := sweeper.Sweep(context.Background())
	if err != nil {
		slog.Error("Scheduled sweep failed", logfields.Error(err))
		return
	}
	slog.Info("Scheduled sweep finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("removed", report.Removed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
}
