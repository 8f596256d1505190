// Package sweep removes expired scratch directories that their creating
// processes never closed. The core handle deliberately keeps no on-disk
// manifest, so a crashed process leaves its directory behind; this package is
// the ops tooling that reclaims such orphans.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/scratchdir"
	"git.home.luguber.info/inful/scratchdir/events"
	"git.home.luguber.info/inful/scratchdir/internal/logfields"
	"git.home.luguber.info/inful/scratchdir/ledger"
	"git.home.luguber.info/inful/scratchdir/metrics"
)

// Config configures a Sweeper.
type Config struct {
	// BaseDir is the directory scanned for scratch directories.
	// Defaults to os.TempDir().
	BaseDir string

	// Prefixes restricts eligibility to names generated from one of these
	// prefixes. When empty, only directories registered in the ledger are
	// eligible, so an unconfigured sweeper never touches foreign entries.
	Prefixes []string

	// MaxAge is how old a directory must be before it is removed. Required.
	MaxAge time.Duration

	// DryRun logs removal decisions without touching the filesystem.
	DryRun bool

	Ledger    *ledger.Ledger   // optional: birth times and orphan bookkeeping
	Watcher   *Watcher         // optional: observed birth times
	Publisher events.Publisher // optional: swept events; defaults to NopPublisher
	Recorder  metrics.Recorder // optional: defaults to NoopRecorder
}

// Report summarizes one sweep pass.
type Report struct {
	Scanned int // eligible directories examined
	Removed int // directories removed (or, in dry-run mode, that would be)
	Skipped int // eligible but younger than MaxAge
	Failed  int // removals that errored; the sweep continues past them
}

// Sweeper removes expired scratch directories from a base directory.
type Sweeper struct {
	cfg Config
}

// New validates cfg and returns a Sweeper.
func New(cfg Config) (*Sweeper, error) {
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("sweep: max age must be positive")
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = os.TempDir()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	return &Sweeper{cfg: cfg}, nil
}

// Sweep performs one pass. Unlike the copy engine it is not fail-fast: a
// directory that cannot be removed is logged, counted and skipped so one
// stubborn entry cannot shield every other orphan from collection.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report

	entries, err := os.ReadDir(s.cfg.BaseDir)
	if err != nil {
		return report, fmt.Errorf("read base directory: %w", err)
	}

	now := time.Now()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(s.cfg.BaseDir, entry.Name())
		if !s.eligible(ctx, entry.Name(), path) {
			continue
		}
		report.Scanned++

		age := now.Sub(s.birthTime(ctx, path, entry))
		if age < s.cfg.MaxAge {
			report.Skipped++
			continue
		}

		if s.cfg.DryRun {
			slog.Info("Dry run: would remove expired scratch directory",
				logfields.Path(path), slog.Duration("age", age))
			report.Removed++
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to remove expired scratch directory",
				logfields.Path(path), logfields.Error(err))
			report.Failed++
			continue
		}
		report.Removed++
		s.cfg.Recorder.AddSweepRemoved(1)
		s.forget(ctx, path)
		slog.Info("Removed expired scratch directory",
			logfields.Path(path), slog.Duration("age", age))
	}

	return report, nil
}

// eligible decides whether a base-directory entry is a scratch directory this
// sweeper is responsible for.
func (s *Sweeper) eligible(ctx context.Context, name, path string) bool {
	for _, prefix := range s.cfg.Prefixes {
		if scratchdir.IsGeneratedName(name, prefix) {
			return true
		}
	}
	if len(s.cfg.Prefixes) == 0 && s.cfg.Ledger != nil {
		_, found, err := s.cfg.Ledger.Lookup(ctx, path)
		if err != nil {
			slog.Warn("Ledger lookup failed", logfields.Path(path), logfields.Error(err))
			return false
		}
		return found
	}
	return false
}

// birthTime picks the most trustworthy creation time available: observed
// birth from the watcher, then the ledger record, then the directory mtime.
func (s *Sweeper) birthTime(ctx context.Context, path string, entry os.DirEntry) time.Time {
	if s.cfg.Watcher != nil {
		if t, ok := s.cfg.Watcher.Birth(path); ok {
			return t
		}
	}
	if s.cfg.Ledger != nil {
		if e, found, err := s.cfg.Ledger.Lookup(ctx, path); err == nil && found {
			return e.CreatedAt
		}
	}
	if info, err := entry.Info(); err == nil {
		return info.ModTime()
	}
	// Unknown age: treat as fresh so the next pass gets another look.
	return time.Now()
}

// forget drops bookkeeping for a removed directory and announces the sweep.
// Both are best effort; the directory is already gone.
func (s *Sweeper) forget(ctx context.Context, path string) {
	if s.cfg.Ledger != nil {
		if err := s.cfg.Ledger.Remove(ctx, path); err != nil {
			slog.Debug("Failed to drop ledger entry", logfields.Path(path), logfields.Error(err))
		}
	}
	if err := s.cfg.Publisher.Publish(ctx, events.New(events.TypeSwept, path, "")); err != nil {
		slog.Debug("Failed to publish sweep event", logfields.Path(path), logfields.Error(err))
	}
}
