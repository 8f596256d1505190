package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/scratchdir"
	"git.home.luguber.info/inful/scratchdir/config"
	"git.home.luguber.info/inful/scratchdir/events"
	"git.home.luguber.info/inful/scratchdir/gitsource"
	"git.home.luguber.info/inful/scratchdir/internal/logfields"
	"git.home.luguber.info/inful/scratchdir/ledger"
	"git.home.luguber.info/inful/scratchdir/metrics"
	"git.home.luguber.info/inful/scratchdir/sweep"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Create struct {
		Prefix string `arg:"" optional:"" default:"scratch" help:"Directory name prefix"`
	} `cmd:"" help:"Create a scratch directory and print its path"`

	Copy struct {
		Source      string `arg:"" help:"Source tree to copy"`
		Prefix      string `short:"p" default:"scratch" help:"Directory name prefix"`
		Concurrency int    `short:"j" default:"1" help:"Parallel file copies"`
	} `cmd:"" help:"Copy a tree into a fresh scratch directory and print its path"`

	Clone struct {
		URL    string `arg:"" help:"Repository URL or local path"`
		Branch string `short:"b" help:"Branch to check out"`
		Depth  int    `help:"Shallow clone depth (0 = full history)"`
		Prefix string `short:"p" default:"clone" help:"Directory name prefix"`
	} `cmd:"" help:"Clone a git repository into a fresh scratch directory"`

	Sweep struct {
		Daemon bool `help:"Keep running and sweep on the configured interval"`
		DryRun bool `help:"Log removal decisions without deleting anything"`
	} `cmd:"" help:"Remove expired scratch directories"`
}

func main() {
	ctx := kong.Parse(&CLI)

	// Set up logging
	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}

	pub := newPublisher(cfg)

	switch ctx.Command() {
	case "create", "create <prefix>":
		err = runCreate(cfg, pub, CLI.Create.Prefix)
	case "copy <source>":
		err = runCopy(cfg, pub, CLI.Copy.Source, CLI.Copy.Prefix, CLI.Copy.Concurrency)
	case "clone <url>":
		err = runClone(cfg, pub, CLI.Clone.URL, CLI.Clone.Branch, CLI.Clone.Depth, CLI.Clone.Prefix)
	case "sweep":
		err = runSweep(cfg, pub, CLI.Sweep.Daemon, CLI.Sweep.DryRun)
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}
	if cerr := pub.Close(); cerr != nil {
		slog.Warn("Failed to close event publisher", logfields.Error(cerr))
	}
	if err != nil {
		slog.Error("Command failed", logfields.Error(err))
		os.Exit(1)
	}
}

// newPublisher builds the configured event publisher. Eventing is best
// effort for the CLI, so an unreachable broker degrades to the no-op
// publisher instead of failing the command.
func newPublisher(cfg *config.Config) events.Publisher {
	if !cfg.NATS.Enabled {
		return events.NopPublisher{}
	}
	p, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject)
	if err != nil {
		slog.Warn("Event publisher unavailable", logfields.Error(err))
		return events.NopPublisher{}
	}
	return p
}

// newScratch creates a detached scratch directory, registers it with the
// ledger when one is configured so the sweeper can reclaim it later, and
// announces the creation.
func newScratch(cfg *config.Config, pub events.Publisher, prefix string) (*scratchdir.Dir, error) {
	dir, err := scratchdir.New(prefix, scratchdir.WithBaseDir(cfg.BaseDir))
	if err != nil {
		return nil, err
	}
	// The directory must survive process exit; reclamation is the sweeper's
	// job from here on.
	dir.Detach()

	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		defer func() {
			_ = l.Close()
		}()
		if _, err := l.Record(context.Background(), ledger.Entry{Path: dir.Path(), Prefix: prefix}); err != nil {
			return nil, fmt.Errorf("record in ledger: %w", err)
		}
	}

	if err := pub.Publish(context.Background(), events.New(events.TypeCreated, dir.Path(), prefix)); err != nil {
		slog.Warn("Failed to publish creation event", logfields.Error(err))
	}
	return dir, nil
}

// discard closes a freshly created scratch directory on a failure path and
// announces the close, so event consumers see the full lifecycle.
func discard(pub events.Publisher, dir *scratchdir.Dir, prefix string) {
	if err := dir.Close(); err != nil {
		slog.Warn("Failed to remove scratch directory",
			logfields.Path(dir.Path()), logfields.Error(err))
	}
	if err := pub.Publish(context.Background(), events.New(events.TypeClosed, dir.Path(), prefix)); err != nil {
		slog.Warn("Failed to publish close event", logfields.Error(err))
	}
}

func runCreate(cfg *config.Config, pub events.Publisher, prefix string) error {
	dir, err := newScratch(cfg, pub, prefix)
	if err != nil {
		return err
	}
	fmt.Println(dir.Path())
	return nil
}

func runCopy(cfg *config.Config, pub events.Publisher, source, prefix string, concurrency int) error {
	dir, err := newScratch(cfg, pub, prefix)
	if err != nil {
		return err
	}
	if err := dir.Copy(context.Background(), source, scratchdir.WithConcurrency(concurrency)); err != nil {
		// Fail-fast copies are not transactional; do not leave the partial
		// tree behind.
		discard(pub, dir, prefix)
		return err
	}
	fmt.Println(dir.Path())
	return nil
}

func runClone(cfg *config.Config, pub events.Publisher, url, branch string, depth int, prefix string) error {
	dir, err := newScratch(cfg, pub, prefix)
	if err != nil {
		return err
	}
	spec := gitsource.Spec{URL: url, Branch: branch, Depth: depth}
	if _, err := gitsource.CloneInto(context.Background(), dir.Path(), spec); err != nil {
		discard(pub, dir, prefix)
		return err
	}
	fmt.Println(dir.Path())
	return nil
}

func runSweep(cfg *config.Config, pub events.Publisher, daemon, dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var registry *prom.Registry
	if cfg.Metrics.Enabled {
		registry = prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	var reg *ledger.Ledger
	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer func() {
			_ = l.Close()
		}()
		reg = l
	}

	sweepCfg := sweep.Config{
		BaseDir:   cfg.BaseDir,
		Prefixes:  cfg.Sweep.Prefixes,
		MaxAge:    cfg.Sweep.MaxAge.Std(),
		DryRun:    cfg.Sweep.DryRun || dryRun,
		Ledger:    reg,
		Publisher: pub,
		Recorder:  recorder,
	}

	if !daemon {
		sweeper, err := sweep.New(sweepCfg)
		if err != nil {
			return err
		}
		report, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		slog.Info("Sweep finished",
			slog.Int("scanned", report.Scanned),
			slog.Int("removed", report.Removed),
			slog.Int("skipped", report.Skipped),
			slog.Int("failed", report.Failed))
		return nil
	}

	// Daemon mode: observed birth times beat mtimes for age decisions.
	watcher, err := sweep.NewWatcher(cfg.BaseDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()
	sweepCfg.Watcher = watcher

	sweeper, err := sweep.New(sweepCfg)
	if err != nil {
		return err
	}
	scheduler, err := sweep.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := scheduler.SchedulePeriodicSweep(cfg.Sweep.Interval.Std(), sweeper); err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			slog.Error("Scheduler shutdown failed", logfields.Error(err))
		}
	}()

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.Listen, registry)
	}

	slog.Info("Sweep daemon running",
		logfields.Path(cfg.BaseDir),
		slog.Duration("interval", cfg.Sweep.Interval.Std()),
		slog.Duration("max_age", cfg.Sweep.MaxAge.Std()))
	<-ctx.Done()
	slog.Info("Shutting down")
	return nil
}

// startMetricsServer serves /metrics until ctx is cancelled.
func startMetricsServer(ctx context.Context, listen string, registry *prom.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(registry))
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Metrics endpoint listening", slog.String("addr", listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
