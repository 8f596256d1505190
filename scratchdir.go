package scratchdir

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"git.home.luguber.info/inful/scratchdir/internal/logfields"
	"git.home.luguber.info/inful/scratchdir/metrics"
)

const (
	// maxCreateAttempts bounds the retry loop when generated names collide
	// with existing entries. Hitting the bound means either a pathological
	// base directory or a broken suffix source.
	maxCreateAttempts = 10

	dirMode = 0o750
)

// Dir owns one created directory. While active, the directory exists on disk
// and only this handle may delete it as a whole; other code is free to read
// and write inside it. A Dir is never resurrected after a successful Close.
//
// Dir methods are safe for concurrent use, but the filesystem is not locked:
// closing a handle while a Copy into it is in flight is the caller's to
// serialize.
type Dir struct {
	path     string
	recorder metrics.Recorder

	mu      sync.Mutex
	closed  bool
	cleanup runtime.Cleanup
}

// New creates a directory named <base>/<prefix>-<random suffix> and returns
// its handle. When a candidate name already exists, New retries with a fresh
// suffix up to maxCreateAttempts times before giving up; any other I/O
// failure aborts immediately. The returned path is absolute.
func New(prefix string, opts ...Option) (*Dir, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	base, err := filepath.Abs(o.baseDir)
	if err != nil {
		o.recorder.IncCreateResult(metrics.ResultFailed)
		return nil, &Error{Kind: KindCreate, Path: o.baseDir, Cause: err}
	}
	prefix = sanitizePrefix(prefix)

	var lastErr error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		candidate := filepath.Join(base, prefix+"-"+o.suffix())
		err := os.Mkdir(candidate, dirMode)
		if err == nil {
			d := &Dir{path: candidate, recorder: o.recorder}
			// Fire-and-forget removal once the handle becomes unreachable.
			// Stopped by a successful Close or by Detach.
			d.cleanup = runtime.AddCleanup(d, removeAbandoned, candidate)
			o.recorder.ObserveCreateAttempts(attempt)
			o.recorder.IncCreateResult(metrics.ResultSuccess)
			slog.Debug("Created scratch directory",
				logfields.Path(candidate),
				logfields.Prefix(prefix),
				logfields.Attempts(attempt))
			return d, nil
		}
		if errors.Is(err, fs.ErrExist) {
			lastErr = err
			continue
		}
		o.recorder.IncCreateResult(metrics.ResultFailed)
		return nil, &Error{Kind: KindCreate, Path: candidate, Cause: err}
	}

	o.recorder.IncCreateResult(metrics.ResultFailed)
	return nil, &Error{
		Kind:  KindCreate,
		Path:  base,
		Cause: fmt.Errorf("no unique name for prefix %q after %d attempts: %w", prefix, maxCreateAttempts, lastErr),
	}
}

// removeAbandoned is the abandonment path: best-effort, detached, and its
// outcome is unobservable. Only an explicit Close gives a completion
// guarantee. The removal runs in its own goroutine so the runtime's cleanup
// goroutine is never blocked on filesystem I/O.
func removeAbandoned(path string) {
	go func() {
		_ = os.RemoveAll(path)
	}()
}

// Path returns the owned path. It is valid in either state; once Close has
// succeeded the path no longer denotes an existing directory.
func (d *Dir) Path() string {
	return d.path
}

// Close removes the directory and everything under it. Closing an already
// closed handle fails with a KindAlreadyClosed error rather than silently
// succeeding. A removal failure leaves the handle active so Close can be
// retried.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return &Error{Kind: KindAlreadyClosed, Path: d.path}
	}
	if err := os.RemoveAll(d.path); err != nil {
		d.recorder.IncCloseResult(metrics.ResultFailed)
		return &Error{Kind: KindClose, Path: d.path, Cause: err, Retryable: true}
	}
	d.closed = true
	d.cleanup.Stop()
	d.recorder.IncCloseResult(metrics.ResultSuccess)
	slog.Debug("Closed scratch directory", logfields.Path(d.path))
	return nil
}

// Detach disarms the abandonment cleanup so the directory outlives the
// handle. The CLI uses this for directories that must survive process exit;
// such directories are reclaimed by the sweep tooling instead. Close keeps
// working after Detach.
func (d *Dir) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanup.Stop()
}
