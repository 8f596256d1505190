package scratchdir

import (
	"os"

	"git.home.luguber.info/inful/scratchdir/metrics"
)

type options struct {
	baseDir  string
	suffix   func() string
	recorder metrics.Recorder
}

// Option configures creation of a Dir.
type Option func(*options)

func defaultOptions() options {
	return options{
		baseDir:  os.TempDir(),
		suffix:   randomSuffix,
		recorder: metrics.NoopRecorder{},
	}
}

// WithBaseDir places the directory under dir instead of os.TempDir().
// Tests use this to sandbox the conventional temp root.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.baseDir = dir
		}
	}
}

// WithSuffixFunc replaces the random-suffix source. The function is called
// once per creation attempt; New retries with a fresh suffix when the
// candidate path already exists.
func WithSuffixFunc(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.suffix = fn
		}
	}
}

// WithRecorder injects a metrics recorder for lifecycle and copy metrics.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

type copyOptions struct {
	concurrency int
}

// CopyOption configures a single Copy call.
type CopyOption func(*copyOptions)

// WithConcurrency copies up to n regular files in parallel. Directory
// creation stays on the traversal goroutine, so every directory of a subtree
// exists before files are written into it. Values below 2 keep the copy
// sequential. Keep n modest to avoid exhausting file descriptors.
func WithConcurrency(n int) CopyOption {
	return func(o *copyOptions) {
		if n > 1 {
			o.concurrency = n
		}
	}
}
