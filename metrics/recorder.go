package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// Recorder defines observability hooks for directory lifecycle, copy and
// sweep metrics. Implementations may forward to Prometheus, OpenTelemetry,
// etc. The NoopRecorder is the default when metrics are not configured.
type Recorder interface {
	IncCreateResult(result ResultLabel)
	ObserveCreateAttempts(n int) // attempts consumed by one successful create
	IncCloseResult(result ResultLabel)
	ObserveCopyDuration(d time.Duration, result ResultLabel)
	AddCopyFiles(n int64)
	AddCopyBytes(n int64)
	AddSweepRemoved(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncCreateResult(ResultLabel)                    {}
func (NoopRecorder) ObserveCreateAttempts(int)                      {}
func (NoopRecorder) IncCloseResult(ResultLabel)                     {}
func (NoopRecorder) ObserveCopyDuration(time.Duration, ResultLabel) {}
func (NoopRecorder) AddCopyFiles(int64)                             {}
func (NoopRecorder) AddCopyBytes(int64)                             {}
func (NoopRecorder) AddSweepRemoved(int)                            {}
