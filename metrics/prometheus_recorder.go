package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	createResults  *prom.CounterVec
	createAttempts prom.Histogram
	closeResults   *prom.CounterVec
	copyDuration   *prom.HistogramVec
	copyFiles      prom.Counter
	copyBytes      prom.Counter
	sweepRemoved   prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.createResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "scratchdir",
			Name:      "create_results_total",
			Help:      "Directory creation results by outcome",
		}, []string{"result"})
		pr.createAttempts = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "scratchdir",
			Name:      "create_attempts",
			Help:      "Name-generation attempts consumed per successful create",
			Buckets:   prom.LinearBuckets(1, 1, 10),
		})
		pr.closeResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "scratchdir",
			Name:      "close_results_total",
			Help:      "Directory close results by outcome",
		}, []string{"result"})
		pr.copyDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "scratchdir",
			Name:      "copy_duration_seconds",
			Help:      "Duration of tree copy operations",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.copyFiles = prom.NewCounter(prom.CounterOpts{
			Namespace: "scratchdir",
			Name:      "copy_files_total",
			Help:      "Regular files copied into scratch directories",
		})
		pr.copyBytes = prom.NewCounter(prom.CounterOpts{
			Namespace: "scratchdir",
			Name:      "copy_bytes_total",
			Help:      "Bytes copied into scratch directories",
		})
		pr.sweepRemoved = prom.NewCounter(prom.CounterOpts{
			Namespace: "scratchdir",
			Name:      "sweep_removed_total",
			Help:      "Expired scratch directories removed by the sweeper",
		})
		reg.MustRegister(pr.createResults, pr.createAttempts, pr.closeResults, pr.copyDuration, pr.copyFiles, pr.copyBytes, pr.sweepRemoved)
	})
	return pr
}

func (p *PrometheusRecorder) IncCreateResult(result ResultLabel) {
	if p == nil || p.createResults == nil {
		return
	}
	p.createResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveCreateAttempts(n int) {
	if p == nil || p.createAttempts == nil {
		return
	}
	p.createAttempts.Observe(float64(n))
}

func (p *PrometheusRecorder) IncCloseResult(result ResultLabel) {
	if p == nil || p.closeResults == nil {
		return
	}
	p.closeResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveCopyDuration(d time.Duration, result ResultLabel) {
	if p == nil || p.copyDuration == nil {
		return
	}
	p.copyDuration.WithLabelValues(string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddCopyFiles(n int64) {
	if p == nil || p.copyFiles == nil {
		return
	}
	p.copyFiles.Add(float64(n))
}

func (p *PrometheusRecorder) AddCopyBytes(n int64) {
	if p == nil || p.copyBytes == nil {
		return
	}
	p.copyBytes.Add(float64(n))
}

func (p *PrometheusRecorder) AddSweepRemoved(n int) {
	if p == nil || p.sweepRemoved == nil {
		return
	}
	p.sweepRemoved.Add(float64(n))
}
