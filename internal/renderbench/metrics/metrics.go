package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/common/serve"
)

const MetricsPrefix = "renderbench_"

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Metrics records the progress of a run. A nil *Metrics records nothing, so components can be used
// without a registry.
type Metrics struct {
	batches       *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	retries       prometheus.Counter
	batchLatency  prometheus.Histogram
	inFlight      prometheus.Gauge
	queueDepth    *prometheus.GaugeVec
	verifiedJobs  prometheus.Gauge
	pendingJobs   prometheus.Gauge
	phaseDuration *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "batches_total",
			Help: "Number of batches sent, grouped by outcome",
		}, []string{"outcome"}),
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricsPrefix + "jobs_total",
			Help: "Number of jobs submitted, grouped by outcome",
		}, []string{"outcome"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: MetricsPrefix + "batch_retries_total",
			Help: "Number of times a batch was resent after a transient error",
		}),
		batchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricsPrefix + "batch_latency_seconds",
			Help:    "Wall time of a batch request",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: MetricsPrefix + "batches_in_flight",
			Help: "Number of batches awaiting a response",
		}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricsPrefix + "queue_depth",
			Help: "Last observed depth of the work queue",
		}, []string{"queue"}),
		verifiedJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: MetricsPrefix + "verified_jobs",
			Help: "Number of jobs whose document was found in object storage",
		}),
		pendingJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: MetricsPrefix + "unverified_jobs",
			Help: "Number of jobs whose document has not been found yet",
		}),
		phaseDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricsPrefix + "phase_duration_seconds",
			Help: "Duration of each completed phase of the run",
		}, []string{"phase"}),
	}
}

func (m *Metrics) RecordBatch(outcome Outcome, latencySeconds float64) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(string(outcome)).Inc()
	m.batchLatency.Observe(latencySeconds)
}

func (m *Metrics) RecordJobs(outcome Outcome, n int) {
	if m == nil || n == 0 {
		return
	}
	m.jobs.WithLabelValues(string(outcome)).Add(float64(n))
}

func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) BatchFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) SetQueueDepth(queue string, depth int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) SetVerification(confirmed, total int) {
	if m == nil {
		return
	}
	m.verifiedJobs.Set(float64(confirmed))
	m.pendingJobs.Set(float64(total - confirmed))
}

func (m *Metrics) SetPhaseDuration(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Set(seconds)
}

// Serve exposes the metrics gathered by g on /metrics until ctx is done.
func Serve(ctx *runcontext.Context, port uint16, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return serve.ListenAndServe(ctx, server)
}
