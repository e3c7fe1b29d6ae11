package dispatcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
	"github.com/armadaproject/renderbench/internal/common/logging"
	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/common/util"
	"github.com/armadaproject/renderbench/internal/renderbench/metrics"
	"github.com/armadaproject/renderbench/internal/renderbench/payload"
	"github.com/armadaproject/renderbench/internal/renderbench/results"
	"github.com/armadaproject/renderbench/internal/renderbench/stats"
)

const (
	reasonCancelled = "run cancelled before the batch was sent"
	reasonMissing   = "missing from response"
)

// PayloadSource produces the job for a request index.
type PayloadSource interface {
	Request(index int) payload.JobRequest
}

// ResultSink persists what a dispatch produced, so that verification can run in another process.
type ResultSink interface {
	WriteJobIds(jobIds []string) error
	WriteJSON(name string, v any) error
}

// Dispatcher submits jobs in batches with a bounded number of batches in flight.
type Dispatcher struct {
	submitter     Submitter
	payloads      PayloadSource
	sink          ResultSink
	metrics       *metrics.Metrics
	progressEvery int
	clock         clock.PassiveClock
}

type Option func(*Dispatcher)

// WithSink persists job ids and the load test results at the end of every run.
func WithSink(sink ResultSink) Option {
	return func(d *Dispatcher) { d.sink = sink }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithProgressEvery logs progress whenever the number of successful jobs crosses a multiple of n.
func WithProgressEvery(n int) Option {
	return func(d *Dispatcher) { d.progressEvery = n }
}

func WithClock(c clock.PassiveClock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func New(submitter Submitter, payloads PayloadSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		submitter:     submitter,
		payloads:      payloads,
		progressEvery: 100,
		clock:         clock.RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// collector gathers outcomes from concurrently running batches.
type collector struct {
	mu            sync.Mutex
	start         time.Time
	clock         clock.PassiveClock
	progressEvery int
	log           func(successful int, throughput float64)

	outcomes      []JobOutcome
	jobIds        []string
	latencies     []float64
	successful    int
	failedBatches int
	reasons       map[string]int
}

func (c *collector) add(outcomes []JobOutcome, batchFailed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.successful
	for _, o := range outcomes {
		c.outcomes = append(c.outcomes, o)
		if o.Success {
			c.jobIds = append(c.jobIds, o.JobId)
			c.latencies = append(c.latencies, o.LatencySeconds)
			c.successful++
		} else {
			c.reasons[o.Reason]++
		}
	}
	if batchFailed {
		c.failedBatches++
	}
	if c.progressEvery > 0 && c.successful/c.progressEvery > before/c.progressEvery {
		elapsed := c.clock.Since(c.start).Seconds()
		c.log(c.successful, stats.Throughput(c.successful, elapsed))
	}
}

// Run submits requests jobs in batches of batchSize, keeping at most concurrency batches in flight.
// A new batch starts as soon as any running one completes. Every request slot ends up as exactly one
// JobOutcome, so successful plus failed always equals requests.
//
// If ctx is cancelled, batches not yet started are recorded as failed and the partial result is returned
// together with the cancellation error.
func (d *Dispatcher) Run(ctx *runcontext.Context, requests, batchSize, concurrency int) (*Result, error) {
	if requests < 0 {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{Name: "requests", Value: requests, Message: "must not be negative"})
	}
	if batchSize <= 0 {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{Name: "batchSize", Value: batchSize, Message: "must be positive"})
	}
	if concurrency <= 0 {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{Name: "concurrency", Value: concurrency, Message: "must be positive"})
	}

	numBatches := util.BatchCount(requests, batchSize)
	ctx.Log.Infof("Starting load test: %d requests in %d batches of up to %d, %d batches in flight", requests, numBatches, batchSize, concurrency)

	start := d.clock.Now()
	c := &collector{
		start:         start,
		clock:         d.clock,
		progressEvery: d.progressEvery,
		reasons:       map[string]int{},
		outcomes:      make([]JobOutcome, 0, requests),
		log: func(successful int, throughput float64) {
			ctx.Log.WithField("successful", successful).Infof("Sent %d requests, current rate: %.2f req/sec", successful, throughput)
		},
	}

	g := errgroup.Group{}
	g.SetLimit(concurrency)
	for b := 0; b < numBatches; b++ {
		first := b * batchSize
		size := batchSize
		if first+size > requests {
			size = requests - first
		}
		if ctx.Err() != nil {
			c.add(failAll(size, 0, reasonCancelled), true)
			continue
		}
		g.Go(func() error {
			// Go blocks until a slot is free, so the run may have been cancelled in the meantime.
			if ctx.Err() != nil {
				c.add(failAll(size, 0, reasonCancelled), true)
				return nil
			}
			outcomes, failed := d.sendBatch(ctx, first, size)
			c.add(outcomes, failed)
			return nil
		})
	}
	// Batches never return errors; failures are recorded as outcomes.
	_ = g.Wait()

	finished := d.clock.Now()
	result := &Result{
		StartedAt:      start,
		FinishedAt:     finished,
		Batches:        numBatches,
		FailedBatches:  c.failedBatches,
		Metrics:        stats.ComputeRunMetrics(requests, c.successful, c.latencies, finished.Sub(start)),
		JobIds:         c.jobIds,
		Latencies:      c.latencies,
		Outcomes:       c.outcomes,
		FailureReasons: c.reasons,
	}
	if len(result.FailureReasons) == 0 {
		result.FailureReasons = nil
	}
	if result.JobIds == nil {
		result.JobIds = []string{}
	}
	logResult(ctx, result)

	var err error
	if d.sink != nil {
		err = d.persist(ctx, result)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, errors.WithMessage(errors.WithStack(ctxErr), "dispatch interrupted")
	}
	return result, err
}

// sendBatch submits the jobs for indices [first, first+size) and turns the response into one outcome per job.
// The second return value is true if the whole batch failed.
func (d *Dispatcher) sendBatch(ctx *runcontext.Context, first, size int) ([]JobOutcome, bool) {
	jobs := make([]payload.JobRequest, size)
	for i := range jobs {
		jobs[i] = d.payloads.Request(first + i)
	}

	d.metrics.BatchStarted()
	start := d.clock.Now()
	resp, err := d.submitter.Submit(ctx, jobs)
	elapsed := d.clock.Since(start).Seconds()
	d.metrics.BatchFinished()

	if err != nil {
		status := 0
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
		}
		logging.WithStacktrace(ctx.Log, err).
			WithField("firstRequest", first).
			WithField("status", status).
			Errorf("Batch request failed: %s", err)
		d.metrics.RecordBatch(metrics.OutcomeFailed, elapsed)
		d.metrics.RecordJobs(metrics.OutcomeFailed, size)
		return failAll(size, status, errors.Cause(err).Error()), true
	}

	outcomes := outcomesFromResponse(resp, size, elapsed)
	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	if len(resp.Results) > size {
		ctx.Log.Warnf("Response lists %d results for a batch of %d jobs, ignoring the surplus", len(resp.Results), size)
	}
	ctx.Log.Debugf("Batch starting at %d succeeded with %d successful results, latency: %.4fs", first, succeeded, elapsed)
	d.metrics.RecordBatch(metrics.OutcomeSucceeded, elapsed)
	d.metrics.RecordJobs(metrics.OutcomeSucceeded, succeeded)
	d.metrics.RecordJobs(metrics.OutcomeFailed, size-succeeded)
	return outcomes, false
}

// outcomesFromResponse maps the i-th result to the i-th job. Jobs without a result fail.
func outcomesFromResponse(resp *BatchResponse, size int, elapsedSeconds float64) []JobOutcome {
	latency := elapsedSeconds / float64(size)
	outcomes := make([]JobOutcome, size)
	for i := range outcomes {
		o := JobOutcome{HttpStatus: 200}
		switch {
		case i >= len(resp.Results):
			o.Reason = reasonMissing
		case resp.Results[i].Status != StatusSuccess:
			r := resp.Results[i]
			o.Reason = r.Error
			if o.Reason == "" {
				o.Reason = fmt.Sprintf("status %q", r.Status)
			}
		case resp.Results[i].JobId == "":
			o.Reason = "success without a job id"
		default:
			o.Success = true
			o.JobId = resp.Results[i].JobId
			o.LatencySeconds = latency
		}
		outcomes[i] = o
	}
	return outcomes
}

func failAll(size, status int, reason string) []JobOutcome {
	outcomes := make([]JobOutcome, size)
	for i := range outcomes {
		outcomes[i] = JobOutcome{HttpStatus: status, Reason: reason}
	}
	return outcomes
}

func (d *Dispatcher) persist(ctx *runcontext.Context, result *Result) error {
	if err := d.sink.WriteJobIds(result.JobIds); err != nil {
		return errors.WithMessage(err, "saving job ids")
	}
	ctx.Log.Infof("Saved %d job IDs to %s", len(result.JobIds), results.JobIdsFile)
	if err := d.sink.WriteJSON(results.LoadTestResultsFile, result); err != nil {
		return errors.WithMessage(err, "saving load test results")
	}
	ctx.Log.Infof("Saved load test results to %s", results.LoadTestResultsFile)
	return nil
}

func logResult(ctx *runcontext.Context, result *Result) {
	m := result.Metrics
	ctx.Log.Info("--- Load Test Results ---")
	ctx.Log.Infof("Total time: %.2f seconds", m.DurationSeconds)
	ctx.Log.Infof("Successful requests: %d/%d", m.SuccessfulRequests, m.TotalRequests)
	ctx.Log.Infof("Average throughput: %.2f requests/second", m.ThroughputPerSecond)
	if l := m.Latency; l != nil {
		ctx.Log.Infof("Min latency: %.4f seconds", l.Min)
		ctx.Log.Infof("Max latency: %.4f seconds", l.Max)
		ctx.Log.Infof("Average latency: %.4f seconds", l.Mean)
		ctx.Log.Infof("P90 latency: %.4f seconds", l.P90)
		if l.Stddev != nil {
			ctx.Log.Infof("Latency standard deviation: %.4f seconds", *l.Stddev)
		}
	}
	for reason, count := range result.FailureReasons {
		ctx.Log.WithField("count", count).Warnf("Failed requests: %s", reason)
	}
}
