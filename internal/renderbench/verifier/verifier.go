package verifier

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/renderbench/metrics"
	"github.com/armadaproject/renderbench/internal/renderbench/stats"
)

// maxLoggedFailures caps how many unconfirmed job ids are listed in the log. The report always has all of them.
const maxLoggedFailures = 10

type Status string

const (
	StatusCompleted   Status = "completed"
	StatusTimeout     Status = "timeout"
	StatusInterrupted Status = "interrupted"
)

// ObjectStore answers whether a rendered artifact exists.
type ObjectStore interface {
	Exists(ctx *runcontext.Context, key string) (bool, error)
}

// Report describes one verification. FailedJobs keeps the order the ids were passed in.
type Report struct {
	Status              Status    `json:"status"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	TotalJobs           int       `json:"total_jobs"`
	CompletedJobs       int       `json:"completed_jobs"`
	ElapsedSeconds      float64   `json:"elapsed_seconds"`
	ThroughputPerSecond float64   `json:"throughput_per_second"`
	Rounds              int       `json:"rounds"`
	FailedJobs          []string  `json:"failed_jobs,omitempty"`
	FailedCount         int       `json:"failed_count"`
	Error               string    `json:"error,omitempty"`
}

type Verifier struct {
	store     ObjectStore
	keySuffix string
	clock     clock.Clock
	metrics   *metrics.Metrics
	confirmed map[string]struct{}
}

type Option func(*Verifier)

// WithKeySuffix sets the suffix appended to a job id to form its object key.
func WithKeySuffix(suffix string) Option {
	return func(v *Verifier) { v.keySuffix = suffix }
}

func WithClock(c clock.Clock) Option {
	return func(v *Verifier) { v.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

func New(store ObjectStore, opts ...Option) *Verifier {
	v := &Verifier{
		store:     store,
		keySuffix: ".pdf",
		clock:     clock.RealClock{},
		confirmed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Confirmed reports whether an artifact has been seen for jobId. Confirmations persist across calls to Verify.
func (v *Verifier) Confirmed(jobId string) bool {
	_, ok := v.confirmed[jobId]
	return ok
}

// Verify polls the object store every pollInterval until an artifact exists for every job id, timeout has
// elapsed or ctx is cancelled. A timeout of zero polls until completion or cancellation.
//
// Errors from the store count as "not found" for that round. Verify always returns a report.
func (v *Verifier) Verify(ctx *runcontext.Context, jobIds []string, pollInterval, timeout time.Duration) *Report {
	log := ctx.Log
	start := v.clock.Now()
	report := &Report{StartedAt: start, TotalJobs: len(jobIds)}
	log.Infof("Starting verification of %d job ids", len(jobIds))

	status := v.poll(ctx, jobIds, pollInterval, timeout, start, report)

	report.FinishedAt = v.clock.Now()
	report.Status = status
	report.ElapsedSeconds = report.FinishedAt.Sub(start).Seconds()
	report.CompletedJobs = v.countConfirmed(jobIds)
	report.ThroughputPerSecond = stats.Throughput(report.CompletedJobs, report.ElapsedSeconds)
	if status != StatusInterrupted {
		report.FailedJobs = v.unconfirmed(jobIds)
		report.FailedCount = len(report.FailedJobs)
	} else {
		report.FailedCount = report.TotalJobs - report.CompletedJobs
	}
	v.metrics.SetVerification(report.CompletedJobs, report.TotalJobs)
	logReport(ctx, report)
	return report
}

func (v *Verifier) poll(
	ctx *runcontext.Context,
	jobIds []string,
	pollInterval, timeout time.Duration,
	start time.Time,
	report *Report,
) Status {
	for {
		pending := v.unconfirmed(jobIds)
		if len(pending) == 0 {
			ctx.Log.Info("All jobs completed")
			return StatusCompleted
		}
		if ctx.Err() != nil {
			return StatusInterrupted
		}
		elapsed := v.clock.Since(start)
		if timeout > 0 && elapsed >= timeout {
			return StatusTimeout
		}

		ctx.Log.Infof("Checking %d remaining jobs", len(pending))
		var deadline time.Time
		if timeout > 0 {
			deadline = start.Add(timeout)
		}
		newlyConfirmed, interrupted := v.checkRound(ctx, pending, deadline)
		report.Rounds++
		v.metrics.SetVerification(v.countConfirmed(jobIds), len(jobIds))
		if interrupted {
			return StatusInterrupted
		}
		v.logProgress(ctx, jobIds, newlyConfirmed, v.clock.Since(start))
		if newlyConfirmed == len(pending) {
			continue
		}

		wait := pollInterval
		if timeout > 0 {
			remaining := timeout - v.clock.Since(start)
			if remaining <= 0 {
				continue
			}
			if remaining < wait {
				wait = remaining
			}
		}
		ctx.Log.Debugf("Waiting %s before next check", wait)
		select {
		case <-ctx.Done():
			return StatusInterrupted
		case <-v.clock.After(wait):
		}
	}
}

// checkRound asks the store about every pending id once, stopping early once deadline has passed.
// A zero deadline never expires.
func (v *Verifier) checkRound(ctx *runcontext.Context, pending []string, deadline time.Time) (newlyConfirmed int, interrupted bool) {
	var failedChecks int
	var lastErr error
	for i, jobId := range pending {
		if ctx.Err() != nil {
			return newlyConfirmed, true
		}
		if !deadline.IsZero() && !v.clock.Now().Before(deadline) {
			ctx.Log.Warnf("Verification timeout reached with %d jobs left unchecked this round", len(pending)-i)
			break
		}
		exists, err := v.store.Exists(ctx, jobId+v.keySuffix)
		if err != nil {
			if ctx.Err() != nil {
				return newlyConfirmed, true
			}
			failedChecks++
			lastErr = err
			ctx.Log.WithError(err).Debugf("Checking job %s failed", jobId)
			continue
		}
		if exists {
			v.confirmed[jobId] = struct{}{}
			newlyConfirmed++
			ctx.Log.Debugf("Job %s is complete", jobId)
		}
	}
	if failedChecks > 0 {
		ctx.Log.WithError(lastErr).Warnf("%d existence checks failed this round", failedChecks)
	}
	return newlyConfirmed, false
}

func (v *Verifier) logProgress(ctx *runcontext.Context, jobIds []string, newlyConfirmed int, elapsed time.Duration) {
	confirmed := v.countConfirmed(jobIds)
	total := len(jobIds)
	seconds := elapsed.Seconds()
	rate := stats.Throughput(confirmed, seconds)
	ctx.Log.Infof("Time elapsed: %.2fs", seconds)
	ctx.Log.Infof("Completed: %d/%d (%.2f%%)", confirmed, total, percentage(confirmed, total))
	ctx.Log.Infof("Current rate: %.2f documents/second", rate)
	ctx.Log.Infof("Newly completed this round: %d", newlyConfirmed)
	if rate > 0 {
		ctx.Log.Infof("Estimated time remaining: %.2f seconds", float64(total-confirmed)/rate)
	}
}

func (v *Verifier) unconfirmed(jobIds []string) []string {
	var pending []string
	for _, jobId := range jobIds {
		if !v.Confirmed(jobId) {
			pending = append(pending, jobId)
		}
	}
	return pending
}

func (v *Verifier) countConfirmed(jobIds []string) int {
	n := 0
	for _, jobId := range jobIds {
		if v.Confirmed(jobId) {
			n++
		}
	}
	return n
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(n) / float64(total) * 100
}

func logReport(ctx *runcontext.Context, r *Report) {
	log := ctx.Log.WithField("status", r.Status)
	switch r.Status {
	case StatusInterrupted:
		log.Warn("Verification interrupted")
	case StatusTimeout:
		log.Warn("Verification timed out")
	}
	log.Info("--- Verification Results ---")
	log.Infof("Total jobs completed: %d/%d (%.2f%%)", r.CompletedJobs, r.TotalJobs, percentage(r.CompletedJobs, r.TotalJobs))
	log.Infof("Total time: %.2f seconds", r.ElapsedSeconds)
	log.Infof("Average throughput: %.2f documents/second", r.ThroughputPerSecond)
	if len(r.FailedJobs) > 0 {
		log.Warnf("Failed jobs: %d", r.FailedCount)
		for i, jobId := range r.FailedJobs {
			if i == maxLoggedFailures {
				log.Warnf("... and %d more", len(r.FailedJobs)-maxLoggedFailures)
				break
			}
			log.Warnf("Failed job: %s", jobId)
		}
	}
}
