package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
	"github.com/armadaproject/renderbench/internal/common/logging"
	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/common/util"
	"github.com/armadaproject/renderbench/internal/renderbench/configuration"
	"github.com/armadaproject/renderbench/internal/renderbench/dispatcher"
	"github.com/armadaproject/renderbench/internal/renderbench/metrics"
	"github.com/armadaproject/renderbench/internal/renderbench/results"
	"github.com/armadaproject/renderbench/internal/renderbench/stats"
	"github.com/armadaproject/renderbench/internal/renderbench/verifier"
)

const archiveTimeout = 10 * time.Second

type Dispatcher interface {
	Run(ctx *runcontext.Context, requests, batchSize, concurrency int) (*dispatcher.Result, error)
}

type DrainWatcher interface {
	AwaitDrain(ctx *runcontext.Context, pollInterval, hardTimeout time.Duration) (time.Time, error)
	Queue() string
}

type Verifier interface {
	Verify(ctx *runcontext.Context, jobIds []string, pollInterval, timeout time.Duration) *verifier.Report
}

// Archive keeps final reports beyond the output directory.
type Archive interface {
	Store(ctx *runcontext.Context, key string, value []byte) error
	CleanupAndLog(ctx *runcontext.Context, lifespan time.Duration)
}

type ResultWriter interface {
	WriteJSON(name string, v any) error
}

// Runner sequences the phases of a run. Phases never overlap.
type Runner struct {
	config     configuration.Config
	writer     ResultWriter
	dispatcher Dispatcher
	drain      DrainWatcher
	verifier   Verifier
	archive    Archive
	metrics    *metrics.Metrics
	rng        *rand.Rand
	clock      clock.PassiveClock
	summary    io.Writer
}

type Option func(*Runner)

func WithDispatcher(d Dispatcher) Option {
	return func(r *Runner) { r.dispatcher = d }
}

// WithDrainWatcher makes the run wait for the work queue to drain after dispatching. Without one, the
// dispatch duration is taken as the processing time.
func WithDrainWatcher(w DrainWatcher) Option {
	return func(r *Runner) { r.drain = w }
}

// WithVerifier enables the verification phase.
func WithVerifier(v Verifier) Option {
	return func(r *Runner) { r.verifier = v }
}

func WithArchive(a Archive) Option {
	return func(r *Runner) { r.archive = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithRand sets the source used to sample job ids for verification.
func WithRand(rng *rand.Rand) Option {
	return func(r *Runner) { r.rng = rng }
}

func WithClock(c clock.PassiveClock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithSummary prints a human-readable summary of every report to w.
func WithSummary(w io.Writer) Option {
	return func(r *Runner) { r.summary = w }
}

func NewRunner(config configuration.Config, writer ResultWriter, opts ...Option) *Runner {
	r := &Runner{
		config: config,
		writer: writer,
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = util.NewThreadsafeRand(r.clock.Now().UnixNano())
	}
	return r
}

// Run dispatches the configured number of jobs, waits for the work queue to drain, verifies a sample of
// the rendered documents and extrapolates the measured rate to the goal volume. A failing phase ends the
// run. Run always returns a report, which is also saved as performance_test_results.json.
func (r *Runner) Run(ctx *runcontext.Context) *Report {
	report := r.newReport(configuration.ModeTest)
	ctx.Log.Infof("Starting performance test %s", report.RunId)
	r.logParameters(ctx)
	err := r.runAll(ctx, report)
	return r.finish(ctx, report, err, results.PerformanceTestResultsFile)
}

// Dispatch runs the dispatch phase alone. The dispatch duration is taken as the processing time.
func (r *Runner) Dispatch(ctx *runcontext.Context) *Report {
	report := r.newReport(configuration.ModeDispatch)
	r.logParameters(ctx)
	err := r.phase(ctx, "dispatch", func() error {
		dispatched, err := r.dispatch(ctx, report)
		if err != nil {
			return err
		}
		r.setProcessing(ctx, report, &Processing{
			Source:                 ProcessingSourceDispatch,
			TotalProcessingSeconds: dispatched.Duration().Seconds(),
		}, dispatched.Metrics.SuccessfulRequests)
		return nil
	})
	return r.finish(ctx, report, err, "")
}

// VerifyFromFile verifies the job ids listed in path, one per line, as written by a dispatch run. The
// rate at which documents were confirmed is extrapolated to the goal volume.
func (r *Runner) VerifyFromFile(ctx *runcontext.Context, path string) *Report {
	report := r.newReport(configuration.ModeVerify)
	err := r.phase(ctx, "verify", func() error {
		if r.verifier == nil {
			return errors.New("no verifier configured")
		}
		jobIds, err := results.ReadJobIds(path)
		if err != nil {
			return err
		}
		ctx.Log.Infof("Loaded %d job IDs from %s", len(jobIds), path)
		verification := r.verify(ctx, jobIds)
		report.Verification = verification
		r.setProcessing(ctx, report, &Processing{
			Source:                 ProcessingSourceVerification,
			TotalProcessingSeconds: verification.ElapsedSeconds,
		}, verification.CompletedJobs)
		verification.Performance = report.Performance
		if err := r.writeVerification(ctx, verification); err != nil {
			return err
		}
		return interruptedError(ctx, verification.Report)
	})
	return r.finish(ctx, report, err, "")
}

func (r *Runner) runAll(ctx *runcontext.Context, report *Report) error {
	var dispatched *dispatcher.Result
	err := r.phase(ctx, "dispatch", func() error {
		var err error
		dispatched, err = r.dispatch(ctx, report)
		return err
	})
	if err != nil {
		return err
	}

	err = r.phase(ctx, "drain", func() error {
		processing, err := r.awaitProcessing(ctx, dispatched)
		if err != nil {
			return err
		}
		r.setProcessing(ctx, report, processing, dispatched.Metrics.SuccessfulRequests)
		return nil
	})
	if err != nil {
		return err
	}

	if r.verifier == nil {
		ctx.Log.Info("Verification disabled")
		return nil
	}
	return r.phase(ctx, "verify", func() error {
		verification := r.verify(ctx, dispatched.JobIds)
		report.Verification = verification
		if err := r.writeVerification(ctx, verification); err != nil {
			return err
		}
		return interruptedError(ctx, verification.Report)
	})
}

// phase runs f, turning a panic into an error so that the run still produces a report.
func (r *Runner) phase(ctx *runcontext.Context, name string, f func() error) (err error) {
	start := r.clock.Now()
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("%s phase panicked: %v", name, p)
		}
		r.metrics.SetPhaseDuration(name, r.clock.Since(start).Seconds())
		if err == nil {
			ctx.Log.WithField("phase", name).Debugf("Phase finished after %s", r.clock.Since(start).Round(time.Millisecond))
		}
	}()
	return f()
}

func (r *Runner) dispatch(ctx *runcontext.Context, report *Report) (*dispatcher.Result, error) {
	if r.dispatcher == nil {
		return nil, errors.New("no dispatcher configured")
	}
	cfg := r.config.Dispatch
	ctx.Log.Info("Sending requests")
	dispatched, err := r.dispatcher.Run(ctx, cfg.Requests, cfg.BatchSize, cfg.Concurrency)
	if dispatched != nil {
		report.LoadTest = &dispatched.Metrics
		report.FailureReasons = dispatched.FailureReasons
	}
	return dispatched, err
}

// awaitProcessing measures from the start of dispatch until the work queue drained.
func (r *Runner) awaitProcessing(ctx *runcontext.Context, dispatched *dispatcher.Result) (*Processing, error) {
	if r.drain == nil {
		ctx.Log.Info("No work queue configured, taking the dispatch duration as processing time")
		return &Processing{
			Source:                 ProcessingSourceDispatch,
			TotalProcessingSeconds: dispatched.Duration().Seconds(),
		}, nil
	}
	drainedAt, err := r.drain.AwaitDrain(ctx, r.config.Drain.PollInterval, r.config.Drain.Timeout)
	if err != nil {
		return nil, err
	}
	return &Processing{
		Source:                 ProcessingSourceQueueDrain,
		Queue:                  r.drain.Queue(),
		DrainedAt:              &drainedAt,
		TotalProcessingSeconds: drainedAt.Sub(dispatched.StartedAt).Seconds(),
	}, nil
}

func (r *Runner) setProcessing(ctx *runcontext.Context, report *Report, processing *Processing, successful int) {
	processing.ThroughputPerSecond = stats.Throughput(successful, processing.TotalProcessingSeconds)
	report.Processing = processing
	ctx.Log.Infof("Total processing time: %.2f seconds", processing.TotalProcessingSeconds)
	goal := r.config.Goal
	report.Performance = stats.Extrapolate(successful, processing.TotalProcessingSeconds, goal.TargetVolume, goal.TargetMinutes)
}

// verify checks a uniform sample of the distinct job ids.
func (r *Runner) verify(ctx *runcontext.Context, jobIds []string) *VerificationResults {
	distinct := util.Unique(jobIds)
	sample := util.Sample(r.rng, distinct, r.config.Verify.SampleSize)
	if len(sample) < len(distinct) {
		ctx.Log.Infof("Sampling %d job IDs from %d total", len(sample), len(distinct))
	}
	report := r.verifier.Verify(ctx, sample, r.config.Verify.PollInterval, r.config.Verify.Timeout)
	return &VerificationResults{
		Report:     report,
		Population: len(distinct),
		SampleSize: len(sample),
	}
}

func (r *Runner) writeVerification(ctx *runcontext.Context, verification *VerificationResults) error {
	if err := r.writer.WriteJSON(results.VerificationResultsFile, verification); err != nil {
		return errors.WithMessage(err, "saving verification results")
	}
	ctx.Log.Infof("Saved verification results to %s", results.VerificationResultsFile)
	return nil
}

func interruptedError(ctx *runcontext.Context, report *verifier.Report) error {
	if report.Status != verifier.StatusInterrupted {
		return nil
	}
	err := ctx.Err()
	if err == nil {
		err = context.Canceled
	}
	return errors.WithMessage(errors.WithStack(err), "verification interrupted")
}

func (r *Runner) newReport(mode configuration.Mode) *Report {
	cfg := r.config
	return &Report{
		RunId:     cfg.RunId,
		Mode:      mode.String(),
		StartedAt: r.clock.Now(),
		Parameters: Parameters{
			Endpoint:     cfg.Dispatch.Endpoint,
			TemplateId:   cfg.Dispatch.TemplateId,
			Requests:     cfg.Dispatch.Requests,
			BatchSize:    cfg.Dispatch.BatchSize,
			Concurrency:  cfg.Dispatch.Concurrency,
			Bucket:       cfg.Verify.Bucket,
			Region:       cfg.Aws.Region,
			DrainBackend: string(cfg.Drain.Backend),
		},
	}
}

func (r *Runner) logParameters(ctx *runcontext.Context) {
	cfg := r.config
	ctx.Log.Info("Starting performance test with the following parameters:")
	ctx.Log.Infof("API Endpoint: %s", cfg.Dispatch.Endpoint)
	ctx.Log.Infof("Template ID: %s", cfg.Dispatch.TemplateId)
	ctx.Log.Infof("Requests: %d", cfg.Dispatch.Requests)
	ctx.Log.Infof("Batch size: %d", cfg.Dispatch.BatchSize)
	ctx.Log.Infof("Concurrency: %d", cfg.Dispatch.Concurrency)
	ctx.Log.Infof("Result Bucket: %s", cfg.Verify.Bucket)
	ctx.Log.Infof("Region: %s", cfg.Aws.Region)
}

// finish settles the status of report, saves it under fileName unless empty, archives it and prints
// the summary.
func (r *Runner) finish(ctx *runcontext.Context, report *Report, err error, fileName string) *Report {
	report.FinishedAt = r.clock.Now()
	report.Status = StatusCompleted
	if err != nil {
		report.Error = err.Error()
		if benchmarkerrors.IsInterrupted(err) {
			report.Status = StatusInterrupted
			ctx.Log.Warnf("Run interrupted: %s", err)
		} else {
			report.Status = StatusError
			logging.WithStacktrace(ctx.Log, err).Error("Error during performance test")
		}
	}
	report.GoalAchieved = report.Performance != nil && report.Performance.GoalAchieved

	if fileName != "" {
		if err := r.writer.WriteJSON(fileName, report); err != nil {
			logging.WithStacktrace(ctx.Log, err).Errorf("Failed to save %s", fileName)
			if report.Status == StatusCompleted {
				report.Status = StatusError
				report.Error = err.Error()
			}
		} else {
			ctx.Log.Infof("Saved performance test results to %s", fileName)
		}
	}
	r.archiveReport(ctx, report)
	if r.summary != nil {
		PrintSummary(r.summary, r.config, report)
	}
	logOutcome(ctx, report)
	ctx.Log.Infof("Total test duration: %.2f seconds", report.FinishedAt.Sub(report.StartedAt).Seconds())
	return report
}

// archiveReport stores report under its run id and mode. It runs after a cancellation too, so it uses
// its own deadline rather than ctx.
func (r *Runner) archiveReport(ctx *runcontext.Context, report *Report) {
	if r.archive == nil {
		return
	}
	archiveCtx, cancel := runcontext.WithTimeout(runcontext.New(context.Background(), ctx.Log), archiveTimeout)
	defer cancel()

	value, err := json.Marshal(report)
	if err != nil {
		logging.WithStacktrace(ctx.Log, err).Warn("Failed to encode report for the archive")
		return
	}
	key := fmt.Sprintf("%s/%s", report.RunId, report.Mode)
	if err := r.archive.Store(archiveCtx, key, value); err != nil {
		logging.WithStacktrace(ctx.Log, err).Warnf("Failed to archive report %s", key)
		return
	}
	ctx.Log.Infof("Archived report as %s", key)
	r.archive.CleanupAndLog(archiveCtx, r.config.Archive.Retention)
}

func logOutcome(ctx *runcontext.Context, report *Report) {
	if report.LoadTest != nil {
		ctx.Log.Infof("Test completed with %d/%d successful requests", report.LoadTest.SuccessfulRequests, report.LoadTest.TotalRequests)
	}
	if report.Processing != nil {
		ctx.Log.Infof("Processing throughput: %.2f documents/second", report.Processing.ThroughputPerSecond)
	}
	if p := report.Performance; p != nil {
		verdict := "Goal not achieved"
		if p.GoalAchieved {
			verdict = "Goal achieved"
		}
		ctx.Log.Infof("%s: %.2f minutes for %d documents (target: %g minutes)", verdict, p.ProjectedMinutes, p.TargetVolume, p.TargetMinutes)
	}
	switch report.ExitCode() {
	case ExitFailure:
		ctx.Log.Errorf("Test failed: %s", report.Error)
	case ExitGoalMissed:
		ctx.Log.Info("Test completed but performance goal was not met")
	default:
		ctx.Log.Info("Test completed successfully")
	}
}
