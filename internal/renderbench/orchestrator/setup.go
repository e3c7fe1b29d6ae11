package orchestrator

import (
	"io"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/armadaproject/renderbench/internal/common/awsutil"
	"github.com/armadaproject/renderbench/internal/common/pgkeyvalue"
	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/common/util"
	"github.com/armadaproject/renderbench/internal/renderbench/configuration"
	"github.com/armadaproject/renderbench/internal/renderbench/dispatcher"
	"github.com/armadaproject/renderbench/internal/renderbench/drainwatcher"
	"github.com/armadaproject/renderbench/internal/renderbench/metrics"
	"github.com/armadaproject/renderbench/internal/renderbench/payload"
	"github.com/armadaproject/renderbench/internal/renderbench/results"
	"github.com/armadaproject/renderbench/internal/renderbench/verifier"
)

// Build assembles a Runner for mode from cfg, connecting to every backend cfg names. The returned
// function closes those connections and must be called once the run is over.
func Build(
	ctx *runcontext.Context,
	cfg configuration.Config,
	mode configuration.Mode,
	reg prometheus.Registerer,
	summary io.Writer,
) (*Runner, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Runner, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	if cfg.RunId == "" {
		cfg.RunId = uuid.NewString()
	}
	m := metrics.New(reg)
	writer := results.NewWriter(cfg.OutputDir)
	opts := []Option{WithMetrics(m)}
	if !cfg.Quiet && summary != nil {
		opts = append(opts, WithSummary(summary))
	}

	if mode != configuration.ModeVerify {
		d, err := newDispatcher(cfg, writer, m)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, WithDispatcher(d))
	}

	if mode == configuration.ModeTest && cfg.Drain.Backend != configuration.DrainBackendNone {
		source, closeSource, err := newDepthSource(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, closeSource)
		opts = append(opts, WithDrainWatcher(drainwatcher.New(source, m)))
	}

	if mode == configuration.ModeVerify || (mode == configuration.ModeTest && cfg.Verify.Enabled) {
		awsOpts := awsutil.Options{Region: cfg.Aws.Region, Endpoint: cfg.Aws.Endpoint}
		awsConfig, err := awsutil.LoadConfig(ctx, awsOpts)
		if err != nil {
			return fail(err)
		}
		store := verifier.NewS3Store(awsutil.NewS3Client(awsConfig, awsOpts), cfg.Verify.Bucket)
		v := verifier.New(store, verifier.WithKeySuffix(cfg.Verify.KeySuffix), verifier.WithMetrics(m))
		opts = append(opts, WithVerifier(v))
	}

	if cfg.Archive.PostgresUrl != "" {
		pool, err := pgxpool.New(ctx, cfg.Archive.PostgresUrl)
		if err != nil {
			return fail(errors.Wrap(err, "connecting to the archive database"))
		}
		closers = append(closers, pool.Close)
		archive, err := pgkeyvalue.New(ctx, pool, cfg.Archive.Table)
		if err != nil {
			return fail(errors.WithMessage(err, "preparing the archive table"))
		}
		opts = append(opts, WithArchive(archive))
	}

	return NewRunner(cfg, writer, opts...), cleanup, nil
}

func newDispatcher(cfg configuration.Config, writer *results.Writer, m *metrics.Metrics) (*dispatcher.Dispatcher, error) {
	dc := cfg.Dispatch
	var submitter dispatcher.Submitter
	submitter, err := dispatcher.NewHTTPSubmitter(dc.Endpoint, dc.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if dc.Retries > 0 {
		submitter = dispatcher.NewRetryingSubmitter(submitter, dc.Retries, dc.RetryDelay, m)
	}
	generator := payload.NewGenerator(dc.TemplateId)
	generator.Seed = dc.Seed
	return dispatcher.New(
		submitter,
		generator,
		dispatcher.WithSink(writer),
		dispatcher.WithMetrics(m),
		dispatcher.WithProgressEvery(dc.ProgressEvery),
	), nil
}

// newDepthSource connects to the configured work queue backend.
func newDepthSource(ctx *runcontext.Context, cfg configuration.Config) (drainwatcher.DepthSource, func(), error) {
	noop := func() {}
	switch cfg.Drain.Backend {
	case configuration.DrainBackendSqs:
		sc := cfg.Drain.Sqs
		awsOpts := awsutil.Options{Region: cfg.Aws.Region, Endpoint: cfg.Aws.Endpoint}
		awsConfig, err := awsutil.LoadConfig(ctx, awsOpts)
		if err != nil {
			return nil, noop, err
		}
		client := awsutil.NewSQSClient(awsConfig, awsOpts)
		if sc.QueueUrl != "" {
			return drainwatcher.NewSQSSource(client, sc.QueueUrl, sc.IncludeInFlight), noop, nil
		}
		source, err := drainwatcher.NewSQSSourceForQueueName(ctx, client, sc.QueueName, sc.IncludeInFlight)
		return source, noop, err

	case configuration.DrainBackendRedis:
		rc := cfg.Drain.Redis
		client := redis.NewUniversalClient(rc.Redis.AsUniversalOptions())
		closeClient := func() { util.CloseResource(ctx.Log, "redis", client) }
		if err := client.Ping().Err(); err != nil {
			closeClient()
			return nil, noop, errors.Wrap(err, "connecting to redis")
		}
		return drainwatcher.NewRedisListSource(client, rc.Key), closeClient, nil

	case configuration.DrainBackendJetStream:
		jc := cfg.Drain.JetStream
		conn, err := nats.Connect(jc.Url, nats.Name("renderbench"), nats.Timeout(connectTimeout(jc.RequestTimeout)))
		if err != nil {
			return nil, noop, errors.Wrapf(err, "connecting to %s", jc.Url)
		}
		js, err := conn.JetStream(nats.MaxWait(jc.RequestTimeout))
		if err != nil {
			conn.Close()
			return nil, noop, errors.WithStack(err)
		}
		return drainwatcher.NewJetStreamSource(js, jc.Stream, jc.Consumer), conn.Close, nil
	}
	return nil, noop, errors.Errorf("unsupported drain backend %q", cfg.Drain.Backend)
}

func connectTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		return nats.DefaultTimeout
	}
	return requestTimeout
}

// ServeMetrics runs f while serving the metrics gathered by g on port. The server stops once f returns.
// A port of zero runs f without a server.
func ServeMetrics(ctx *runcontext.Context, port uint16, g prometheus.Gatherer, f func(ctx *runcontext.Context) *Report) *Report {
	if port == 0 {
		return f(ctx)
	}
	serverCtx, stop := runcontext.WithCancel(ctx)
	group, groupCtx := runcontext.ErrGroup(serverCtx)
	group.Go(func() error {
		return metrics.Serve(groupCtx, port, g)
	})
	report := f(ctx)
	stop()
	if err := group.Wait(); err != nil {
		ctx.Log.WithError(err).Warn("Metrics server failed")
	}
	return report
}
