package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/armadaproject/renderbench/internal/renderbench/configuration"
)

// params carries the viper instance every flag is bound to. Each flag maps onto one configuration key.
type params struct {
	v          *viper.Viper
	configFile string
	defaults   configuration.Config
	bindings   map[*pflag.FlagSet]map[string]string
}

func newParams(v *viper.Viper) *params {
	configuration.SetDefaults(v)
	return &params{
		v:        v,
		defaults: configuration.Default(),
		bindings: map[*pflag.FlagSet]map[string]string{},
	}
}

// bind records that flag name of fs sets key. Bindings are applied by initParams, once cobra has picked
// the command being run, so that commands sharing a key do not overwrite each other's bindings.
func (p *params) bind(fs *pflag.FlagSet, name, key string) {
	if p.bindings[fs] == nil {
		p.bindings[fs] = map[string]string{}
	}
	p.bindings[fs][name] = key
}

func (p *params) addCommonFlags(cmd *cobra.Command) {
	d := p.defaults
	fs := cmd.PersistentFlags()
	fs.StringVar(&p.configFile, "config", "", "YAML configuration file")
	fs.String("output-dir", d.OutputDir, "Directory for the job id list, result files and the run log")
	fs.String("log-level", d.LogLevel, "Log level: debug, info, warning, error or critical")
	fs.Bool("quiet", d.Quiet, "Only show warnings and errors on the console and skip the summary")
	fs.String("region", d.Aws.Region, "AWS region")
	fs.String("aws-endpoint", d.Aws.Endpoint, "AWS endpoint override, e.g. for localstack")
	fs.Uint16("metrics-port", d.MetricsPort, "Serve Prometheus metrics on this port during the run, 0 to disable")
	fs.String("run-id", d.RunId, "Identifies the run in logs and in the archive, generated if empty")
	fs.Int("target-volume", d.Goal.TargetVolume, "Number of documents the goal is stated for")
	fs.Float64("target-minutes", d.Goal.TargetMinutes, "Minutes within which the target volume must be rendered")
	fs.String("archive-url", d.Archive.PostgresUrl, "Postgres connection string of the report archive, empty to disable")

	p.bind(fs, "output-dir", "outputDir")
	p.bind(fs, "log-level", "logLevel")
	p.bind(fs, "quiet", "quiet")
	p.bind(fs, "region", "aws.region")
	p.bind(fs, "aws-endpoint", "aws.endpoint")
	p.bind(fs, "metrics-port", "metricsPort")
	p.bind(fs, "run-id", "runId")
	p.bind(fs, "target-volume", "goal.targetVolume")
	p.bind(fs, "target-minutes", "goal.targetMinutes")
	p.bind(fs, "archive-url", "archive.postgresUrl")
}

func (p *params) addDispatchFlags(cmd *cobra.Command) {
	d := p.defaults.Dispatch
	fs := cmd.Flags()
	fs.String("endpoint", d.Endpoint, "URL the job batches are posted to")
	fs.String("template", d.TemplateId, "Template id to render")
	fs.Int("requests", d.Requests, "Number of jobs to submit")
	fs.Int("batch-size", d.BatchSize, "Number of jobs per request")
	fs.Int("concurrency", d.Concurrency, "Maximum number of requests awaiting a response")
	fs.Duration("request-timeout", d.RequestTimeout, "Timeout of a single request")
	fs.Int("retries", d.Retries, "Resend a batch this many times after a transient transport error")
	fs.Int64("seed", d.Seed, "Varies the generated documents between runs")

	p.bind(fs, "endpoint", "dispatch.endpoint")
	p.bind(fs, "template", "dispatch.templateId")
	p.bind(fs, "requests", "dispatch.requests")
	p.bind(fs, "batch-size", "dispatch.batchSize")
	p.bind(fs, "concurrency", "dispatch.concurrency")
	p.bind(fs, "request-timeout", "dispatch.requestTimeout")
	p.bind(fs, "retries", "dispatch.retries")
	p.bind(fs, "seed", "dispatch.seed")
}

func (p *params) addDrainFlags(cmd *cobra.Command) {
	d := p.defaults.Drain
	fs := cmd.Flags()
	fs.String("queue-backend", string(d.Backend), "Work queue to wait for: none, sqs, redis or jetstream")
	fs.Duration("queue-interval", d.PollInterval, "Time between two queue depth readings")
	fs.Duration("queue-timeout", d.Timeout, "Give up waiting for the queue after this long, 0 to wait indefinitely")
	fs.String("queue-url", d.Sqs.QueueUrl, "SQS queue url")
	fs.String("queue-name", d.Sqs.QueueName, "SQS queue name, resolved to its url")
	fs.Bool("include-in-flight", d.Sqs.IncludeInFlight, "Count SQS messages received but not yet deleted")
	fs.StringSlice("redis-addrs", d.Redis.Redis.Addrs, "Redis addresses")
	fs.String("redis-key", d.Redis.Key, "Redis list the workers pop jobs from")
	fs.String("nats-url", d.JetStream.Url, "NATS server url")
	fs.String("nats-stream", d.JetStream.Stream, "JetStream stream holding the jobs")
	fs.String("nats-consumer", d.JetStream.Consumer, "Durable JetStream consumer of the workers")

	p.bind(fs, "queue-backend", "drain.backend")
	p.bind(fs, "queue-interval", "drain.pollInterval")
	p.bind(fs, "queue-timeout", "drain.timeout")
	p.bind(fs, "queue-url", "drain.sqs.queueUrl")
	p.bind(fs, "queue-name", "drain.sqs.queueName")
	p.bind(fs, "include-in-flight", "drain.sqs.includeInFlight")
	p.bind(fs, "redis-addrs", "drain.redis.redis.addrs")
	p.bind(fs, "redis-key", "drain.redis.key")
	p.bind(fs, "nats-url", "drain.jetStream.url")
	p.bind(fs, "nats-stream", "drain.jetStream.stream")
	p.bind(fs, "nats-consumer", "drain.jetStream.consumer")
}

func (p *params) addVerifyFlags(cmd *cobra.Command) {
	d := p.defaults.Verify
	fs := cmd.Flags()
	fs.String("bucket", d.Bucket, "S3 bucket the rendered documents are written to")
	fs.String("key-suffix", d.KeySuffix, "Appended to a job id to form its object key")
	fs.Duration("interval", d.PollInterval, "Time between two verification rounds")
	fs.Duration("timeout", d.Timeout, "Give up verifying after this long")
	fs.Int("sample-size", d.SampleSize, "Verify at most this many job ids, 0 verifies all")

	p.bind(fs, "bucket", "verify.bucket")
	p.bind(fs, "key-suffix", "verify.keySuffix")
	p.bind(fs, "interval", "verify.pollInterval")
	p.bind(fs, "timeout", "verify.timeout")
	p.bind(fs, "sample-size", "verify.sampleSize")
}

// initParams binds the flags of cmd, including those inherited from its parents, to their keys.
func (p *params) initParams(cmd *cobra.Command) error {
	for fs, keys := range p.bindings {
		for name, key := range keys {
			flag := cmd.Flags().Lookup(name)
			if flag == nil || fs.Lookup(name) != flag {
				continue
			}
			if err := p.v.BindPFlag(key, flag); err != nil {
				return errors.Wrapf(err, "binding flag --%s", name)
			}
		}
	}
	return nil
}
