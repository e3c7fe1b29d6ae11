package configuration

import (
	"time"

	"github.com/armadaproject/renderbench/internal/common/config"
)

// DrainBackend names the work queue whose depth tells when the backend has picked up all submitted jobs.
type DrainBackend string

const (
	DrainBackendNone      DrainBackend = "none"
	DrainBackendSqs       DrainBackend = "sqs"
	DrainBackendRedis     DrainBackend = "redis"
	DrainBackendJetStream DrainBackend = "jetstream"
)

type Config struct {
	// Directory receiving the job id list, the per-phase result documents and the run log.
	OutputDir string `validate:"required"`
	// One of debug, info, warning, error, critical.
	LogLevel string
	// If true, the console only shows warnings and errors and no summary is printed.
	Quiet bool
	// If non-zero, Prometheus metrics are served on this port for the duration of the run.
	MetricsPort uint16
	// Identifies the run in logs and in the archive. Generated if empty.
	RunId    string
	Aws      AwsConfig
	Dispatch DispatchConfig
	Drain    DrainConfig
	Verify   VerifyConfig
	Goal     GoalConfig
	Archive  ArchiveConfig
}

type AwsConfig struct {
	Region string `validate:"required"`
	// Optional endpoint override, e.g. for localstack.
	Endpoint string
}

type DispatchConfig struct {
	// URL the job batches are posted to.
	Endpoint   string `validate:"required,url"`
	TemplateId string `validate:"required"`
	// Total number of jobs to submit.
	Requests int `validate:"gt=0"`
	// Number of jobs carried by each request.
	BatchSize int `validate:"gt=0"`
	// Maximum number of batches awaiting a response at any time.
	Concurrency int `validate:"gt=0"`
	// Timeout of a single batch request, including reading the response.
	RequestTimeout time.Duration `validate:"gt=0"`
	// Progress is logged every this many successful jobs. Zero disables progress logging.
	ProgressEvery int `validate:"gte=0"`
	// Number of times a batch is resent after a transient transport error. Zero disables retries.
	Retries    int           `validate:"gte=0"`
	RetryDelay time.Duration `validate:"gte=0"`
	// Mixed into payload generation so that runs can submit different documents.
	Seed int64
}

type DrainConfig struct {
	Backend DrainBackend `validate:"oneof=none sqs redis jetstream"`
	// Time between two depth readings.
	PollInterval time.Duration `validate:"gt=0"`
	// Give up waiting after this long. Zero waits until drained or interrupted.
	Timeout time.Duration `validate:"gte=0"`
	// Only the settings of the selected backend are validated.
	Sqs       SqsConfig       `validate:"-"`
	Redis     RedisListConfig `validate:"-"`
	JetStream JetStreamConfig `validate:"-"`
}

type SqsConfig struct {
	// Either the queue url or its name, which is resolved to a url at startup.
	QueueUrl  string
	QueueName string
	// If true, messages received but not yet deleted by a worker also count towards the depth.
	IncludeInFlight bool
}

type RedisListConfig struct {
	Redis config.RedisConfig
	// Key of the list the workers pop jobs from.
	Key string `validate:"required"`
}

type JetStreamConfig struct {
	Url      string `validate:"required"`
	Stream   string `validate:"required"`
	Consumer string `validate:"required"`
	// Time allowed for a single consumer info request.
	RequestTimeout time.Duration `validate:"gt=0"`
}

type VerifyConfig struct {
	Enabled bool
	// Bucket the renderer writes documents to.
	Bucket string
	// Appended to the job id to form the object key.
	KeySuffix    string
	PollInterval time.Duration `validate:"gt=0"`
	Timeout      time.Duration `validate:"gt=0"`
	// At most this many job ids are verified, drawn uniformly from the successful jobs. Zero verifies all.
	SampleSize int `validate:"gte=0"`
}

type GoalConfig struct {
	// The run passes if TargetVolume documents would be processed within TargetMinutes at the measured rate.
	TargetVolume  int     `validate:"gt=0"`
	TargetMinutes float64 `validate:"gt=0"`
}

type ArchiveConfig struct {
	// If set, the final report is also stored in this postgres database under the run id.
	PostgresUrl string
	Table       string
	// Archived reports older than this are deleted when a new one is stored. Zero keeps everything.
	Retention time.Duration `validate:"gte=0"`
}
