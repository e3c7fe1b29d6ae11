package configuration

import (
	"time"

	"github.com/spf13/viper"

	"github.com/armadaproject/renderbench/internal/renderbench/stats"
)

const EnvPrefix = "RENDERBENCH"

// SetDefaults registers a default for every key, which also makes every key settable from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("outputDir", "logs/renderbench")
	v.SetDefault("logLevel", "info")
	v.SetDefault("quiet", false)
	v.SetDefault("metricsPort", 0)
	v.SetDefault("runId", "")

	v.SetDefault("aws.region", "eu-central-1")
	v.SetDefault("aws.endpoint", "")

	v.SetDefault("dispatch.endpoint", "")
	v.SetDefault("dispatch.templateId", "")
	v.SetDefault("dispatch.requests", 1000)
	v.SetDefault("dispatch.batchSize", 10)
	v.SetDefault("dispatch.concurrency", 100)
	v.SetDefault("dispatch.requestTimeout", 60*time.Second)
	v.SetDefault("dispatch.progressEvery", 100)
	v.SetDefault("dispatch.retries", 0)
	v.SetDefault("dispatch.retryDelay", time.Second)
	v.SetDefault("dispatch.seed", 0)

	v.SetDefault("drain.backend", string(DrainBackendNone))
	v.SetDefault("drain.pollInterval", 5*time.Second)
	v.SetDefault("drain.timeout", 0)
	v.SetDefault("drain.sqs.queueUrl", "")
	v.SetDefault("drain.sqs.queueName", "")
	v.SetDefault("drain.sqs.includeInFlight", false)
	v.SetDefault("drain.redis.redis.addrs", []string{"localhost:6379"})
	v.SetDefault("drain.redis.redis.db", 0)
	v.SetDefault("drain.redis.redis.password", "")
	v.SetDefault("drain.redis.redis.poolSize", 4)
	v.SetDefault("drain.redis.key", "")
	v.SetDefault("drain.jetStream.url", "nats://localhost:4222")
	v.SetDefault("drain.jetStream.stream", "")
	v.SetDefault("drain.jetStream.consumer", "")
	v.SetDefault("drain.jetStream.requestTimeout", 5*time.Second)

	v.SetDefault("verify.enabled", true)
	v.SetDefault("verify.bucket", "")
	v.SetDefault("verify.keySuffix", ".pdf")
	v.SetDefault("verify.pollInterval", 5*time.Second)
	v.SetDefault("verify.timeout", 600*time.Second)
	v.SetDefault("verify.sampleSize", 100)

	v.SetDefault("goal.targetVolume", stats.DefaultTargetVolume)
	v.SetDefault("goal.targetMinutes", stats.DefaultTargetMinutes)

	v.SetDefault("archive.postgresUrl", "")
	v.SetDefault("archive.table", "renderbench_reports")
	v.SetDefault("archive.retention", 0)
}

// Default returns the configuration produced by SetDefaults alone.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	var c Config
	// Unmarshalling registered defaults cannot fail.
	_ = v.Unmarshal(&c, DecoderOptions())
	return c
}
