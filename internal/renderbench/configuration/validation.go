package configuration

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
	"github.com/armadaproject/renderbench/internal/common/config"
)

// Mode selects which parts of the configuration a command needs.
type Mode int

const (
	// ModeTest runs every phase.
	ModeTest Mode = iota
	// ModeDispatch only submits jobs.
	ModeDispatch
	// ModeVerify only checks for the documents of a persisted job id list.
	ModeVerify
)

func (m Mode) String() string {
	switch m {
	case ModeTest:
		return "test"
	case ModeDispatch:
		return "dispatch"
	case ModeVerify:
		return "verify"
	}
	return "unknown"
}

// DecoderOptions is passed to viper when unmarshalling a Config.
func DecoderOptions() viper.DecoderConfigOption {
	return config.DecodeHooks(reflect.TypeOf(DrainBackend("")))
}

// Validate checks the parts of c used in mode. Every problem found is returned, combined in a multierror.
func (c Config) Validate(mode Mode) error {
	validate := validator.New()
	var result *multierror.Error

	check := func(s interface{}) {
		if err := validate.Struct(s); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if c.OutputDir == "" {
		result = multierror.Append(result, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "outputDir",
			Value:   c.OutputDir,
			Message: "output directory must be set",
		}))
	}

	check(c.Goal)
	if mode == ModeTest || mode == ModeDispatch {
		check(c.Dispatch)
	}
	if mode == ModeTest {
		check(c.Drain)
		switch c.Drain.Backend {
		case DrainBackendSqs:
			if c.Drain.Sqs.QueueUrl == "" && c.Drain.Sqs.QueueName == "" {
				result = multierror.Append(result, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
					Name:    "drain.sqs",
					Value:   "",
					Message: "either queueUrl or queueName must be set for the sqs backend",
				}))
			}
			check(c.Aws)
		case DrainBackendRedis:
			check(c.Drain.Redis)
		case DrainBackendJetStream:
			check(c.Drain.JetStream)
		}
	}
	if mode == ModeVerify || (mode == ModeTest && c.Verify.Enabled) {
		check(c.Verify)
		check(c.Aws)
		if c.Verify.Bucket == "" {
			result = multierror.Append(result, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
				Name:    "verify.bucket",
				Value:   c.Verify.Bucket,
				Message: "a bucket is required to verify documents",
			}))
		}
	}
	if c.Archive.PostgresUrl != "" {
		check(c.Archive)
		if c.Archive.Table == "" {
			result = multierror.Append(result, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
				Name:    "archive.table",
				Value:   c.Archive.Table,
				Message: "table must be set when archiving is enabled",
			}))
		}
	}
	return result.ErrorOrNil()
}
