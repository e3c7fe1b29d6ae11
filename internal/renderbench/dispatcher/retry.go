package dispatcher

import (
	"time"

	"github.com/avast/retry-go"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/renderbench/metrics"
	"github.com/armadaproject/renderbench/internal/renderbench/payload"
)

// RetryingSubmitter resends a batch after transient transport errors, up to a fixed number of times with a
// fixed delay. Jobs the API rejected are never resent. The API assigns job ids, so a batch whose response
// was lost may be rendered twice.
type RetryingSubmitter struct {
	next    Submitter
	retries int
	delay   time.Duration
	metrics *metrics.Metrics
}

func NewRetryingSubmitter(next Submitter, retries int, delay time.Duration, m *metrics.Metrics) *RetryingSubmitter {
	return &RetryingSubmitter{
		next:    next,
		retries: retries,
		delay:   delay,
		metrics: m,
	}
}

func (s *RetryingSubmitter) Submit(ctx *runcontext.Context, jobs []payload.JobRequest) (*BatchResponse, error) {
	var resp *BatchResponse
	attempt := 0
	err := retry.Do(
		func() error {
			if attempt > 0 {
				s.metrics.RecordRetry()
			}
			attempt++
			var err error
			resp, err = s.next.Submit(ctx, jobs)
			return err
		},
		retry.Attempts(uint(s.retries+1)),
		retry.Delay(s.delay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			if int(n) < s.retries {
				ctx.Log.WithError(err).Warnf("Batch of %d jobs failed on attempt %d, retrying in %s", len(jobs), n+1, s.delay)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
