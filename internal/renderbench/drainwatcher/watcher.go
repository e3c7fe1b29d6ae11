package drainwatcher

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/renderbench/metrics"
)

var ErrDrainTimeout = errors.New("queue did not drain before the timeout")

// DepthSource reports the number of messages waiting in a work queue. Backends report an approximation.
type DepthSource interface {
	Depth(ctx *runcontext.Context) (int64, error)
	// Name identifies the queue in logs and metrics.
	Name() string
}

// Watcher polls a DepthSource until the queue is empty.
type Watcher struct {
	source  DepthSource
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(source DepthSource, m *metrics.Metrics) *Watcher {
	return NewWithClock(source, m, clock.RealClock{})
}

func NewWithClock(source DepthSource, m *metrics.Metrics, c clock.Clock) *Watcher {
	return &Watcher{
		source:  source,
		clock:   c,
		metrics: m,
	}
}

// Queue names the watched queue.
func (w *Watcher) Queue() string {
	return w.source.Name()
}

// AwaitDrain polls the queue depth every pollInterval and returns the time of the first poll that saw an
// empty queue. That first zero is taken as final even though backends may briefly report zero for a queue
// that is not empty.
//
// A hardTimeout of zero waits until the queue drains or ctx is cancelled. Errors reading the depth are
// returned immediately. Timing out returns ErrDrainTimeout and cancellation returns the context's error.
func (w *Watcher) AwaitDrain(ctx *runcontext.Context, pollInterval, hardTimeout time.Duration) (time.Time, error) {
	if pollInterval <= 0 {
		return time.Time{}, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "pollInterval",
			Value:   pollInterval,
			Message: "must be positive",
		})
	}
	name := w.source.Name()
	log := ctx.Log.WithField("queue", name)
	start := w.clock.Now()
	log.Infof("Waiting for queue %s to drain", name)

	for {
		depth, err := w.source.Depth(ctx)
		now := w.clock.Now()
		if err != nil {
			if ctx.Err() != nil {
				return time.Time{}, errors.WithMessage(errors.WithStack(ctx.Err()), "waiting for queue to drain")
			}
			return time.Time{}, errors.WithMessagef(err, "reading depth of queue %s", name)
		}
		w.metrics.SetQueueDepth(name, depth)
		elapsed := now.Sub(start)
		if depth <= 0 {
			log.WithField("elapsed", elapsed.Round(time.Millisecond)).Infof("Queue %s drained", name)
			return now, nil
		}
		log.WithField("depth", depth).Infof("Approximately %d messages remaining in queue", depth)

		wait := pollInterval
		if hardTimeout > 0 {
			remaining := hardTimeout - elapsed
			if remaining <= 0 {
				return time.Time{}, errors.WithMessagef(ErrDrainTimeout, "%d messages remaining after %s", depth, elapsed)
			}
			if remaining < wait {
				wait = remaining
			}
		}
		select {
		case <-ctx.Done():
			return time.Time{}, errors.WithMessage(errors.WithStack(ctx.Err()), "waiting for queue to drain")
		case <-w.clock.After(wait):
		}
	}
}
