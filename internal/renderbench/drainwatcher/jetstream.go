package drainwatcher

import (
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

// ConsumerInfoer is the subset of nats.JetStreamContext used to read queue depth.
type ConsumerInfoer interface {
	ConsumerInfo(stream, consumer string, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
}

// JetStreamSource counts the messages a durable consumer has not yet acknowledged: those not yet delivered
// plus those delivered but awaiting an ack.
type JetStreamSource struct {
	js       ConsumerInfoer
	stream   string
	consumer string
}

func NewJetStreamSource(js ConsumerInfoer, stream, consumer string) *JetStreamSource {
	return &JetStreamSource{js: js, stream: stream, consumer: consumer}
}

func (s *JetStreamSource) Name() string {
	return s.stream + "/" + s.consumer
}

func (s *JetStreamSource) Depth(ctx *runcontext.Context) (int64, error) {
	info, err := s.js.ConsumerInfo(s.stream, s.consumer, nats.Context(ctx))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int64(info.NumPending) + int64(info.NumAckPending), nil
}
