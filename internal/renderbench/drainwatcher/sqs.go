package drainwatcher

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

// SQSAPI is the subset of the SQS client used to read queue depth.
type SQSAPI interface {
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SQSSource reads ApproximateNumberOfMessages and, if includeInFlight is set,
// ApproximateNumberOfMessagesNotVisible.
type SQSSource struct {
	client          SQSAPI
	queueUrl        string
	includeInFlight bool
}

func NewSQSSource(client SQSAPI, queueUrl string, includeInFlight bool) *SQSSource {
	return &SQSSource{
		client:          client,
		queueUrl:        queueUrl,
		includeInFlight: includeInFlight,
	}
}

// NewSQSSourceForQueueName resolves queueName to its url.
func NewSQSSourceForQueueName(ctx *runcontext.Context, client SQSAPI, queueName string, includeInFlight bool) (*SQSSource, error) {
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, errors.Wrapf(err, "resolving url of queue %s", queueName)
	}
	return NewSQSSource(client, aws.ToString(out.QueueUrl), includeInFlight), nil
}

func (s *SQSSource) Name() string {
	return s.queueUrl
}

func (s *SQSSource) Depth(ctx *runcontext.Context) (int64, error) {
	names := []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages}
	if s.includeInFlight {
		names = append(names, types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)
	}
	out, err := s.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(s.queueUrl),
		AttributeNames: names,
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}
	var depth int64
	for _, name := range names {
		raw, ok := out.Attributes[string(name)]
		if !ok {
			return 0, errors.Errorf("attribute %s missing from response", name)
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parsing attribute %s", name)
		}
		depth += n
	}
	return depth, nil
}
