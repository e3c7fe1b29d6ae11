package verifier

import (
	"context"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

type fakeS3 struct {
	err    error
	bucket string
	key    string
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.bucket = aws.ToString(params.Bucket)
	f.key = aws.ToString(params.Key)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.HeadObjectOutput{}, nil
}

func responseError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("api error"),
		},
	}
}

func TestS3Store_Exists(t *testing.T) {
	tests := map[string]struct {
		err         error
		expected    bool
		expectError bool
	}{
		"found":           {expected: true},
		"not found":       {err: &types.NotFound{}},
		"no such key":     {err: &types.NoSuchKey{}},
		"bare 404":        {err: responseError(http.StatusNotFound)},
		"wrapped 404":     {err: errors.Wrap(responseError(http.StatusNotFound), "operation error S3: HeadObject")},
		"forbidden":       {err: responseError(http.StatusForbidden), expectError: true},
		"transport error": {err: errors.New("connection reset by peer"), expectError: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			client := &fakeS3{err: tc.err}
			exists, err := NewS3Store(client, "rendered-documents").Exists(runcontext.Background(), "job-1.pdf")
			assert.Equal(t, "rendered-documents", client.bucket)
			assert.Equal(t, "job-1.pdf", client.key)
			if tc.expectError {
				require.Error(t, err)
				assert.False(t, exists)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, exists)
		})
	}
}
