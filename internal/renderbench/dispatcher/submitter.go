package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/renderbench/payload"
)

const maxErrorBodyLength = 512

// Submitter sends one batch of jobs to the rendering API.
type Submitter interface {
	Submit(ctx *runcontext.Context, jobs []payload.JobRequest) (*BatchResponse, error)
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether resending the same batch might succeed.
func (e *StatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsTransient reports whether err is a transport failure worth retrying: network errors, client-side
// timeouts and overload responses. Cancellation of the run and well-formed rejections are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// HTTPSubmitter posts batches as JSON.
type HTTPSubmitter struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSubmitter(endpoint string, timeout time.Duration) (*HTTPSubmitter, error) {
	return NewHTTPSubmitterWithClient(endpoint, &http.Client{Timeout: timeout})
}

func NewHTTPSubmitterWithClient(endpoint string, client *http.Client) (*HTTPSubmitter, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "endpoint",
			Value:   endpoint,
			Message: err.Error(),
		})
	}
	return &HTTPSubmitter{endpoint: endpoint, client: client}, nil
}

func (s *HTTPSubmitter) Submit(ctx *runcontext.Context, jobs []payload.JobRequest) (*BatchResponse, error) {
	body, err := json.Marshal(BatchRequest{Jobs: jobs})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.WithStack(&StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), maxErrorBodyLength),
		})
	}

	var batchResponse BatchResponse
	if err := json.Unmarshal(respBody, &batchResponse); err != nil {
		return nil, errors.Wrapf(err, "malformed response body %q", truncate(string(respBody), maxErrorBodyLength))
	}
	if batchResponse.Results == nil {
		return nil, errors.Errorf("malformed response body %q: no results", truncate(string(respBody), maxErrorBodyLength))
	}
	return &batchResponse, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
