package dispatcher

import (
	"time"

	"github.com/armadaproject/renderbench/internal/renderbench/payload"
	"github.com/armadaproject/renderbench/internal/renderbench/stats"
)

// StatusSuccess marks a job the API accepted and rendered.
const StatusSuccess = "success"

// BatchRequest is the body posted to the submission endpoint.
type BatchRequest struct {
	Jobs []payload.JobRequest `json:"jobs"`
}

// BatchResponse lists one result per submitted job, in submission order.
type BatchResponse struct {
	Results []JobResult  `json:"results"`
	Summary BatchSummary `json:"summary"`
}

type JobResult struct {
	JobId      string `json:"job_id"`
	TemplateId string `json:"template_id"`
	Status     string `json:"status"`
	S3Key      string `json:"s3_key,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
	Error      string `json:"error,omitempty"`
}

type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// JobOutcome is the fate of one request slot.
type JobOutcome struct {
	// Empty unless Success.
	JobId   string
	Success bool
	// Batch wall time divided by the number of jobs in the batch. Per-job timing is not observable
	// from a batched call, so this is an estimate.
	LatencySeconds float64
	// Status code of the batch response, zero if none was received.
	HttpStatus int
	// Why the job failed.
	Reason string
}

// Result of a dispatch phase. JobIds and Latencies only cover successful jobs.
type Result struct {
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	Batches        int              `json:"batches"`
	FailedBatches  int              `json:"failed_batches"`
	Metrics        stats.RunMetrics `json:"metrics"`
	FailureReasons map[string]int   `json:"failure_reasons,omitempty"`
	JobIds         []string         `json:"job_ids"`
	Latencies      []float64        `json:"-"`
	Outcomes       []JobOutcome     `json:"-"`
}

// Duration of the dispatch phase.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
