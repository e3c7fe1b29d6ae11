package orchestrator

import (
	"time"

	"github.com/armadaproject/renderbench/internal/renderbench/stats"
	"github.com/armadaproject/renderbench/internal/renderbench/verifier"
)

type Status string

const (
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusInterrupted Status = "interrupted"
)

// Process exit codes.
const (
	ExitSuccess    = 0
	ExitFailure    = 1
	ExitGoalMissed = 2
)

// Where the processing time of a run was measured.
const (
	ProcessingSourceQueueDrain   = "queue_drain"
	ProcessingSourceDispatch     = "dispatch"
	ProcessingSourceVerification = "verification"
)

// Report is the outcome of one run. Sections of phases that did not run are omitted.
type Report struct {
	RunId          string               `json:"run_id"`
	Mode           string               `json:"mode"`
	Status         Status               `json:"status"`
	Error          string               `json:"error,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	Parameters     Parameters           `json:"parameters"`
	LoadTest       *stats.RunMetrics    `json:"load_test,omitempty"`
	FailureReasons map[string]int       `json:"failure_reasons,omitempty"`
	Processing     *Processing          `json:"processing,omitempty"`
	Verification   *VerificationResults `json:"verification,omitempty"`
	Performance    *stats.Extrapolation `json:"performance,omitempty"`
	GoalAchieved   bool                 `json:"goal_achieved"`
}

type Parameters struct {
	Endpoint     string `json:"endpoint,omitempty"`
	TemplateId   string `json:"template_id,omitempty"`
	Requests     int    `json:"requests,omitempty"`
	BatchSize    int    `json:"batch_size,omitempty"`
	Concurrency  int    `json:"concurrency,omitempty"`
	Bucket       string `json:"bucket,omitempty"`
	Region       string `json:"region,omitempty"`
	DrainBackend string `json:"drain_backend,omitempty"`
}

// Processing is the time the backend took to take in every successfully submitted job, measured from
// the start of the dispatch phase.
type Processing struct {
	Source                 string     `json:"source"`
	Queue                  string     `json:"queue,omitempty"`
	DrainedAt              *time.Time `json:"drained_at,omitempty"`
	TotalProcessingSeconds float64    `json:"total_processing_time"`
	ThroughputPerSecond    float64    `json:"throughput_per_second"`
}

// VerificationResults is a verifier report together with how its job ids were chosen.
type VerificationResults struct {
	*verifier.Report
	// Number of distinct successful job ids the sample was drawn from.
	Population  int                  `json:"population"`
	SampleSize  int                  `json:"sample_size"`
	Performance *stats.Extrapolation `json:"performance,omitempty"`
}

// ExitCode maps the report to the process exit code. A run that produced no performance figures
// counts as having missed the goal.
func (r *Report) ExitCode() int {
	switch {
	case r.Status != StatusCompleted:
		return ExitFailure
	case !r.GoalAchieved:
		return ExitGoalMissed
	default:
		return ExitSuccess
	}
}
