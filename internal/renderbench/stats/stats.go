package stats

import (
	"math"
	"time"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// DefaultTargetVolume and DefaultTargetMinutes describe the throughput goal runs are judged against:
// one million documents in ten minutes.
const (
	DefaultTargetVolume  = 1_000_000
	DefaultTargetMinutes = 10.0
)

// RunMetrics summarises one dispatch phase. It is computed once, when the phase ends.
type RunMetrics struct {
	TotalRequests       int                `json:"total_requests"`
	SuccessfulRequests  int                `json:"successful_requests"`
	FailedRequests      int                `json:"failed_requests"`
	DurationSeconds     float64            `json:"duration_seconds"`
	ThroughputPerSecond float64            `json:"throughput_per_second"`
	Latency             *LatencyStatistics `json:"latency,omitempty"`
}

// LatencyStatistics are in seconds. Stddev is only present with at least two samples.
type LatencyStatistics struct {
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Mean    float64  `json:"mean"`
	Stddev  *float64 `json:"stddev,omitempty"`
	P90     float64  `json:"p90"`
	Samples int      `json:"samples"`
}

// ComputeRunMetrics derives the phase summary from the per-request latency samples of successful requests.
func ComputeRunMetrics(total, successful int, latencies []float64, duration time.Duration) RunMetrics {
	m := RunMetrics{
		TotalRequests:       total,
		SuccessfulRequests:  successful,
		FailedRequests:      total - successful,
		DurationSeconds:     duration.Seconds(),
		ThroughputPerSecond: Throughput(successful, duration.Seconds()),
	}
	m.Latency = ComputeLatencyStatistics(latencies)
	return m
}

// ComputeLatencyStatistics returns nil when there are no samples. P90 is the sample at index n*9/10 of the
// sorted latencies, so for ten samples it is the largest.
func ComputeLatencyStatistics(latencies []float64) *LatencyStatistics {
	if len(latencies) == 0 {
		return nil
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)
	ls := &LatencyStatistics{
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Mean:    stat.Mean(sorted, nil),
		P90:     sorted[len(sorted)*9/10],
		Samples: len(sorted),
	}
	if len(sorted) > 1 {
		stddev := stat.StdDev(sorted, nil)
		ls.Stddev = &stddev
	}
	return ls
}

// Throughput is count per second, or zero when no time has elapsed.
func Throughput(count int, seconds float64) float64 {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return float64(count) / seconds
}

// Extrapolation projects how long the target volume would take at the measured processing rate.
type Extrapolation struct {
	TargetVolume          int     `json:"target_volume"`
	TargetMinutes         float64 `json:"target_minutes"`
	ProjectedSeconds      float64 `json:"projected_seconds"`
	ProjectedMinutes      float64 `json:"projected_minutes"`
	RequiredRatePerSecond float64 `json:"required_rate_per_second"`
	MeasuredRatePerSecond float64 `json:"measured_rate_per_second"`
	GoalAchieved          bool    `json:"goal_achieved"`
}

// Extrapolate scales a run of successful units processed in processingSeconds up to targetVolume.
// Returns nil when nothing succeeded or no time elapsed, since no rate can be derived.
func Extrapolate(successful int, processingSeconds float64, targetVolume int, targetMinutes float64) *Extrapolation {
	rate := Throughput(successful, processingSeconds)
	if rate <= 0 {
		return nil
	}
	projectedSeconds := float64(targetVolume) / rate
	projectedMinutes := projectedSeconds / 60
	e := &Extrapolation{
		TargetVolume:          targetVolume,
		TargetMinutes:         targetMinutes,
		ProjectedSeconds:      projectedSeconds,
		ProjectedMinutes:      projectedMinutes,
		MeasuredRatePerSecond: rate,
		GoalAchieved:          projectedMinutes <= targetMinutes,
	}
	if targetMinutes > 0 {
		e.RequiredRatePerSecond = float64(targetVolume) / (targetMinutes * 60)
	}
	return e
}
