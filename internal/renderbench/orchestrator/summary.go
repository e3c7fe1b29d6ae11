package orchestrator

import (
	"io"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/armadaproject/renderbench/internal/renderbench/configuration"
)

// PrintSummary writes the console summary of report.
func PrintSummary(w io.Writer, cfg configuration.Config, report *Report) {
	p := message.NewPrinter(language.English)
	p.Fprintln(w, "=== Document Rendering Performance Test ===")
	p.Fprintf(w, "Run: %s (%s)\n", report.RunId, report.Mode)
	prefix := "Config: "
	if report.Mode != configuration.ModeVerify.String() {
		p.Fprintf(w, "Config: endpoint=%s\n", cfg.Dispatch.Endpoint)
		p.Fprintf(w, "        template=%s requests=%d concurrency=%d batchsize=%d\n",
			cfg.Dispatch.TemplateId, cfg.Dispatch.Requests, cfg.Dispatch.Concurrency, cfg.Dispatch.BatchSize)
		prefix = "        "
	}
	p.Fprintf(w, "%sbucket=%s region=%s\n", prefix, cfg.Verify.Bucket, cfg.Aws.Region)
	p.Fprintln(w)

	if lt := report.LoadTest; lt != nil {
		p.Fprintf(w, "Results: %d/%d successful in %.2fs\n", lt.SuccessfulRequests, lt.TotalRequests, lt.DurationSeconds)
		if l := lt.Latency; l != nil {
			p.Fprintf(w, "  Latency: min=%.4fs max=%.4fs avg=%.4fs p90=%.4fs\n", l.Min, l.Max, l.Mean, l.P90)
		}
		p.Fprintf(w, "  Throughput: %.2f documents/second\n", lt.ThroughputPerSecond)
		reasons := maps.Keys(report.FailureReasons)
		slices.Sort(reasons)
		for _, reason := range reasons {
			p.Fprintf(w, "  Failed: %d x %s\n", report.FailureReasons[reason], reason)
		}
	}
	if pr := report.Processing; pr != nil {
		switch pr.Source {
		case ProcessingSourceQueueDrain:
			p.Fprintf(w, "  Processing: %.2fs until %s drained (%.2f documents/second)\n", pr.TotalProcessingSeconds, pr.Queue, pr.ThroughputPerSecond)
		case ProcessingSourceDispatch:
			p.Fprintf(w, "  Processing: %.2fs (%.2f documents/second)\n", pr.TotalProcessingSeconds, pr.ThroughputPerSecond)
		}
	}
	if v := report.Verification; v != nil {
		p.Fprintf(w, "Verification: %d/%d confirmed in %.2fs (%s)\n", v.CompletedJobs, v.TotalJobs, v.ElapsedSeconds, v.Status)
		if v.SampleSize < v.Population {
			p.Fprintf(w, "  Sampled %d of %d job IDs\n", v.SampleSize, v.Population)
		}
		if v.FailedCount > 0 {
			p.Fprintf(w, "  %d documents not found\n", v.FailedCount)
		}
	}
	p.Fprintln(w)

	if report.Status != StatusCompleted {
		p.Fprintf(w, "Status: %s: %s\n", report.Status, report.Error)
	}
	perf := report.Performance
	if perf == nil {
		p.Fprintln(w, "Summary: no documents were processed, nothing to extrapolate")
		return
	}
	p.Fprintf(w, "Summary: %d documents would take %.2f minutes (target: %g minutes)\n",
		perf.TargetVolume, perf.ProjectedMinutes, perf.TargetMinutes)
	if perf.GoalAchieved {
		p.Fprintf(w, "✅ GOAL ACHIEVED (current %.2f documents/sec)\n", perf.MeasuredRatePerSecond)
	} else {
		p.Fprintf(w, "❌ GOAL NOT ACHIEVED (need %.0f documents/sec, current %.2f documents/sec)\n",
			perf.RequiredRatePerSecond, perf.MeasuredRatePerSecond)
	}
}
