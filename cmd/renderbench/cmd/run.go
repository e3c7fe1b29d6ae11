package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/armadaproject/renderbench/internal/common/app"
	"github.com/armadaproject/renderbench/internal/common/config"
	"github.com/armadaproject/renderbench/internal/common/logging"
	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/common/util"
	"github.com/armadaproject/renderbench/internal/renderbench/configuration"
	"github.com/armadaproject/renderbench/internal/renderbench/orchestrator"
	"github.com/armadaproject/renderbench/internal/renderbench/results"
)

type runFunc func(ctx *runcontext.Context, runner *orchestrator.Runner) *orchestrator.Report

// run loads and validates the configuration, sets up logging to the console and the run log, builds the
// runner for mode and hands it to f. Goal misses and failed runs are returned as an *ExitError.
func (p *params) run(cmd *cobra.Command, mode configuration.Mode, f runFunc) error {
	cfg, err := configuration.Load(p.v, p.configFile)
	if err != nil {
		return err
	}

	logger, logFile, err := logging.NewRunLogger(logging.Options{
		Level:   cfg.LogLevel,
		Quiet:   cfg.Quiet,
		Console: cmd.ErrOrStderr(),
		LogFile: filepath.Join(cfg.OutputDir, results.LogFile),
	})
	if err != nil {
		return err
	}
	log := logrus.NewEntry(logger).WithField("mode", mode.String())
	defer util.CloseResource(log, "log file", logFile)

	if err := cfg.Validate(mode); err != nil {
		config.LogValidationErrors(log, err)
		return &ExitError{Code: orchestrator.ExitFailure, Reason: "invalid configuration"}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	logger.AddHook(logging.NewPrometheusHook(reg))

	ctx, stop := app.CreateContextWithShutdown(log)
	defer stop()

	runner, cleanup, err := orchestrator.Build(ctx, cfg, mode, reg, cmd.OutOrStdout())
	if err != nil {
		logging.WithStacktrace(log, err).Error("Failed to set up the run")
		return &ExitError{Code: orchestrator.ExitFailure, Reason: err.Error()}
	}
	defer cleanup()

	report := orchestrator.ServeMetrics(ctx, cfg.MetricsPort, reg, func(ctx *runcontext.Context) *orchestrator.Report {
		return f(ctx, runner)
	})
	if code := report.ExitCode(); code != orchestrator.ExitSuccess {
		return &ExitError{Code: code, Reason: fmt.Sprintf("run %s finished with status %s", report.RunId, report.Status)}
	}
	return nil
}
