package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/armadaproject/renderbench/internal/renderbench/orchestrator"
)

// ExitError ends the process with Code without printing anything further.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return e.Reason
}

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	p := newParams(viper.New())
	cmd := &cobra.Command{
		Use:   "renderbench",
		Short: "renderbench load-tests a document rendering API.",
		Long: `renderbench load-tests a document rendering API.

It submits synthetic documents in batches, waits for the rendering backend's work queue to drain,
checks that the rendered documents arrived in the result bucket and extrapolates the measured rate
to a target volume.

Settings are read, in order of precedence, from command line flags, RENDERBENCH_* environment
variables (RENDERBENCH_DISPATCH_BATCHSIZE for dispatch.batchSize) and the file given with --config.

Exit codes: 0 if the goal was achieved, 1 on errors and interruptions, 2 if the goal was missed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	p.addCommonFlags(cmd)

	cmd.AddCommand(
		testCmd(p),
		dispatchCmd(p),
		verifyCmd(p),
		versionCmd(),
	)
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := RootCmd()
	err := cmd.Execute()
	if err == nil {
		return orchestrator.ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	cmd.PrintErrln("Error:", err)
	return orchestrator.ExitFailure
}
