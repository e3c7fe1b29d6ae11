package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/renderbench/configuration"
	"github.com/armadaproject/renderbench/internal/renderbench/orchestrator"
)

func testCmd(p *params) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a full performance test",
		Long: `Run a full performance test: submit the jobs, wait for the work queue to drain, verify a sample
of the rendered documents and compare the extrapolated rate with the goal.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return p.initParams(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.run(cmd, configuration.ModeTest, func(ctx *runcontext.Context, r *orchestrator.Runner) *orchestrator.Report {
				return r.Run(ctx)
			})
		},
	}
	p.addDispatchFlags(cmd)
	p.addDrainFlags(cmd)
	p.addVerifyFlags(cmd)
	cmd.Flags().Bool("verify", p.defaults.Verify.Enabled, "Verify that the rendered documents arrived in the bucket")
	p.bind(cmd.Flags(), "verify", "verify.enabled")
	return cmd
}
