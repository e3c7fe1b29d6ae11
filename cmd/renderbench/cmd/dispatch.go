package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/renderbench/configuration"
	"github.com/armadaproject/renderbench/internal/renderbench/orchestrator"
)

func dispatchCmd(p *params) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Only submit the jobs",
		Long: `Only submit the jobs. The ids of the accepted jobs are written to job_ids.txt in the output
directory, from where the verify command picks them up.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return p.initParams(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.run(cmd, configuration.ModeDispatch, func(ctx *runcontext.Context, r *orchestrator.Runner) *orchestrator.Report {
				return r.Dispatch(ctx)
			})
		},
	}
	p.addDispatchFlags(cmd)
	return cmd
}
