package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/renderbench/configuration"
	"github.com/armadaproject/renderbench/internal/renderbench/orchestrator"
)

func verifyCmd(p *params) *cobra.Command {
	var jobIdsFile string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Only verify the documents of an earlier dispatch",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return p.initParams(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.run(cmd, configuration.ModeVerify, func(ctx *runcontext.Context, r *orchestrator.Runner) *orchestrator.Report {
				return r.VerifyFromFile(ctx, jobIdsFile)
			})
		},
	}
	cmd.Flags().StringVar(&jobIdsFile, "job-ids-file", "", "File listing the job ids to verify, one per line")
	_ = cmd.MarkFlagRequired("job-ids-file")
	p.addVerifyFlags(cmd)
	return cmd
}
