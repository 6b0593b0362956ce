package cli

import (
	"github.com/spf13/cobra"
)

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status [container...]",
		Short: "Show the health of the managed containers",
		Long: `Evaluates every requested container (all of them by default): whether
its image exists, whether its instance is running and whether its tests pass.
Exits 0 when everything is healthy, 1 on failures, and 2 when failures
coincide with another running invocation of the tool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			containers, err := a.cfg.Select(args)
			if err != nil {
				return err
			}
			a.warnIfBusy()
			return a.reportStatus(cmd.Context(), containers, false)
		},
	}
}
