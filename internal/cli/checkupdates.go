package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckUpdatesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check-updates [container...]",
		Short: "Check running containers for pending package updates",
		Long: `Runs the configured update-check command inside every requested live
container. Any output means the container's packages are outdated and it
should be rebuilt. Exits 1 when at least one container needs updates.`,
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

			outdated := 0
			for _, c := range containers {
				needs, err := a.orch.NeedsUpdates(cmd.Context(), c)
				if err != nil {
					return err
				}
				if needs {
					outdated++
				}
			}
			if outdated == 0 {
				return nil
			}
			return &ExitError{
				Code:    ExitFailure,
				Message: fmt.Sprintf("%d containers have pending updates, rebuild them", outdated),
			}
		},
	}
}
