package cli

import (
	"github.com/spf13/cobra"
)

func newCleanupCommand(opts *options) *cobra.Command {
	var (
		minAgeDays int
		simulate   bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old stopped containers and unused dangling images",
		Long: `Removes stopped containers that finished longer than --min-age days ago,
then dangling images of the same age that no surviving container uses. The
latest known instance of every configured container is always kept. With
--simulate nothing is removed; both sweeps report what they would do.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if err := a.acquireLock(); err != nil {
				return err
			}
			defer a.lock.Unlock()

			removed, err := a.cleaner.CleanupContainers(cmd.Context(), minAgeDays, simulate)
			if err != nil {
				return err
			}
			var simulatedRemoved []string
			if simulate {
				simulatedRemoved = removed
			}
			return a.cleaner.CleanupImages(cmd.Context(), minAgeDays, simulate, simulatedRemoved)
		},
	}
	cmd.Flags().IntVar(&minAgeDays, "min-age", 31, "Minimum age in days before anything is removed")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Only report what would be removed")
	return cmd
}
