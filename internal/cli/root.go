// Package cli wires the command-line surface: one cobra command per
// operation, all sharing the configuration, the engine client and the lock.
package cli

import (
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	stateDir   string
	lockFile   string
	verbose    bool
}

// NewRootCommand creates the root cobra command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "steward",
		Short: "Manage the containers of a host from a declarative configuration",
		Long: `steward builds, starts, stops and monitors the Docker containers of a
single host according to a declarative YAML configuration. Containers are
ordered by their links, restarted together with everything that depends on
them, and health-checked with per-container tests.`,
		SilenceUsage:  true,
		SilenceErrors: true, // errors carry exit codes; main handles them
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c",
		"/etc/steward.yaml", "Path to the container configuration")
	cmd.PersistentFlags().StringVar(&opts.stateDir, "state-dir",
		"", "Override the state directory from the configuration")
	cmd.PersistentFlags().StringVar(&opts.lockFile, "lock-file",
		"", "Override the lock file path from the configuration")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v",
		false, "Enable debug output")

	cmd.AddCommand(
		newStatusCommand(opts),
		newStartCommand(opts),
		newStopCommand(opts),
		newRestartCommand(opts),
		newRebuildCommand(opts),
		newLogCommand(opts),
		newShellCommand(opts),
		newCleanupCommand(opts),
		newMonitorCommand(opts),
		newCheckUpdatesCommand(opts),
	)
	return cmd
}
