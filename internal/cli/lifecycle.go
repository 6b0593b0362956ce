package cli

import (
	"github.com/spf13/cobra"

	"github.com/matthieugusmini/docker-steward/internal/steward"
)

func newStartCommand(opts *options) *cobra.Command {
	var ignoreDependencies bool

	cmd := &cobra.Command{
		Use:   "start [container...]",
		Short: "Start the requested containers that are not running",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			containers, err := a.cfg.Select(args)
			if err != nil {
				return err
			}
			if err := a.acquireLock(); err != nil {
				return err
			}
			defer a.lock.Unlock()

			if err := a.orch.StartMany(cmd.Context(), containers, ignoreDependencies); err != nil {
				return err
			}
			return a.reportStatus(cmd.Context(), containers, true)
		},
	}
	cmd.Flags().BoolVar(&ignoreDependencies, "ignore-dependencies", false,
		"Do not act on dependent containers; skip dependencies with missing images")
	return cmd
}

func newStopCommand(opts *options) *cobra.Command {
	var ignoreDependencies bool

	cmd := &cobra.Command{
		Use:   "stop [container...]",
		Short: "Stop the requested containers and everything depending on them",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			containers, err := a.cfg.Select(args)
			if err != nil {
				return err
			}
			if err := a.acquireLock(); err != nil {
				return err
			}
			defer a.lock.Unlock()

			_, err = a.orch.StopMany(cmd.Context(), containers, ignoreDependencies)
			return err
		},
	}
	cmd.Flags().BoolVar(&ignoreDependencies, "ignore-dependencies", false,
		"Stop only the named containers, not their dependents")
	return cmd
}

func newRestartCommand(opts *options) *cobra.Command {
	var ignoreDependencies bool

	cmd := &cobra.Command{
		Use:   "restart [container...]",
		Short: "Restart the requested containers together with their dependents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			containers, err := a.cfg.Select(args)
			if err != nil {
				return err
			}
			if err := a.acquireLock(); err != nil {
				return err
			}
			defer a.lock.Unlock()

			if err := a.orch.RestartMany(cmd.Context(), containers, ignoreDependencies); err != nil {
				return err
			}
			return a.reportStatus(cmd.Context(), containers, true)
		},
	}
	cmd.Flags().BoolVar(&ignoreDependencies, "ignore-dependencies", false,
		"Do not act on dependent containers; skip dependencies with missing images")
	return cmd
}

func newRebuildCommand(opts *options) *cobra.Command {
	var rebuildOpts steward.RebuildOptions

	cmd := &cobra.Command{
		Use:   "rebuild [container...]",
		Short: "Rebuild the images of the requested containers and restart them",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			containers, err := a.cfg.Select(args)
			if err != nil {
				return err
			}
			if err := a.acquireLock(); err != nil {
				return err
			}
			defer a.lock.Unlock()

			if err := a.orch.RebuildMany(cmd.Context(), containers, rebuildOpts); err != nil {
				return err
			}
			return a.reportStatus(cmd.Context(), containers, true)
		},
	}
	cmd.Flags().BoolVar(&rebuildOpts.NoCache, "no-cache", false,
		"Build without the engine's layer cache")
	cmd.Flags().BoolVar(&rebuildOpts.OnlyMissing, "only-missing", false,
		"Skip containers whose image already exists")
	cmd.Flags().BoolVar(&rebuildOpts.IgnoreDependencies, "ignore-dependencies", false,
		"Do not act on dependent containers; skip dependencies with missing images")
	return cmd
}
