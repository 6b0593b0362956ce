package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShellCommand(opts *options) *cobra.Command {
	var newInstance bool

	cmd := &cobra.Command{
		Use:   "shell <container> [command...]",
		Short: "Open an interactive shell inside a container",
		Long: `Attaches an interactive shell (or the given command) to the running
instance of the container. With --new-instance a fresh temporary instance of
the container's image is started instead and removed on exit; it is labeled
so it never trips the unmanaged-instance check.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			containers, err := a.cfg.Select(args[:1])
			if err != nil {
				return err
			}
			c := containers[0]

			command := args[1:]
			if len(command) == 0 {
				command = []string{"/bin/bash"}
			}

			if newInstance {
				if c.ImageRef == "" {
					return fmt.Errorf("container %s has no image to start an instance from", c.Name)
				}
				return a.runtime.RunInteractive(cmd.Context(), c.ImageRef, command)
			}

			running, err := a.orch.IsRunning(cmd.Context(), c)
			if err != nil {
				return err
			}
			if !running {
				return fmt.Errorf("container %s is not running; use --new-instance for a temporary one", c.Name)
			}
			return a.runtime.ExecInteractive(cmd.Context(), a.store.InstanceName(c.Name), command)
		},
	}
	cmd.Flags().BoolVar(&newInstance, "new-instance", false,
		"Start a temporary instance instead of attaching to the running one")
	return cmd
}
