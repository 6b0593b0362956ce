package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// defaultLogTail caps the history shown so a long-running container does not
// dump months of output.
const defaultLogTail = 1000

func newLogCommand(opts *options) *cobra.Command {
	var (
		follow bool
		tail   int
	)

	cmd := &cobra.Command{
		Use:   "log <container>",
		Short: "Show the logs of a container's current instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if _, err := a.cfg.Select(args); err != nil {
				return err
			}

			instanceName := a.store.InstanceName(args[0])
			if instanceName == "" {
				return fmt.Errorf("no known instance of container %s", args[0])
			}

			if tail > 0 {
				fmt.Fprintf(os.Stderr, "(showing at most the last %d lines)\n", tail)
			}
			logs, err := a.runtime.ContainerLogs(cmd.Context(), instanceName, follow, tail)
			if err != nil {
				return err
			}
			defer logs.Close()

			_, err = io.Copy(os.Stdout, logs)
			return err
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new log output")
	cmd.Flags().IntVar(&tail, "tail", defaultLogTail, "Number of lines to show from the end of the logs")
	return cmd
}
