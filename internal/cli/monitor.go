package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matthieugusmini/docker-steward/internal/monitor"
)

func newMonitorCommand(opts *options) *cobra.Command {
	var (
		noMail    bool
		statusDir string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Evaluate all containers for cron, with de-bounced notifications",
		Long: `Evaluates the health of every container, appends the snapshot to the
rolling status history and rewrites the HTML status page. A notification mail
is sent only when a container's settled condition actually changed, so the
churn of a normal restart never pages anyone. Meant to run from cron.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if statusDir != "" {
				a.cfg.StatusDir = statusDir
			}
			a.warnIfBusy()

			reports, err := a.orch.StatusAll(cmd.Context(), a.cfg.Containers, false)
			if err != nil {
				return err
			}

			history := monitor.NewHistoryStore(filepath.Join(a.cfg.StatusDir, "history.json"))
			window, err := history.Push(monitor.SnapshotOf(reports))
			if err != nil {
				return err
			}
			changesToReport, extended := monitor.DetectChanges(window)

			var notifier monitor.Notifier
			if !noMail {
				notifier = &monitor.SendmailNotifier{From: a.cfg.MailFrom, To: a.cfg.MailTo}
			}
			publisher := monitor.NewPublisher(a.cfg.StatusDir, notifier, a.logger)

			hostname, err := os.Hostname()
			if err != nil {
				hostname = "unknown host"
			}
			title := fmt.Sprintf("Container status on %s", hostname)
			if err := publisher.Publish(cmd.Context(), title, extended, changesToReport); err != nil {
				return err
			}

			failed := 0
			for _, r := range extended {
				if !r.CurrentStatus.OK() {
					failed++
				}
			}
			if failed == 0 {
				return nil
			}
			code := ExitFailure
			if a.lock.AnotherInstanceIsRunning() {
				code = ExitDegraded
			}
			return &ExitError{
				Code:    code,
				Message: fmt.Sprintf("%d of %d containers are not okay", failed, len(extended)),
			}
		},
	}
	cmd.Flags().BoolVar(&noMail, "no-mail", false, "Never send notification mails")
	cmd.Flags().StringVar(&statusDir, "status-dir", "",
		"Override the status directory from the configuration")
	return cmd
}
