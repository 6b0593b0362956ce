package monitor

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matthieugusmini/docker-steward/internal/steward"
)

// Notifier delivers a change notification to the operator.
type Notifier interface {
	Notify(ctx context.Context, subject, textBody, htmlBody string) error
}

// SendmailNotifier delivers notifications through the local sendmail binary.
type SendmailNotifier struct {
	From string
	To   string
}

// Notify pipes a multipart mail into sendmail -t.
func (n *SendmailNotifier) Notify(ctx context.Context, subject, textBody, htmlBody string) error {
	const boundary = "=-steward-status-="

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\n", n.From)
	fmt.Fprintf(&msg, "To: %s\n", n.To)
	fmt.Fprintf(&msg, "Subject: %s\n", subject)
	fmt.Fprintf(&msg, "Date: %s\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\n\n", boundary)
	fmt.Fprintf(&msg, "--%s\nContent-Type: text/plain; charset=utf-8\n\n%s\n", boundary, textBody)
	fmt.Fprintf(&msg, "--%s\nContent-Type: text/html; charset=utf-8\n\n%s\n", boundary, htmlBody)
	fmt.Fprintf(&msg, "--%s--\n", boundary)

	cmd := exec.CommandContext(ctx, "sendmail", "-t", "-oi")
	cmd.Stdin = &msg
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sendmail: %w", err)
	}
	return nil
}

var pageTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>body{font-family:monospace;color:white;background:black;}</style>
  </head>
  <body>
    <h1>
      {{.Title}}<br>
      <small>Generated on {{.Date}}</small>
    </h1>
    <ul style="list-style:none;">
{{- range .Reports}}
      <li style="color:{{.Color}};">[{{.Marker}}] {{.Name}}: {{.Message}}</li>
{{- end}}
    </ul>
  </body>
</html>
`))

type pageReport struct {
	Name    string
	Message string
	Color   string
	Marker  string
}

// Publisher writes the HTML status page and, when something changed, sends a
// notification. Both sinks are independent and run concurrently.
type Publisher struct {
	statusDir string
	notifier  Notifier
	logger    *slog.Logger
}

// NewPublisher returns a Publisher writing into statusDir. notifier may be
// nil to disable mail delivery.
func NewPublisher(statusDir string, notifier Notifier, logger *slog.Logger) *Publisher {
	return &Publisher{
		statusDir: statusDir,
		notifier:  notifier,
		logger:    logger,
	}
}

// Publish rewrites the status page and notifies the operator when
// changesToReport is set.
func (p *Publisher) Publish(ctx context.Context, title string, reports []ExtendedStatusReport, changesToReport bool) error {
	textBody := renderText(reports)
	htmlBody, err := renderHTML(title, reports)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.writePage(htmlBody)
	})
	if changesToReport && p.notifier != nil {
		g.Go(func() error {
			p.logger.Info("Status changed, sending notification")
			return p.notifier.Notify(ctx, title, textBody, htmlBody)
		})
	}
	return g.Wait()
}

func (p *Publisher) writePage(htmlBody string) error {
	if err := os.MkdirAll(p.statusDir, 0o755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}
	path := filepath.Join(p.statusDir, "status.html")
	if err := os.WriteFile(path, []byte(htmlBody), 0o644); err != nil {
		return fmt.Errorf("write status page: %w", err)
	}
	return nil
}

func renderText(reports []ExtendedStatusReport) string {
	var b strings.Builder
	for _, r := range reports {
		if r.CurrentStatus == steward.StatusOkay || r.CurrentStatus == steward.StatusStarting {
			fmt.Fprintf(&b, "[ ok ] %s: %s\n", r.ContainerName, r.Message)
		} else {
			fmt.Fprintf(&b, "[fail] %s: %s\n", r.ContainerName, r.Message)
		}
	}
	return b.String()
}

func renderHTML(title string, reports []ExtendedStatusReport) (string, error) {
	page := struct {
		Title   string
		Date    string
		Reports []pageReport
	}{
		Title: title,
		Date:  time.Now().Format("2006-01-02 15:04"),
	}
	for _, r := range reports {
		pr := pageReport{Name: r.ContainerName, Message: r.Message}
		switch r.CurrentStatus {
		case steward.StatusOkay:
			pr.Color, pr.Marker = "green", " ok "
		case steward.StatusStarting:
			pr.Color, pr.Marker = "orange", " ok "
		default:
			pr.Color, pr.Marker = "red", "fail"
		}
		page.Reports = append(page.Reports, pr)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("render status page: %w", err)
	}
	return buf.String(), nil
}
