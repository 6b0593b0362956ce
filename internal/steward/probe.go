package steward

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	defaultDialTimeout  = 2 * time.Second
	defaultReplyTimeout = 1 * time.Second
	defaultHTTPTimeout  = 5 * time.Second
	defaultExecTimeout  = 30 * time.Second
)

// Execer runs non-interactive commands inside a live container instance.
// Implemented by [Runtime]; the shell probe is the only test kind that needs
// the engine.
type Execer interface {
	ExecBatch(ctx context.Context, nameOrID, command string, timeout time.Duration) (ExecResult, error)
}

// Prober evaluates health tests against live container instances. Probes are
// pure pass/fail: every I/O failure is logged and folded into a fail, never
// surfaced as an error.
type Prober struct {
	execer Execer
	logger *slog.Logger
}

// NewProber returns a Prober using execer for in-container shell tests.
func NewProber(execer Execer, logger *slog.Logger) *Prober {
	return &Prober{
		execer: execer,
		logger: logger,
	}
}

// RunAll runs every test of the container against its live instance and
// returns the AND of the results. A container without tests passes vacuously,
// with a warning: a build error could go unnoticed.
func (p *Prober) RunAll(ctx context.Context, c *Container, instanceName string) bool {
	if len(c.Tests) == 0 {
		p.logger.Warn("No tests defined for container, a build error might go unnoticed",
			slog.String("container", c.Name))
		return true
	}

	ok := true
	for _, t := range c.Tests {
		ok = p.run(ctx, t, instanceName) && ok
	}
	return ok
}

func (p *Prober) run(ctx context.Context, t Test, instanceName string) bool {
	switch t.Kind {
	case TestKindTCP:
		return p.runTCP(t)
	case TestKindHTTP:
		return p.runHTTP(ctx, t)
	case TestKindShell:
		return p.runShell(ctx, t, instanceName)
	default:
		p.logger.Error("Unknown test kind", slog.String("kind", string(t.Kind)))
		return false
	}
}

// runTCP connects to the port, sends a greeting and, when ExpectData is set,
// requires any reply byte. Protocols that stay silent on garbage input should
// configure ExpectData off.
func (p *Prober) runTCP(t Test) bool {
	host := t.Host
	if host == "" {
		host = "localhost"
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", t.Port))

	timeout := t.Timeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		p.logger.Error("Connection failed for TCP test",
			slog.String("addr", addr),
			slog.Any("error", err))
		return false
	}
	defer conn.Close()

	if !t.ExpectData {
		return true
	}

	_ = conn.SetDeadline(time.Now().Add(defaultReplyTimeout))
	if _, err := conn.Write([]byte("hello\n")); err != nil {
		p.logger.Error("Cannot send to TCP test endpoint",
			slog.String("addr", addr),
			slog.Any("error", err))
		return false
	}
	reply := make([]byte, 1)
	if _, err := conn.Read(reply); err != nil {
		p.logger.Error("No response from TCP test endpoint - server dead or this protocol doesn't answer a simple hello",
			slog.String("addr", addr),
			slog.Any("error", err))
		return false
	}
	return true
}

func (p *Prober) runHTTP(ctx context.Context, t Test) bool {
	timeout := t.Timeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !t.VerifyTLS},
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		p.logger.Error("Invalid URL for HTTP test",
			slog.String("url", t.URL),
			slog.Any("error", err))
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		p.logger.Error("HTTP test request failed",
			slog.String("url", t.URL),
			slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.logger.Error("HTTP test returned error status",
			slog.String("url", t.URL),
			slog.Int("status", resp.StatusCode))
		return false
	}
	return true
}

// runShell runs the command inside the live instance and passes on exit code
// zero. Without a live instance there is nothing to exec into: fail.
func (p *Prober) runShell(ctx context.Context, t Test, instanceName string) bool {
	if instanceName == "" {
		p.logger.Error("Shell test has no live instance to run in",
			slog.String("command", t.Command))
		return false
	}

	timeout := t.Timeout
	if timeout == 0 {
		timeout = defaultExecTimeout
	}
	res, err := p.execer.ExecBatch(ctx, instanceName, t.Command, timeout)
	if err != nil {
		p.logger.Error("Shell test could not be executed",
			slog.String("command", t.Command),
			slog.Any("error", err))
		return false
	}
	if res.ExitCode != 0 {
		p.logger.Warn("Shell test failed",
			slog.String("command", t.Command),
			slog.Int("exitCode", res.ExitCode))
		return false
	}
	return true
}
