package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/moby/moby/client"

	"github.com/matthieugusmini/docker-steward/internal/config"
	"github.com/matthieugusmini/docker-steward/internal/docker"
	"github.com/matthieugusmini/docker-steward/internal/lockfile"
	"github.com/matthieugusmini/docker-steward/internal/state"
	"github.com/matthieugusmini/docker-steward/internal/steward"
)

// app bundles everything a command needs. Built once per invocation, after
// flag parsing.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	runtime steward.Runtime
	store   *state.Store
	orch    *steward.Orchestrator
	cleaner *steward.Cleaner
	lock    *lockfile.Manager
}

func newApp(opts *options) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.stateDir != "" {
		cfg.StateDir = opts.stateDir
	}
	if opts.lockFile != "" {
		cfg.LockFile = opts.lockFile
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	apiClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("new Docker Engine API client: %w", err)
	}
	runtime := docker.NewClient(apiClient, logger)

	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	lock, err := lockfile.NewManager(cfg.LockFile)
	if err != nil {
		return nil, err
	}

	prober := steward.NewProber(runtime, logger)
	return &app{
		cfg:     cfg,
		logger:  logger,
		runtime: runtime,
		store:   store,
		orch:    steward.NewOrchestrator(cfg.Containers, runtime, store, prober, logger),
		cleaner: steward.NewCleaner(cfg.Containers, runtime, store, logger),
		lock:    lock,
	}, nil
}

// acquireLock takes the exclusive lock for mutating commands. A live holder
// is fatal: two concurrent lifecycle operations would corrupt the instance
// records.
func (a *app) acquireLock() error {
	err := a.lock.Lock()
	if err == nil {
		return nil
	}
	var already *lockfile.AlreadyRunningError
	if errors.As(err, &already) || errors.Is(err, lockfile.ErrLocked) {
		return &ExitError{
			Code:    ExitFailure,
			Message: err.Error(),
		}
	}
	return err
}

// warnIfBusy tells the operator of read-only commands that results may be
// transient because another invocation is mid-operation.
func (a *app) warnIfBusy() {
	if a.lock.AnotherInstanceIsRunning() {
		a.logger.Warn("Another instance is currently running, results may be in flux",
			slog.String("holder", a.lock.HolderInfo()))
	}
}

// reportStatus prints one line per container and converts the verdicts into
// the exit contract: all healthy exits zero; any failure exits nonzero, with
// the degraded code when another live invocation may explain the failures.
func (a *app) reportStatus(ctx context.Context, containers []*steward.Container, sleepBefore bool) error {
	reports, err := a.orch.StatusAll(ctx, containers, sleepBefore)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		fmt.Printf("%s %s: %s\n", renderStatus(r.Status), r.ContainerName, r.Message)
		if !r.OK() {
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
		Message: fmt.Sprintf("%d of %d containers are not okay", failed, len(reports)),
	}
}
