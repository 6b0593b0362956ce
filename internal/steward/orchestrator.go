package steward

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// InstanceStore persists which engine instance currently belongs to which
// configured container, across process invocations. Implementations must
// preserve any pre-existing record under a ".previous" suffix and flush
// writes durably before returning.
type InstanceStore interface {
	// InstanceName returns the engine-side name of the last known instance,
	// or "" if none was recorded.
	InstanceName(container string) string

	// InstanceID returns the engine-side ID of the last known instance,
	// or "" if none was recorded.
	InstanceID(container string) string

	// SetInstance records a freshly started instance.
	SetInstance(container, instanceName, instanceID string) error
}

// Orchestrator sequences rebuild/restart/stop/start across many containers,
// honoring link integrity, and evaluates per-container status. It is purely
// sequential; cross-process exclusion is the lock manager's job.
type Orchestrator struct {
	graph   []*Container
	runtime Runtime
	store   InstanceStore
	prober  *Prober
	logger  *slog.Logger

	// Injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewOrchestrator returns an Orchestrator over the configured container graph.
func NewOrchestrator(
	graph []*Container,
	runtime Runtime,
	store InstanceStore,
	prober *Prober,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		graph:   graph,
		runtime: runtime,
		store:   store,
		prober:  prober,
		logger:  logger,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// IsBuilt reports whether an image for the container exists locally.
// Containers without an image reference (pure monitors) count as built.
func (o *Orchestrator) IsBuilt(ctx context.Context, c *Container) (bool, error) {
	if c.ImageRef == "" {
		return true, nil
	}
	exists, err := o.runtime.ImageExists(ctx, c.ImageRef)
	if err != nil {
		return false, fmt.Errorf("check image %s: %w", c.ImageRef, err)
	}
	return exists, nil
}

// checkForUnmanagedInstances fails when a live container runs from the
// managed image without being traced to any tracked instance record. Such a
// container was started behind the tool's back and must never be silently
// adopted or destroyed. Instances labeled temporary are exempt.
func (o *Orchestrator) checkForUnmanagedInstances(ctx context.Context, c *Container) error {
	if c.ImageRef == "" {
		return nil
	}
	running, err := o.runtime.ListContainers(ctx, false)
	if err != nil {
		return fmt.Errorf("list running containers: %w", err)
	}

	tracked := make(map[string]bool, len(o.graph))
	for _, cfg := range o.graph {
		if id := o.store.InstanceID(cfg.Name); id != "" {
			tracked[id] = true
		}
	}

	for _, ctr := range running {
		if ctr.ImageRef != c.ImageRef {
			continue
		}
		if ctr.Labels[LabelTemporary] != "" {
			continue
		}
		if !tracked[ctr.ID] {
			return &Error{
				Code: ErrorCodeUnmanagedInstance,
				Message: fmt.Sprintf(
					"container %s is running from image %s but is not managed by this tool; stop it yourself and restart it here",
					ctr.ID, c.ImageRef),
			}
		}
	}
	return nil
}

// instanceState returns the state of the container's tracked instance. The
// second result is false when there is no record or the engine no longer
// knows the instance.
func (o *Orchestrator) instanceState(ctx context.Context, c *Container) (InstanceState, bool, error) {
	if err := o.checkForUnmanagedInstances(ctx, c); err != nil {
		return InstanceState{}, false, err
	}
	id := o.store.InstanceID(c.Name)
	if id == "" {
		return InstanceState{}, false, nil
	}
	state, err := o.runtime.InspectContainer(ctx, id)
	if IsCode(err, ErrorCodeContainerNotFound) {
		return InstanceState{}, false, nil
	}
	if err != nil {
		return InstanceState{}, false, fmt.Errorf("inspect instance of %s: %w", c.Name, err)
	}
	return state, true, nil
}

// IsRunning reports whether the tracked instance of the container is live.
func (o *Orchestrator) IsRunning(ctx context.Context, c *Container) (bool, error) {
	state, ok, err := o.instanceState(ctx, c)
	if err != nil {
		return false, err
	}
	return ok && state.Running, nil
}

// Status evaluates the container's health verdict. Nothing is persisted; the
// same inputs always produce the same verdict. With sleepBefore set, the
// container's SleepBeforeTest delay is honored once before its tests run.
func (o *Orchestrator) Status(ctx context.Context, c *Container, sleepBefore bool) (StatusReport, error) {
	in := statusInputs{testCount: len(c.Tests)}

	built, err := o.IsBuilt(ctx, c)
	if err != nil {
		return StatusReport{}, err
	}
	in.built = built
	if !built {
		// MISSING short-circuits; no point probing an image-less container.
		return evaluateStatus(c, in), nil
	}

	state, ok, err := o.instanceState(ctx, c)
	if err != nil {
		return StatusReport{}, err
	}
	in.running = ok && state.Running
	if in.running && !state.StartedAt.IsZero() {
		in.timeRunning = o.now().Sub(state.StartedAt)
		in.timeRunningKnown = true
	}

	if sleepBefore && c.SleepBeforeTest > 0 {
		o.sleep(c.SleepBeforeTest)
	}
	in.testsOK = o.prober.RunAll(ctx, c, o.store.InstanceName(c.Name))

	return evaluateStatus(c, in), nil
}

// StatusAll evaluates all given containers in configuration order.
func (o *Orchestrator) StatusAll(ctx context.Context, containers []*Container, sleepBefore bool) ([]StatusReport, error) {
	reports := make([]StatusReport, 0, len(containers))
	for _, c := range containers {
		report, err := o.Status(ctx, c, sleepBefore)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Stop stops the tracked instance of the container if one is live.
func (o *Orchestrator) Stop(ctx context.Context, c *Container) error {
	instanceName := o.store.InstanceName(c.Name)
	running, err := o.IsRunning(ctx, c)
	if err != nil {
		return err
	}
	if instanceName == "" || !running {
		o.logger.Info("No known instance running", slog.String("container", c.Name))
		return nil
	}

	o.logger.Info("Stopping container",
		slog.String("container", c.Name),
		slog.String("instance", instanceName))
	if err := o.runtime.StopContainer(ctx, instanceName); err != nil {
		return fmt.Errorf("stop %s: %w", c.Name, err)
	}
	return nil
}

// Start creates and starts a fresh instance of the container. The previous
// identity records are preserved under a .previous suffix by the store.
//
// Starting an already live container is a programming-contract violation.
// A missing image for the container itself, or for a linked dependency that
// is not live, surfaces as an IMAGE_NOT_FOUND error.
func (o *Orchestrator) Start(ctx context.Context, c *Container) error {
	running, err := o.IsRunning(ctx, c)
	if err != nil {
		return err
	}
	if running {
		return &Error{
			Code:    ErrorCodeContractViolation,
			Message: fmt.Sprintf("container %s is already running, refusing to start it twice", c.Name),
		}
	}

	built, err := o.IsBuilt(ctx, c)
	if err != nil {
		return err
	}
	if !built {
		return &Error{
			Code:    ErrorCodeImageNotFound,
			Message: fmt.Sprintf("no local image %s for container %s", c.ImageRef, c.Name),
		}
	}

	links, err := o.resolveLinks(ctx, c)
	if err != nil {
		return err
	}

	// Instance names cannot be reused, so every start gets a fresh one.
	instanceName := c.Name + o.now().Format("-2006-01-02_15_04_05")
	o.logger.Info("Starting container",
		slog.String("container", c.Name),
		slog.String("instance", instanceName))

	id, err := o.runtime.RunContainer(ctx, RunSpec{
		ImageRef:     c.ImageRef,
		InstanceName: instanceName,
		Links:        links,
		Env:          c.Env,
		Ports:        c.Ports,
		Volumes:      c.Volumes,
		Memory:       c.Memory,
		Labels:       map[string]string{LabelManaged: "true"},
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", c.Name, err)
	}

	if err := o.store.SetInstance(c.Name, instanceName, id); err != nil {
		return fmt.Errorf("record instance of %s: %w", c.Name, err)
	}
	return nil
}

// resolveLinks maps the container's declared links onto live instances. A
// dependency that is merely stopped degrades to a warning: the container will
// miss that link until it is restarted, but independent services still come
// up. A dependency whose image does not even exist is an IMAGE_NOT_FOUND
// error, since it can never be brought up by a later pass.
func (o *Orchestrator) resolveLinks(ctx context.Context, c *Container) ([]RunLink, error) {
	var links []RunLink
	for _, dep := range c.Links {
		running, err := o.IsRunning(ctx, dep)
		if err != nil {
			return nil, err
		}
		if !running {
			depBuilt, err := o.IsBuilt(ctx, dep)
			if err != nil {
				return nil, err
			}
			if !depBuilt {
				return nil, &Error{
					Code: ErrorCodeImageNotFound,
					Message: fmt.Sprintf(
						"dependency %s of container %s has no local image", dep.Name, c.Name),
				}
			}
			o.logger.Warn("Linked container is not running - this link will be missing until the container is restarted",
				slog.String("container", c.Name),
				slog.String("dependency", dep.Name))
			continue
		}
		links = append(links, RunLink{
			InstanceName: o.store.InstanceName(dep.Name),
			Alias:        dep.Name,
		})
	}
	return links, nil
}

// StopMany stops the requested containers in reverse dependency order,
// together with everything that depends on them unless ignoreDependencies is
// set. It returns the full set that was stopped, still in stop order.
func (o *Orchestrator) StopMany(ctx context.Context, requested []*Container, ignoreDependencies bool) ([]*Container, error) {
	ordered := OrderByDependency(o.graph, requested, false, !ignoreDependencies, o.logger)
	stopList := Reversed(ordered)

	if added := o.addedNames(stopList, requested); len(added) > 0 {
		o.logger.Info("Also stopping containers affected by this action",
			slog.String("containers", strings.Join(added, ", ")))
	}

	for _, c := range stopList {
		if err := o.Stop(ctx, c); err != nil {
			return nil, err
		}
	}
	return stopList, nil
}

// RestartMany stops the requested containers (and their dependents), then
// brings the whole affected set back up in dependency order, pulling in any
// dependencies that are not yet live. Build-only containers are never
// started. With ignoreDependencies, a dependency whose image is missing
// degrades to a warning and only that one container is skipped.
func (o *Orchestrator) RestartMany(ctx context.Context, requested []*Container, ignoreDependencies bool) error {
	stopped, err := o.StopMany(ctx, requested, ignoreDependencies)
	if err != nil {
		return err
	}

	startList := OrderByDependency(o.graph, stopped, true, false, o.logger)
	if added := o.addedNames(startList, stopped); len(added) > 0 {
		o.logger.Info("Also starting necessary dependencies, if not yet running",
			slog.String("containers", strings.Join(added, ", ")))
	}

	for _, c := range startList {
		if c.OnlyBuild {
			// Meta container, never started as a live process.
			continue
		}
		running, err := o.IsRunning(ctx, c)
		if err != nil {
			return err
		}
		if !contains(stopped, c) && running {
			continue
		}
		if err := o.Start(ctx, c); err != nil {
			if ignoreDependencies && IsCode(err, ErrorCodeImageNotFound) {
				o.logger.Warn("Skipping container",
					slog.String("container", c.Name),
					slog.Any("error", err))
				continue
			}
			return err
		}
	}
	return nil
}

// StartMany brings up only the requested containers that are currently down.
func (o *Orchestrator) StartMany(ctx context.Context, requested []*Container, ignoreDependencies bool) error {
	var down []*Container
	for _, c := range requested {
		if c.OnlyBuild {
			continue
		}
		running, err := o.IsRunning(ctx, c)
		if err != nil {
			return err
		}
		if !running {
			down = append(down, c)
		}
	}
	if len(down) == 0 {
		o.logger.Info("All requested containers are already running")
		return nil
	}
	return o.RestartMany(ctx, down, ignoreDependencies)
}

// RebuildOptions tune RebuildMany.
type RebuildOptions struct {
	// NoCache disables the engine's build cache.
	NoCache bool

	// OnlyMissing skips the build for containers whose image already exists.
	OnlyMissing bool

	// IgnoreDependencies is passed through to the restart phase.
	IgnoreDependencies bool
}

// RebuildMany rebuilds the images of the given containers, applies alias
// tags, and restarts the same set.
func (o *Orchestrator) RebuildMany(ctx context.Context, containers []*Container, opts RebuildOptions) error {
	for _, c := range containers {
		if c.BuildPath == "" {
			continue
		}
		if opts.OnlyMissing {
			built, err := o.IsBuilt(ctx, c)
			if err != nil {
				return err
			}
			if built {
				o.logger.Debug("Image already present, skipping build",
					slog.String("container", c.Name))
				continue
			}
		}

		// Run the unmanaged-instance check while the old image still has
		// its tag; after the build it is nameless and untraceable.
		if err := o.checkForUnmanagedInstances(ctx, c); err != nil {
			return err
		}

		o.logger.Info("Rebuilding image",
			slog.String("container", c.Name),
			slog.String("image", c.ImageRef))
		if err := o.runtime.BuildImage(ctx, c.BuildPath, c.ImageRef, opts.NoCache); err != nil {
			return fmt.Errorf("build %s: %w", c.Name, err)
		}
		for _, alias := range c.AliasTags {
			if err := o.runtime.TagImage(ctx, c.ImageRef, alias); err != nil {
				return fmt.Errorf("tag %s as %s: %w", c.ImageRef, alias, err)
			}
		}
	}

	return o.RestartMany(ctx, containers, opts.IgnoreDependencies)
}

// NeedsUpdates runs the configured update-check command inside the live
// instance and reports pending package updates. Containers without a command
// or without a live instance are skipped.
func (o *Orchestrator) NeedsUpdates(ctx context.Context, c *Container) (bool, error) {
	if c.UpdateCheckCommand == "" {
		return false, nil
	}
	running, err := o.IsRunning(ctx, c)
	if err != nil {
		return false, err
	}
	if !running {
		o.logger.Debug("Container not running, skipping update check",
			slog.String("container", c.Name))
		return false, nil
	}

	res, err := o.runtime.ExecBatch(ctx, o.store.InstanceName(c.Name), c.UpdateCheckCommand, defaultExecTimeout)
	if err != nil {
		return false, fmt.Errorf("update check for %s: %w", c.Name, err)
	}
	out := strings.TrimSpace(string(res.Output))
	if res.ExitCode == 0 && out == "" {
		return false, nil
	}
	o.logger.Warn("Container has outdated packages",
		slog.String("container", c.Name),
		slog.String("updates", out))
	return true, nil
}

func (o *Orchestrator) addedNames(all, requested []*Container) []string {
	var names []string
	for _, c := range all {
		if !contains(requested, c) {
			names = append(names, c.Name)
		}
	}
	return names
}

func contains(cs []*Container, c *Container) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}
