package steward

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

// fakeInstance is one container instance known to the fake engine.
type fakeInstance struct {
	id         string
	name       string
	imageRef   string
	imageID    string
	labels     map[string]string
	running    bool
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// fakeRuntime implements [Runtime] in memory and records every mutation for
// assertions.
type fakeRuntime struct {
	images       map[string]bool
	instances    []*fakeInstance
	imageList    []ImageSummary
	danglingList []ImageSummary
	execResults  map[string]ExecResult

	builds            []string
	tags              [][2]string
	runs              []RunSpec
	stopped           []string
	removedContainers []string
	removedImages     []string

	now time.Time
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		images:      map[string]bool{},
		execResults: map[string]ExecResult{},
		now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRuntime) find(nameOrID string) *fakeInstance {
	for _, in := range f.instances {
		if in.id == nameOrID || in.name == nameOrID {
			return in
		}
	}
	return nil
}

func (f *fakeRuntime) BuildImage(ctx context.Context, buildPath, imageRef string, noCache bool) error {
	f.builds = append(f.builds, imageRef)
	f.images[imageRef] = true
	return nil
}

func (f *fakeRuntime) TagImage(ctx context.Context, imageRef, alias string) error {
	f.tags = append(f.tags, [2]string{imageRef, alias})
	f.images[alias] = true
	return nil
}

func (f *fakeRuntime) ImageExists(ctx context.Context, imageRef string) (bool, error) {
	return f.images[imageRef], nil
}

func (f *fakeRuntime) RunContainer(ctx context.Context, spec RunSpec) (string, error) {
	f.runs = append(f.runs, spec)
	in := &fakeInstance{
		id:        "id-" + spec.InstanceName,
		name:      spec.InstanceName,
		imageRef:  spec.ImageRef,
		imageID:   "sha256:" + spec.ImageRef,
		labels:    spec.Labels,
		running:   true,
		createdAt: f.now,
		startedAt: f.now,
	}
	f.instances = append(f.instances, in)
	return in.id, nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, nameOrID string) error {
	f.stopped = append(f.stopped, nameOrID)
	if in := f.find(nameOrID); in != nil {
		in.running = false
		in.finishedAt = f.now
	}
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, nameOrID string) error {
	f.removedContainers = append(f.removedContainers, nameOrID)
	for i, in := range f.instances {
		if in.id == nameOrID || in.name == nameOrID {
			f.instances = append(f.instances[:i], f.instances[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRuntime) InspectContainer(ctx context.Context, nameOrID string) (InstanceState, error) {
	in := f.find(nameOrID)
	if in == nil {
		return InstanceState{}, &Error{
			Code:    ErrorCodeContainerNotFound,
			Message: "no such container: " + nameOrID,
		}
	}
	return InstanceState{
		Running:    in.running,
		StartedAt:  in.startedAt,
		FinishedAt: in.finishedAt,
		CreatedAt:  in.createdAt,
		ImageID:    in.imageID,
	}, nil
}

func (f *fakeRuntime) ListContainers(ctx context.Context, all bool) ([]ContainerSummary, error) {
	var out []ContainerSummary
	for _, in := range f.instances {
		if !all && !in.running {
			continue
		}
		out = append(out, ContainerSummary{
			ID:       in.id,
			Names:    []string{in.name},
			ImageRef: in.imageRef,
			Labels:   in.labels,
			Running:  in.running,
		})
	}
	return out, nil
}

func (f *fakeRuntime) ListImages(ctx context.Context, danglingOnly bool) ([]ImageSummary, error) {
	if danglingOnly {
		return f.danglingList, nil
	}
	return f.imageList, nil
}

func (f *fakeRuntime) RemoveImage(ctx context.Context, imageID string) error {
	f.removedImages = append(f.removedImages, imageID)
	return nil
}

func (f *fakeRuntime) ContainerLogs(ctx context.Context, nameOrID string, follow bool, tailLines int) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeRuntime) ExecBatch(ctx context.Context, nameOrID, command string, timeout time.Duration) (ExecResult, error) {
	return f.execResults[command], nil
}

func (f *fakeRuntime) ExecInteractive(ctx context.Context, nameOrID string, command []string) error {
	return nil
}

func (f *fakeRuntime) RunInteractive(ctx context.Context, imageRef string, command []string) error {
	return nil
}

// fakeStore implements [InstanceStore] in memory.
type fakeStore struct {
	names map[string]string
	ids   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{names: map[string]string{}, ids: map[string]string{}}
}

func (s *fakeStore) InstanceName(container string) string { return s.names[container] }
func (s *fakeStore) InstanceID(container string) string   { return s.ids[container] }

func (s *fakeStore) SetInstance(container, instanceName, instanceID string) error {
	s.names[container] = instanceName
	s.ids[container] = instanceID
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(graph []*Container, rt *fakeRuntime, store *fakeStore) *Orchestrator {
	o := NewOrchestrator(graph, rt, store, NewProber(rt, testLogger()), testLogger())
	o.now = func() time.Time { return rt.now }
	o.sleep = func(time.Duration) {}
	return o
}

// startTracked registers a live, tracked instance of c with the fake engine
// and the store, as if a previous invocation had started it.
func startTracked(rt *fakeRuntime, store *fakeStore, c *Container) *fakeInstance {
	name := c.Name + "-2025-05-31_09_00_00"
	in := &fakeInstance{
		id:        "id-" + name,
		name:      name,
		imageRef:  c.ImageRef,
		imageID:   "sha256:" + c.ImageRef,
		running:   true,
		createdAt: rt.now.Add(-time.Hour),
		startedAt: rt.now.Add(-time.Hour),
	}
	rt.instances = append(rt.instances, in)
	rt.images[c.ImageRef] = true
	_ = store.SetInstance(c.Name, name, in.id)
	return in
}
