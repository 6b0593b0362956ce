package steward

import (
	"context"
	"io"
	"time"
)

// Label keys attached to every instance started by the tool.
const (
	// LabelManaged marks instances under this tool's control.
	LabelManaged = "io.steward.managed"

	// LabelTemporary marks short-lived instances (e.g. shell --new-instance)
	// that the unmanaged-instance conflict check must ignore.
	LabelTemporary = "io.steward.temporary"
)

// RunLink tells the engine how a new instance reaches a dependency: the live
// instance name of the dependency, aliased under its configured name.
type RunLink struct {
	// InstanceName is the engine-side name of the dependency's live instance.
	InstanceName string

	// Alias is the name under which the dependency is reachable from inside
	// the new instance.
	Alias string
}

// RunSpec describes one container instance to create and start.
type RunSpec struct {
	ImageRef     string
	InstanceName string
	Links        []RunLink
	Env          []string
	Ports        []PortBinding
	Volumes      []VolumeBinding
	Memory       int64
	Labels       map[string]string
}

// InstanceState is the runtime view of a single container instance.
type InstanceState struct {
	Running bool

	// StartedAt and FinishedAt are zero when the engine reports no value
	// (an instance that never ran, or never finished).
	StartedAt  time.Time
	FinishedAt time.Time

	// CreatedAt is when the instance was created.
	CreatedAt time.Time

	// ImageID is the ID of the image the instance was created from.
	ImageID string
}

// ContainerSummary is one entry of a container listing.
type ContainerSummary struct {
	ID       string
	Names    []string
	ImageRef string
	Labels   map[string]string
	Running  bool
}

// ImageSummary is one entry of an image listing.
type ImageSummary struct {
	ID        string
	Tags      []string
	CreatedAt time.Time
}

// ExecResult is the outcome of a non-interactive in-container command.
type ExecResult struct {
	ExitCode int
	Output   []byte
}

// Runtime is the gateway to the container engine. All image and container
// I/O of the core goes through this interface so the engines stay testable
// against fakes.
type Runtime interface {
	// BuildImage builds the image at buildPath and tags it imageRef.
	BuildImage(ctx context.Context, buildPath, imageRef string, noCache bool) error

	// TagImage applies alias as an additional tag on imageRef.
	TagImage(ctx context.Context, imageRef, alias string) error

	// ImageExists reports whether an image for imageRef exists locally.
	ImageExists(ctx context.Context, imageRef string) (bool, error)

	// RunContainer creates and starts an instance and returns its ID.
	RunContainer(ctx context.Context, spec RunSpec) (string, error)

	// StopContainer stops the instance. Stopping an already stopped
	// instance is not an error.
	StopContainer(ctx context.Context, nameOrID string) error

	// RemoveContainer deletes a stopped instance.
	RemoveContainer(ctx context.Context, nameOrID string) error

	// InspectContainer returns the state of an instance.
	// Returns a [*Error] with [ErrorCodeContainerNotFound] if the engine
	// does not know the instance.
	InspectContainer(ctx context.Context, nameOrID string) (InstanceState, error)

	// ListContainers lists running containers, or all containers when all
	// is set.
	ListContainers(ctx context.Context, all bool) ([]ContainerSummary, error)

	// ListImages lists local images, restricted to untagged ("dangling")
	// ones when danglingOnly is set.
	ListImages(ctx context.Context, danglingOnly bool) ([]ImageSummary, error)

	// RemoveImage deletes an image by ID without pruning parents.
	RemoveImage(ctx context.Context, imageID string) error

	// ContainerLogs streams logs of an instance, at most tailLines lines
	// back from the end.
	ContainerLogs(ctx context.Context, nameOrID string, follow bool, tailLines int) (io.ReadCloser, error)

	// ExecBatch runs command inside a live instance and returns its exit
	// code and combined output.
	ExecBatch(ctx context.Context, nameOrID, command string, timeout time.Duration) (ExecResult, error)

	// ExecInteractive attaches a terminal to command inside a live instance.
	ExecInteractive(ctx context.Context, nameOrID string, command []string) error

	// RunInteractive starts a temporary instance of imageRef attached to
	// the terminal, labeled so the conflict check ignores it, and removes
	// it afterwards.
	RunInteractive(ctx context.Context, imageRef string, command []string) error
}
