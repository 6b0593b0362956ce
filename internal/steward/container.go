package steward

import (
	"fmt"
	"time"
)

// Status classifies the health of a managed container at one point in time.
type Status string

const (
	// StatusOkay means the container is doing what the configuration says it
	// should: built, running (unless build-only) and passing its tests.
	StatusOkay Status = "OKAY"

	// StatusStarting means tests are still failing but the container started
	// recently enough to be within its startup grace time.
	StatusStarting Status = "STARTING"

	// StatusFailed means the container is stopped or its tests fail.
	StatusFailed Status = "FAILED"

	// StatusMissing means no image for the container exists on the local
	// system, so it cannot even be started.
	StatusMissing Status = "MISSING"
)

// OK reports whether the status counts as healthy for the exit contract.
// STARTING is healthy: the container is expected to settle on its own.
func (s Status) OK() bool {
	return s == StatusOkay || s == StatusStarting
}

// StatusReport is the verdict for a single container, recomputed on every
// status query.
type StatusReport struct {
	ContainerName string `json:"containerName"`
	Status        Status `json:"status"`
	Message       string `json:"message"`
}

// OK reports whether the status counts as healthy for the exit contract.
func (r StatusReport) OK() bool {
	return r.Status.OK()
}

func (r StatusReport) String() string {
	return fmt.Sprintf("%s: [%s] %s", r.ContainerName, r.Status, r.Message)
}

// PortBinding publishes a container port on the host.
type PortBinding struct {
	// HostAddr is the host IP to listen on. Empty means all interfaces.
	HostAddr string

	// HostPort is the port on the host.
	HostPort int

	// ContainerPort is the port inside the container.
	ContainerPort int

	// UDP switches the binding from TCP to UDP.
	UDP bool
}

// VolumeBinding mounts a host path into the container.
type VolumeBinding struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Container is one managed unit from the configuration. It is created once at
// process start and immutable for the duration of a run; across invocations it
// is identified by Name plus the persisted instance records.
type Container struct {
	// Name uniquely identifies the container in the configuration.
	Name string

	// ImageRef is the image reference built and run for this container,
	// e.g. "webapp:latest".
	ImageRef string

	// BuildPath is the directory holding the build context. Empty means the
	// container is not buildable (e.g. a pure monitoring probe).
	BuildPath string

	// OnlyBuild marks containers that are never run as a live process:
	// base images, build-only steps, or monitors for external services.
	OnlyBuild bool

	// Links are the containers this one depends on, in configuration order.
	// Every link target must be declared before its referrer.
	Links []*Container

	// Tests are the health probes evaluated against a live instance.
	Tests []Test

	// SleepBeforeTest is slept once before the tests of this container run,
	// giving slow services a moment to accept connections.
	SleepBeforeTest time.Duration

	// StartupGraceTime is the window after a start during which failing
	// tests report STARTING instead of FAILED.
	StartupGraceTime time.Duration

	// AliasTags are extra image tags applied after a successful build.
	AliasTags []string

	// UpdateCheckCommand, when set, is run inside the live instance by
	// check-updates; any output means packages are outdated.
	UpdateCheckCommand string

	// Run options applied when starting an instance.
	Env     []string
	Ports   []PortBinding
	Volumes []VolumeBinding

	// Memory is the memory limit in bytes for the instance, 0 for none.
	Memory int64
}

func (c *Container) String() string { return c.Name }

// LinksTo reports whether c declares a direct link on target.
func (c *Container) LinksTo(target *Container) bool {
	for _, l := range c.Links {
		if l == target {
			return true
		}
	}
	return false
}

// TestKind discriminates the closed set of health probe variants.
type TestKind string

const (
	// TestKindTCP connects to a TCP port, sends a greeting and expects any
	// reply.
	TestKindTCP TestKind = "tcp"

	// TestKindHTTP performs a GET and expects a non-error status code.
	TestKindHTTP TestKind = "http"

	// TestKindShell runs a command inside the live instance and expects
	// exit code zero.
	TestKindShell TestKind = "shell"
)

// Test is one health probe specification. It is a tagged variant rather than
// an open hierarchy: new probe kinds extend the switch in the prober.
// A test never errors out of band; every I/O failure is a plain fail.
type Test struct {
	Kind TestKind

	// TCP
	Host       string
	Port       int
	ExpectData bool

	// HTTP
	URL       string
	VerifyTLS bool

	// Shell
	Command string

	// Timeout bounds the probe. Zero means the prober default.
	Timeout time.Duration
}

func (t Test) String() string {
	switch t.Kind {
	case TestKindTCP:
		return fmt.Sprintf("tcp %s:%d", t.Host, t.Port)
	case TestKindHTTP:
		return fmt.Sprintf("http %s", t.URL)
	case TestKindShell:
		return fmt.Sprintf("shell %q", t.Command)
	default:
		return string(t.Kind)
	}
}
