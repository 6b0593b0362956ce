// Package docker adapts the Docker Engine API client to the steward domain.
//
// Two operations deliberately go through the docker CLI instead of the API:
// image builds (the API wants a tar build context and a build session) and
// interactive execs (full TTY negotiation). Everything else uses the Engine
// API directly.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/filters"
	"github.com/moby/moby/client"

	"github.com/matthieugusmini/docker-steward/internal/steward"
)

// Client implements [steward.Runtime] against a Docker engine.
type Client struct {
	apiClient *client.Client
	dockerBin string
	logger    *slog.Logger
}

// NewClient returns a new [Client] wrapping the given Docker Engine API client.
func NewClient(apiClient *client.Client, logger *slog.Logger) *Client {
	return &Client{
		apiClient: apiClient,
		dockerBin: "docker",
		logger:    logger,
	}
}

// BuildImage builds the image at buildPath and tags it imageRef, streaming
// the build output to the terminal.
func (c *Client) BuildImage(ctx context.Context, buildPath, imageRef string, noCache bool) error {
	args := []string{"build", "-t", imageRef}
	if noCache {
		args = append(args, "--no-cache")
	}
	args = append(args, buildPath)

	c.logger.Debug("Running docker build", slog.String("image", imageRef), slog.String("path", buildPath))
	cmd := exec.CommandContext(ctx, c.dockerBin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker build %s: %w", imageRef, err)
	}
	return nil
}

// TagImage applies alias as an additional tag on imageRef.
func (c *Client) TagImage(ctx context.Context, imageRef, alias string) error {
	if err := c.apiClient.ImageTag(ctx, imageRef, alias); err != nil {
		return fmt.Errorf("tag image %s as %s: %w", imageRef, alias, err)
	}
	return nil
}

// ImageExists reports whether an image matching imageRef exists locally.
func (c *Client) ImageExists(ctx context.Context, imageRef string) (bool, error) {
	images, err := c.apiClient.ImageList(ctx, client.ImageListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", imageRef)),
	})
	if err != nil {
		return false, fmt.Errorf("list images for %s: %w", imageRef, err)
	}
	return len(images) > 0, nil
}

// RunContainer creates and starts an instance according to spec.
func (c *Client) RunContainer(ctx context.Context, spec steward.RunSpec) (string, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range spec.Ports {
		proto := "tcp"
		if p.UDP {
			proto = "udp"
		}
		port := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostIP:   p.HostAddr,
			HostPort: strconv.Itoa(p.HostPort),
		})
	}

	binds := make([]string, 0, len(spec.Volumes))
	for _, v := range spec.Volumes {
		bind := v.HostPath + ":" + v.ContainerPath
		if v.ReadOnly {
			bind += ":ro"
		}
		binds = append(binds, bind)
	}

	links := make([]string, 0, len(spec.Links))
	for _, l := range spec.Links {
		links = append(links, l.InstanceName+":"+l.Alias)
	}

	resp, err := c.apiClient.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.ImageRef,
			Env:          spec.Env,
			Labels:       spec.Labels,
			ExposedPorts: exposed,
		},
		&container.HostConfig{
			Binds:        binds,
			Links:        links,
			PortBindings: bindings,
			Resources: container.Resources{
				Memory: spec.Memory,
			},
		},
		nil, nil, spec.InstanceName)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.InstanceName, err)
	}

	if err := c.apiClient.ContainerStart(ctx, resp.ID, client.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", spec.InstanceName, err)
	}
	return resp.ID, nil
}

// StopContainer stops the instance.
func (c *Client) StopContainer(ctx context.Context, nameOrID string) error {
	if err := c.apiClient.ContainerStop(ctx, nameOrID, client.ContainerStopOptions{}); err != nil {
		return fmt.Errorf("stop container %s: %w", nameOrID, err)
	}
	return nil
}

// RemoveContainer deletes a stopped instance.
func (c *Client) RemoveContainer(ctx context.Context, nameOrID string) error {
	if err := c.apiClient.ContainerRemove(ctx, nameOrID, client.ContainerRemoveOptions{}); err != nil {
		return fmt.Errorf("remove container %s: %w", nameOrID, err)
	}
	return nil
}

// InspectContainer returns the state of an instance. If the engine does not
// know the instance it returns a [*steward.Error] with
// [steward.ErrorCodeContainerNotFound].
func (c *Client) InspectContainer(ctx context.Context, nameOrID string) (steward.InstanceState, error) {
	info, err := c.apiClient.ContainerInspect(ctx, nameOrID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return steward.InstanceState{}, &steward.Error{
				Code:    steward.ErrorCodeContainerNotFound,
				Message: err.Error(),
			}
		}
		return steward.InstanceState{}, fmt.Errorf("inspect container %s: %w", nameOrID, err)
	}

	state := steward.InstanceState{
		ImageID:   info.Image,
		CreatedAt: parseEngineTime(info.Created),
	}
	if info.State != nil {
		state.Running = info.State.Running
		state.StartedAt = parseEngineTime(info.State.StartedAt)
		state.FinishedAt = parseEngineTime(info.State.FinishedAt)
	}
	return state, nil
}

// ListContainers lists running containers, or all when all is set.
func (c *Client) ListContainers(ctx context.Context, all bool) ([]steward.ContainerSummary, error) {
	containers, err := c.apiClient.ContainerList(ctx, client.ContainerListOptions{All: all})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	res := make([]steward.ContainerSummary, len(containers))
	for i, ctr := range containers {
		res[i] = steward.ContainerSummary{
			ID:       ctr.ID,
			Names:    ctr.Names,
			ImageRef: ctr.Image,
			Labels:   ctr.Labels,
			Running:  ctr.State == "running",
		}
	}
	return res, nil
}

// ListImages lists local images, restricted to dangling ones when danglingOnly
// is set.
func (c *Client) ListImages(ctx context.Context, danglingOnly bool) ([]steward.ImageSummary, error) {
	opts := client.ImageListOptions{All: true}
	if danglingOnly {
		opts = client.ImageListOptions{
			Filters: filters.NewArgs(filters.Arg("dangling", "true")),
		}
	}
	images, err := c.apiClient.ImageList(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	res := make([]steward.ImageSummary, len(images))
	for i, img := range images {
		res[i] = steward.ImageSummary{
			ID:        img.ID,
			Tags:      img.RepoTags,
			CreatedAt: time.Unix(img.Created, 0),
		}
	}
	return res, nil
}

// RemoveImage deletes an image by ID without pruning parent layers.
func (c *Client) RemoveImage(ctx context.Context, imageID string) error {
	_, err := c.apiClient.ImageRemove(ctx, imageID, client.ImageRemoveOptions{PruneChildren: false})
	if err != nil {
		return fmt.Errorf("remove image %s: %w", imageID, err)
	}
	return nil
}

// ContainerLogs streams logs of an instance. The engine multiplexes stdout
// and stderr for non-TTY containers; the returned stream is demultiplexed
// into a single byte stream for the caller.
func (c *Client) ContainerLogs(ctx context.Context, nameOrID string, follow bool, tailLines int) (io.ReadCloser, error) {
	r, err := c.apiClient.ContainerLogs(ctx, nameOrID, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       strconv.Itoa(tailLines),
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, &steward.Error{
				Code:    steward.ErrorCodeContainerNotFound,
				Message: err.Error(),
			}
		}
		return nil, fmt.Errorf("get container logs %s: %w", nameOrID, err)
	}

	pr, pw := io.Pipe()
	go func() {
		defer r.Close()
		_, err := stdcopy.StdCopy(pw, pw, r)
		_ = pw.CloseWithError(err)
	}()
	return pr, nil
}

// ExecBatch runs command in a shell inside a live instance and returns its
// exit code and combined output. A non-zero exit code is a result, not an
// error.
func (c *Client) ExecBatch(ctx context.Context, nameOrID, command string, timeout time.Duration) (steward.ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.dockerBin, "exec", nameOrID, "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return steward.ExecResult{ExitCode: exitErr.ExitCode(), Output: out}, nil
		}
		return steward.ExecResult{}, fmt.Errorf("docker exec in %s: %w", nameOrID, err)
	}
	return steward.ExecResult{ExitCode: 0, Output: out}, nil
}

// ExecInteractive attaches the terminal to command inside a live instance.
func (c *Client) ExecInteractive(ctx context.Context, nameOrID string, command []string) error {
	args := append([]string{"exec", "-it", nameOrID}, command...)
	return c.runAttached(ctx, args)
}

// RunInteractive starts a temporary instance of imageRef attached to the
// terminal. The instance is labeled temporary so the unmanaged-instance
// conflict check ignores it, and removed when the command exits.
func (c *Client) RunInteractive(ctx context.Context, imageRef string, command []string) error {
	args := []string{"run", "--rm", "-it", "--label", steward.LabelTemporary + "=true", imageRef}
	args = append(args, command...)
	return c.runAttached(ctx, args)
}

func (c *Client) runAttached(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.dockerBin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker %s: %w", args[0], err)
	}
	return nil
}

// parseEngineTime parses an engine timestamp. The engine reports missing
// times as the zero RFC3339 value, which parses to a time for which IsZero
// holds, so callers can test with IsZero uniformly.
func parseEngineTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
