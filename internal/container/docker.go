// Package container backs race_detector and go_compile, the two checks
// that need a toolchain the host may not have, by running them inside a
// Docker container.
package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/quarrycli/quarry/internal/errs"
)

// DefaultWallClock is the hard cap on one container run.
const DefaultWallClock = 180 * time.Second

// goToolchainImage is the pinned image used for both go_compile and
// race_detector — a single known-good Go toolchain rather than "whatever
// go the host happens to have", which is the entire point of running these
// two checks in a container.
const goToolchainImage = "golang:1.22"

// Client wraps the Docker SDK client with the narrow surface the two
// container validators need.
type Client struct {
	cli *client.Client
}

// NewClient connects to the local Docker daemon using the standard
// environment-derived configuration (DOCKER_HOST, etc).
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrapf(errs.DockerUnavailable, "creating docker client: %s", err)
	}
	return &Client{cli: cli}, nil
}

// Close releases the underlying client connection.
func (c *Client) Close() error { return c.cli.Close() }

// Available pings the daemon; callers use this up front so a missing
// Docker installation surfaces as the explicit docker_unavailable error
// kind, which `doctor` can report distinctly.
func (c *Client) Available(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return errors.Wrapf(errs.DockerUnavailable, "docker daemon unreachable: %s", err)
	}
	return nil
}

// RunOptions configures one container validator invocation.
type RunOptions struct {
	Workspace string
	Cmd       []string
	Progress  func(string)
	Timeout   time.Duration
}

// RunResult is the outcome of one container run.
type RunResult struct {
	ExitCode int
	Output   string
	TimedOut bool
}

// Run pulls the pinned Go toolchain image if needed, mounts workspace
// read-only, executes cmd with a hard wall-clock cap, and tears the
// container down on every exit path — success, failure, timeout, or a
// panic unwinding through the caller.
func (c *Client) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := c.Available(ctx); err != nil {
		return nil, err
	}

	if err := c.ensureImage(ctx, goToolchainImage, opts.Progress); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultWallClock
	}

	resp, err := c.cli.ContainerCreate(ctx, &container.Config{
		Image:      goToolchainImage,
		Cmd:        opts.Cmd,
		WorkingDir: "/workspace",
		Tty:        false,
	}, &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   opts.Workspace,
			Target:   "/workspace",
			ReadOnly: true,
		}},
		NetworkMode: "none",
		AutoRemove:  false,
	}, nil, nil, "")
	if err != nil {
		return nil, errors.Wrap(err, "creating container")
	}
	containerID := resp.ID

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.cli.ContainerRemove(removeCtx, containerID, types.ContainerRemoveOptions{Force: true})
	}()

	if err := c.cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return nil, errors.Wrap(err, "starting container")
	}

	progress(opts.Progress, fmt.Sprintf("running %v in container (this may take a moment)…", opts.Cmd))

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusCh, errCh := c.cli.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil && runCtx.Err() != nil {
			return &RunResult{TimedOut: true, Output: c.collectLogs(ctx, containerID)}, errors.Wrapf(errs.ContainerTimeout,
				"container did not finish within %s", timeout)
		}
		if err != nil {
			return nil, errors.Wrap(err, "waiting for container")
		}
		return nil, errors.New("container wait returned no status")
	case status := <-statusCh:
		output := c.collectLogs(ctx, containerID)
		if status.StatusCode != 0 {
			return &RunResult{ExitCode: int(status.StatusCode), Output: output},
				errors.Wrapf(errs.ContainerNonzero, "container exited %d", status.StatusCode)
		}
		return &RunResult{ExitCode: 0, Output: output}, nil
	case <-runCtx.Done():
		return &RunResult{TimedOut: true, Output: c.collectLogs(ctx, containerID)}, errors.Wrapf(errs.ContainerTimeout,
			"container did not finish within %s", timeout)
	}
}

func (c *Client) collectLogs(ctx context.Context, containerID string) string {
	logCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := c.cli.ContainerLogs(logCtx, containerID, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return ""
	}
	defer out.Close()

	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, out)
	return stdout.String() + stderr.String()
}

func (c *Client) ensureImage(ctx context.Context, ref string, progressFn func(string)) error {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}

	progress(progressFn, fmt.Sprintf("pulling %s (this may take a moment)…", ref))
	rc, err := c.cli.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return errors.Wrapf(err, "pulling image %s", ref)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

func progress(fn func(string), msg string) {
	if fn != nil {
		fn(msg)
	}
}
