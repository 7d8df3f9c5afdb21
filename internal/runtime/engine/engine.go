// Package engine resolves probe metadata through the Docker Engine API.
//
// The probe container is still started, and the original command still
// forwarded, through the real docker CLI: the caller's run arguments are CLI
// grammar, not API configuration. Only inspection and stop go over the API,
// which returns typed responses instead of text to scrape.
package engine

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/joshrwolf/digest-shim/internal/runtime"
	"github.com/joshrwolf/digest-shim/internal/runtime/docker"
)

// apiClient is the subset of the Engine API the inspector needs.
type apiClient interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	Close() error
}

// Engine runs probes through the CLI and inspects them through the API
type Engine struct {
	*docker.Docker

	cli apiClient
}

// New creates an Engine that shells out to dockerPath and talks to the
// daemon configured by the DOCKER_* environment variables.
func New(dockerPath string) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Engine{Docker: docker.New(dockerPath), cli: cli}, nil
}

// String names the runtime and the executable behind it
func (e *Engine) String() string {
	return "engine api, " + e.Docker.String()
}

// Close releases the API client
func (e *Engine) Close() error {
	return e.cli.Close()
}

// InspectContainer implements runtime.Client
func (e *Engine) InspectContainer(ctx context.Context, id string) (string, error) {
	resp, err := e.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("inspecting container %s: %w", id, err)
	}
	if resp.ContainerJSONBase == nil {
		return "", nil
	}

	clog.FromContext(ctx).Debug("inspected container", "id", id, "image", resp.Image)
	return resp.Image, nil
}

// InspectImage implements runtime.Client
func (e *Engine) InspectImage(ctx context.Context, ref string) ([]string, error) {
	resp, err := e.cli.ImageInspect(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("inspecting image %s: %w", ref, err)
	}

	clog.FromContext(ctx).Debug("inspected image", "image", ref, "repoDigests", resp.RepoDigests)
	return resp.RepoDigests, nil
}

// Stop implements runtime.Client. A probe that already exited has been
// removed by --rm, which is the state Stop is after.
func (e *Engine) Stop(ctx context.Context, id string) error {
	log := clog.FromContext(ctx)

	if err := e.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			log.Debug("probe container already gone", "id", id)
			return nil
		}
		return fmt.Errorf("stopping container %s: %w", id, err)
	}

	log.Debug("stopped probe container", "id", id)
	return nil
}

var (
	_ runtime.Client    = (*Engine)(nil)
	_ runtime.Forwarder = (*Engine)(nil)
)
