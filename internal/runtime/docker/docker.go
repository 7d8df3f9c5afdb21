package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/joshrwolf/digest-shim/internal/runtime"
)

// Docker runtime implementation backed by the docker CLI
type Docker struct {
	// Path to the real docker binary
	dockerPath string
}

// New creates a Docker runtime that shells out to dockerPath
func New(dockerPath string) *Docker {
	return &Docker{
		dockerPath: dockerPath,
	}
}

// RunDetached implements runtime.Client
func (d *Docker) RunDetached(ctx context.Context, opts runtime.ProbeOptions) (string, error) {
	log := clog.FromContext(ctx)

	args := d.buildProbeArgs(opts)
	log.Debug("starting probe container", "args", args)

	out, err := d.output(ctx, args...)
	if err != nil {
		return "", err
	}

	// docker may print pull progress or warnings before the id
	id := lastLine(out)
	if id == "" {
		return "", fmt.Errorf("%s %s: no container id in output", d.dockerPath, strings.Join(args, " "))
	}

	log.Debug("started probe container", "id", id)
	return id, nil
}

// InspectContainer implements runtime.Client
func (d *Docker) InspectContainer(ctx context.Context, id string) (string, error) {
	out, err := d.output(ctx, "container", "inspect", id)
	if err != nil {
		return "", err
	}

	image := parseImageID(out)
	clog.FromContext(ctx).Debug("inspected container", "id", id, "image", image)
	return image, nil
}

// InspectImage implements runtime.Client
func (d *Docker) InspectImage(ctx context.Context, image string) ([]string, error) {
	out, err := d.output(ctx, "image", "inspect", image)
	if err != nil {
		return nil, err
	}

	digests := parseRepoDigests(out)
	clog.FromContext(ctx).Debug("inspected image", "image", image, "repoDigests", digests)
	return digests, nil
}

// Stop implements runtime.Client
func (d *Docker) Stop(ctx context.Context, id string) error {
	if _, err := d.output(ctx, "stop", id); err != nil {
		return err
	}
	clog.FromContext(ctx).Debug("stopped probe container", "id", id)
	return nil
}

// Forward implements runtime.Forwarder
func (d *Docker) Forward(ctx context.Context, args []string) ([]byte, error) {
	log := clog.FromContext(ctx)

	cmd := exec.CommandContext(ctx, d.dockerPath, args...)
	log.Debug("forwarding command", "path", d.dockerPath, "args", args)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, d.commandError(args, output, err)
	}
	return output, nil
}

// buildProbeArgs builds the docker run arguments for the probe container
func (d *Docker) buildProbeArgs(opts runtime.ProbeOptions) []string {
	args := []string{"run", "-d", "--rm"}

	// Script mount, used as the entrypoint. --mount fails on a missing
	// source where -v would create a directory in its place.
	args = append(args, "--mount", fmt.Sprintf("type=bind,source=%s,target=%s,readonly", opts.ScriptPath, opts.MountPath))
	args = append(args, "--entrypoint", opts.MountPath)

	// Image and options exactly as the caller gave them
	args = append(args, opts.RunArgs...)

	return args
}

// output runs docker and returns its stdout. Stderr is only kept for errors.
func (d *Docker) output(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, d.dockerPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		diag := stderr.Bytes()
		if len(bytes.TrimSpace(diag)) == 0 {
			diag = stdout.Bytes()
		}
		return nil, d.commandError(args, diag, err)
	}
	return stdout.Bytes(), nil
}

func (d *Docker) commandError(args []string, output []byte, err error) error {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &runtime.CommandError{
		Args:     append([]string{d.dockerPath}, args...),
		ExitCode: code,
		Output:   string(output),
		Err:      err,
	}
}

// Available reports whether the real docker can reach its daemon
func (d *Docker) Available(ctx context.Context) bool {
	out, err := d.output(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		clog.FromContext(ctx).Debug("docker daemon unreachable", "path", d.dockerPath, "error", err)
		return false
	}
	clog.FromContext(ctx).Debug("docker daemon reachable", "path", d.dockerPath, "server", lastLine(out))
	return true
}

// String names the runtime and the executable behind it
func (d *Docker) String() string {
	return "docker cli (" + d.dockerPath + ")"
}
