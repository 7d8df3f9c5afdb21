// Package shim captures the content digest of the image behind a docker run
// and then forwards the run to the real docker.
//
// Capture starts a throwaway probe container from the caller's own run
// arguments with a sleeping entrypoint, inspects it for the image id and the
// image for its repository digest, records the digest in the trace file and
// tears the probe down. Forward then replays the caller's exact argument
// vector against the real executable.
package shim

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chainguard-dev/clog"
	"github.com/joshrwolf/digest-shim/internal/config"
	"github.com/joshrwolf/digest-shim/internal/invocation"
	"github.com/joshrwolf/digest-shim/internal/runtime"
	"github.com/joshrwolf/digest-shim/internal/script"
	"github.com/joshrwolf/digest-shim/internal/trace"
)

// ForwardError is returned when the forwarded command itself fails. Its
// output has already been written to stdout.
type ForwardError struct {
	ExitCode int
	Err      error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forwarded command failed: %v", e.Err)
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}

// Controller runs the capture and forwarding pipeline for one invocation
type Controller struct {
	cfg       *config.Config
	rt        runtime.Client
	forwarder runtime.Forwarder
	stdout    io.Writer
}

// New creates a Controller. Forwarded output is written to stdout.
func New(cfg *config.Config, rt runtime.Client, forwarder runtime.Forwarder, stdout io.Writer) *Controller {
	return &Controller{
		cfg:       cfg,
		rt:        rt,
		forwarder: forwarder,
		stdout:    stdout,
	}
}

// Run captures the digest for inv and forwards it. The original command is
// not forwarded if capture fails.
func (c *Controller) Run(ctx context.Context, inv *invocation.Invocation) error {
	if _, err := c.Capture(ctx, inv); err != nil {
		return err
	}
	return c.Forward(ctx, inv.Args)
}

// Capture runs the probe lifecycle and records the digest of the probed
// image. It returns the recorded digest, or "" when the runtime reported
// none.
func (c *Controller) Capture(ctx context.Context, inv *invocation.Invocation) (ref string, err error) {
	log := clog.FromContext(ctx)

	runArgs, err := inv.RunArgv()
	if err != nil {
		return "", err
	}

	scriptPath, err := script.WriteProbe(ctx, c.cfg.WorkDir)
	if err != nil {
		return "", err
	}

	id, err := c.rt.RunDetached(ctx, runtime.ProbeOptions{
		ScriptPath: scriptPath,
		MountPath:  script.ProbeMountPath,
		RunArgs:    runArgs,
	})
	if err != nil {
		c.removeProbe(ctx, scriptPath)
		return "", fmt.Errorf("starting probe container: %w", err)
	}
	log.Debug("probe container running", "id", id)

	defer func() {
		terr := c.teardown(ctx, id, scriptPath)
		switch {
		case terr == nil:
		case err == nil:
			err = terr
		default:
			log.Warn("probe teardown failed", "id", id, "error", terr)
		}
	}()

	imageID, err := c.rt.InspectContainer(ctx, id)
	if err != nil {
		return "", fmt.Errorf("inspecting probe container: %w", err)
	}
	if imageID == "" {
		log.Warn("probe container reports no image, not recording a digest", "id", id)
		return "", nil
	}

	digests, err := c.rt.InspectImage(ctx, imageID)
	if err != nil {
		return "", fmt.Errorf("inspecting image: %w", err)
	}
	if len(digests) == 0 {
		log.Info("image has no repository digest, not recording", "image", imageID)
		return "", nil
	}
	if len(digests) > 1 {
		log.Debug("image has several repository digests, recording the first", "image", imageID, "repoDigests", digests)
	}

	ref = digests[0]
	if _, perr := trace.Parse(ref); perr != nil {
		log.Warn("recording digest that does not parse as a reference", "digest", ref, "error", perr)
	}

	if err := trace.Append(c.cfg.TraceFile, ref); err != nil {
		return "", err
	}
	log.Debug("recorded digest", "digest", ref, "trace", c.cfg.TraceFile)

	return ref, nil
}

// teardown stops the probe container and removes the probe script. It runs
// even if ctx was cancelled so an interrupted shim does not leave a probe
// behind.
func (c *Controller) teardown(ctx context.Context, id, scriptPath string) error {
	ctx = context.WithoutCancel(ctx)

	stopErr := c.rt.Stop(ctx, id)
	c.removeProbe(ctx, scriptPath)

	if stopErr != nil {
		return fmt.Errorf("stopping probe container %s: %w", id, stopErr)
	}
	return nil
}

func (c *Controller) removeProbe(ctx context.Context, scriptPath string) {
	if err := script.RemoveProbe(ctx, scriptPath); err != nil {
		clog.FromContext(ctx).Warn("leaving probe script behind", "error", err)
	}
}

// Forward replays args against the real executable and copies its combined
// output to stdout, whether or not the command succeeded.
func (c *Controller) Forward(ctx context.Context, args []string) error {
	out, err := c.forwarder.Forward(ctx, args)
	if _, werr := c.stdout.Write(out); werr != nil && err == nil {
		return fmt.Errorf("writing forwarded output: %w", werr)
	}
	if err != nil {
		code := 1
		var cerr *runtime.CommandError
		if errors.As(err, &cerr) && cerr.ExitCode > 0 {
			code = cerr.ExitCode
		}
		return &ForwardError{ExitCode: code, Err: err}
	}
	return nil
}
