package runtime

import (
	"context"
	"fmt"
	"strings"
)

// Client drives the probe container lifecycle against a container runtime
type Client interface {
	// RunDetached starts a probe container and returns its id
	RunDetached(ctx context.Context, opts ProbeOptions) (string, error)

	// InspectContainer returns the image id backing a container, or "" if the
	// runtime did not report one
	InspectContainer(ctx context.Context, id string) (string, error)

	// InspectImage returns the repository digests of an image, which may be
	// empty for locally built or untagged images
	InspectImage(ctx context.Context, image string) ([]string, error)

	// Stop stops a container; probes are started with --rm so this also
	// removes them
	Stop(ctx context.Context, id string) error
}

// Forwarder re-invokes the real executable with an unmodified argument vector
type Forwarder interface {
	// Forward runs the executable and returns its combined output
	Forward(ctx context.Context, args []string) ([]byte, error)
}

// ProbeOptions configures the probe container
type ProbeOptions struct {
	// Host path of the probe script
	ScriptPath string

	// Path the script is mounted at and used as the entrypoint
	MountPath string

	// The caller's run arguments (image reference and options), passed verbatim
	RunArgs []string
}

// CommandError is returned when a runtime command exits unsuccessfully
type CommandError struct {
	// Command line that was executed, including the executable
	Args []string

	// Exit code, or -1 if the command never ran to completion
	ExitCode int

	// Captured diagnostic output
	Output string

	Err error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		msg = fmt.Sprintf("command failed: %v", e.Err)
	}
	return fmt.Sprintf("%s: %s", strings.Join(e.Args, " "), msg)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
