// Package fake provides an in-memory runtime for tests.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/joshrwolf/digest-shim/internal/runtime"
)

// Runtime is an in-memory runtime.Client and runtime.Forwarder. The zero
// value starts probes named "probe-1", "probe-2", ... whose image has no
// id; populate the fields to script other answers.
type Runtime struct {
	// ImageID is reported for every container
	ImageID string

	// RepoDigests maps image ids to their repository digests
	RepoDigests map[string][]string

	// Forwarded output, by default the space-joined arguments
	ForwardOutput func(args []string) []byte

	// Errors returned by the corresponding operation, if set
	RunErr, InspectContainerErr, InspectImageErr, StopErr, ForwardErr error

	mu      sync.Mutex
	calls   []string
	probes  []runtime.ProbeOptions
	running map[string]bool
	started int
}

func (r *Runtime) record(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

// RunDetached implements runtime.Client
func (r *Runtime) RunDetached(_ context.Context, opts runtime.ProbeOptions) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("run %s", strings.Join(opts.RunArgs, " "))
	r.probes = append(r.probes, opts)
	if r.RunErr != nil {
		return "", r.RunErr
	}

	r.started++
	id := fmt.Sprintf("probe-%d", r.started)
	if r.running == nil {
		r.running = map[string]bool{}
	}
	r.running[id] = true
	return id, nil
}

// InspectContainer implements runtime.Client
func (r *Runtime) InspectContainer(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("container inspect %s", id)
	if r.InspectContainerErr != nil {
		return "", r.InspectContainerErr
	}
	if !r.running[id] {
		return "", fmt.Errorf("no such container: %s", id)
	}
	return r.ImageID, nil
}

// InspectImage implements runtime.Client
func (r *Runtime) InspectImage(_ context.Context, image string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("image inspect %s", image)
	if r.InspectImageErr != nil {
		return nil, r.InspectImageErr
	}
	return r.RepoDigests[image], nil
}

// Stop implements runtime.Client
func (r *Runtime) Stop(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("stop %s", id)
	if r.StopErr != nil {
		return r.StopErr
	}
	delete(r.running, id)
	return nil
}

// Forward implements runtime.Forwarder
func (r *Runtime) Forward(_ context.Context, args []string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record("forward %s", strings.Join(args, " "))

	var out []byte
	if r.ForwardOutput != nil {
		out = r.ForwardOutput(args)
	} else {
		out = []byte(strings.Join(args, " ") + "\n")
	}
	return out, r.ForwardErr
}

// Calls returns every operation issued so far, in order
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Probes returns the options of every probe started
func (r *Runtime) Probes() []runtime.ProbeOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runtime.ProbeOptions(nil), r.probes...)
}

// Running returns the ids of probes that were started and not stopped
func (r *Runtime) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id := range r.running {
		ids = append(ids, id)
	}
	return ids
}

var (
	_ runtime.Client    = (*Runtime)(nil)
	_ runtime.Forwarder = (*Runtime)(nil)
)
