package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
)

const (
	// ProbeName is the file the probe script is written to inside the work dir
	ProbeName = "digest-shim-probe.sh"

	// ProbeMountPath is where the probe script is bind mounted in the container
	ProbeMountPath = "/digest-shim-probe.sh"

	// ProbeBody keeps the probe container alive long enough to be inspected
	ProbeBody = "#!/bin/sh\nsleep 30\n"
)

// WriteProbe writes the probe script into dir, marks it executable and
// returns its absolute path.
func WriteProbe(ctx context.Context, dir string) (_ string, err error) {
	log := clog.FromContext(ctx)

	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving work dir: %w", err)
	}
	path := filepath.Join(dir, ProbeName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", fmt.Errorf("creating probe script: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing probe script: %w", cerr)
		}
	}()

	if _, err := f.WriteString(ProbeBody); err != nil {
		return "", fmt.Errorf("writing probe script: %w", err)
	}

	// The create mode is subject to umask
	if err := f.Chmod(0o755); err != nil {
		return "", fmt.Errorf("chmod probe script: %w", err)
	}

	log.Debug("wrote probe script", "path", path)
	return path, nil
}

// RemoveProbe deletes the probe script. A script that is already gone is
// not an error.
func RemoveProbe(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing probe script: %w", err)
	}
	clog.FromContext(ctx).Debug("removed probe script", "path", path)
	return nil
}
