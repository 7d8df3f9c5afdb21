// Package resolve finds the real container runtime executable that the shim
// shadows on PATH.
//
// The shim only works when the calling environment places it ahead of the
// real executable on PATH. Under that arrangement every lookup of the
// command name yields the shim first and the real binary second, and
// Delegate returns that second match. Fewer than two distinct matches means
// the precondition does not hold and ErrNotFound is returned.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
)

// ErrNotFound is returned when no second match exists on PATH.
var ErrNotFound = errors.New("original executable not found")

// All returns every executable named name found on pathList, in search
// order. Entries that point at a file already returned (a directory listed
// twice, or a symlink to an earlier match) are skipped.
func All(name, pathList string) []string {
	var (
		matches []string
		seen    []os.FileInfo
	)

	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			// POSIX treats an empty entry as the current directory
			dir = "."
		}
		candidate := filepath.Join(dir, name)

		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() || !isExecutable(candidate, info) {
			continue
		}

		dup := false
		for _, s := range seen {
			if os.SameFile(s, info) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}

		seen = append(seen, info)
		matches = append(matches, candidate)
	}

	return matches
}

// Delegate returns the executable the shim forwards to: the second distinct
// match of name on pathList. self, when set, is the shim's own path and is
// only used to report when the first match is not the shim.
func Delegate(ctx context.Context, name, pathList, self string) (string, error) {
	log := clog.FromContext(ctx)

	matches := All(name, pathList)
	log.Debug("resolved executables", "name", name, "matches", matches)

	if len(matches) < 2 {
		return "", fmt.Errorf("%w: %d match(es) for %q on PATH, the shim must shadow a real %s", ErrNotFound, len(matches), name, name)
	}

	if self != "" && !sameFile(matches[0], self) {
		log.Info("first match on PATH is not the shim", "first", matches[0], "shim", self)
	}

	return matches[1], nil
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
