//go:build unix

package resolve

import (
	"os"

	"golang.org/x/sys/unix"
)

// isExecutable asks the kernel whether the current user may execute path.
func isExecutable(path string, _ os.FileInfo) bool {
	return unix.Access(path, unix.X_OK) == nil
}
