//go:build !unix

package resolve

import "os"

func isExecutable(_ string, info os.FileInfo) bool {
	return info.Mode().Perm()&0o111 != 0
}
