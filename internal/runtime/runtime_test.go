package runtime

import (
	"errors"
	"testing"
)

func TestCommandError(t *testing.T) {
	base := errors.New("exit status 125")

	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "captured output",
			err: &CommandError{
				Args:     []string{"/usr/bin/docker", "stop", "abc"},
				ExitCode: 1,
				Output:   "Error response from daemon: No such container: abc\n",
				Err:      base,
			},
			want: "/usr/bin/docker stop abc: Error response from daemon: No such container: abc",
		},
		{
			name: "fallback message",
			err: &CommandError{
				Args:     []string{"/usr/bin/docker", "image", "inspect", "sha256:abc"},
				ExitCode: 125,
				Err:      base,
			},
			want: "/usr/bin/docker image inspect sha256:abc: command failed: exit status 125",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, base) {
				t.Error("errors.Is(err, base) = false, want true")
			}
		})
	}
}
