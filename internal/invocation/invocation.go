package invocation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// RunCommand is the only docker subcommand the shim intercepts.
const RunCommand = "run"

// ErrNoRunCommand is returned when the argument vector has no run token.
var ErrNoRunCommand = errors.New("no run command found")

// debugFlags are the shim-only spellings that enable diagnostic output.
// They are only honored before the run token.
var debugFlags = map[string]bool{
	"--debug": true,
	"-D":      true,
}

// Invocation is the argument vector the shim was called with
type Invocation struct {
	// Args is the complete, unmodified argument vector (without the program name)
	Args []string

	// RunIndex is the position of the first run token in Args
	RunIndex int

	// Debug is set when a debug flag precedes the run token
	Debug bool

	// RunArgs is everything after the run token joined with single spaces
	RunArgs string
}

// Parse locates the run token and captures the run arguments.
func Parse(args []string) (*Invocation, error) {
	idx := -1
	for i, arg := range args {
		if arg == RunCommand {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNoRunCommand
	}

	inv := &Invocation{
		Args:     append([]string(nil), args...),
		RunIndex: idx,
		// Lossy for arguments with embedded whitespace; RunArgv re-splits it.
		RunArgs: strings.Join(args[idx+1:], " "),
	}
	for _, arg := range args[:idx] {
		if debugFlags[arg] {
			inv.Debug = true
		}
	}

	return inv, nil
}

// RunArgv splits RunArgs back into an argument vector the way a POSIX
// shell would word-split it.
func (i *Invocation) RunArgv() ([]string, error) {
	argv, err := shlex.Split(i.RunArgs)
	if err != nil {
		return nil, fmt.Errorf("splitting run arguments %q: %w", i.RunArgs, err)
	}
	return argv, nil
}
