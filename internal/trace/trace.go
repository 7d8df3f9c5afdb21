// Package trace reads and writes the digest trace file.
//
// The trace file is shared by every shim invocation of a trace session and
// is consumed downstream as a YAML sequence, one entry per line:
//
//	- myimage@sha256:5b0bcabd1ed22e9fb1310cf6c2dec7cdef19f0ad69efa1f392e94a4333501270
//	- registry.example.com/team/tool@sha256:0e8c...
//
// Writers never hold the file open across invocations. Each record is a
// single write on a descriptor opened with O_APPEND, which keeps concurrent
// shims from interleaving partial lines for writes of this size.
package trace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"
)

// Append records ref as a new "- <ref>" line at the end of the trace file
// at path, creating the file if needed.
func Append(path, ref string) (err error) {
	if ref == "" {
		return errors.New("empty digest")
	}
	if strings.ContainsAny(ref, "\r\n") {
		return fmt.Errorf("digest %q spans multiple lines", ref)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening trace file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing trace file: %w", cerr)
		}
	}()

	if _, err := f.WriteString("- " + ref + "\n"); err != nil {
		return fmt.Errorf("writing trace file: %w", err)
	}
	return nil
}

// Read parses a trace file into its recorded digests, in order.
func Read(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading trace file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var refs []string
	if err := yaml.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("parsing trace file: %w", err)
	}
	return refs, nil
}

// ReadFile is Read for a path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Parse checks that ref is a repository@algorithm:hex reference with a
// well-formed digest.
func Parse(ref string) (name.Digest, error) {
	d, err := name.NewDigest(ref)
	if err != nil {
		return name.Digest{}, fmt.Errorf("parsing %q: %w", ref, err)
	}
	if err := digest.Digest(d.DigestStr()).Validate(); err != nil {
		return name.Digest{}, fmt.Errorf("validating digest of %q: %w", ref, err)
	}
	return d, nil
}

// Problem is a trace entry that does not parse.
type Problem struct {
	// Index is the zero-based position of the entry
	Index int
	Ref   string
	Err   error
}

func (p Problem) String() string {
	return fmt.Sprintf("entry %d (%s): %v", p.Index, p.Ref, p.Err)
}

// Verify returns a Problem for every ref that Parse rejects.
func Verify(refs []string) []Problem {
	var problems []Problem
	for i, ref := range refs {
		if _, err := Parse(ref); err != nil {
			problems = append(problems, Problem{Index: i, Ref: ref, Err: err})
		}
	}
	return problems
}
