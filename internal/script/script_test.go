package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteProbe(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	path, err := WriteProbe(ctx, dir)
	if err != nil {
		t.Fatalf("WriteProbe() error = %v", err)
	}

	if want := filepath.Join(dir, ProbeName); path != want {
		t.Errorf("WriteProbe() path = %q, want %q", path, want)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("WriteProbe() path %q is not absolute", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "#!/bin/sh\nsleep 30\n" {
		t.Errorf("probe content = %q", content)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("probe mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestWriteProbeOverwrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	stale := filepath.Join(dir, ProbeName)
	if err := os.WriteFile(stale, []byte("#!/bin/sh\nsleep 3000\necho leftover from a crashed run\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	path, err := WriteProbe(ctx, dir)
	if err != nil {
		t.Fatalf("WriteProbe() error = %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != ProbeBody {
		t.Errorf("probe content = %q, want %q", content, ProbeBody)
	}
}

func TestWriteProbeMissingDir(t *testing.T) {
	_, err := WriteProbe(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("WriteProbe() error = nil, want error")
	}
}

func TestRemoveProbe(t *testing.T) {
	ctx := context.Background()

	path, err := WriteProbe(ctx, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := RemoveProbe(ctx, path); err != nil {
		t.Fatalf("RemoveProbe() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("probe still exists after RemoveProbe(): %v", err)
	}

	// Removing twice is fine
	if err := RemoveProbe(ctx, path); err != nil {
		t.Errorf("second RemoveProbe() error = %v", err)
	}
}
