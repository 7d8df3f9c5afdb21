package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	workDir := t.TempDir()
	traceFile := filepath.Join(t.TempDir(), "trace.yaml")

	t.Setenv("DIGEST_SHIM_WORK_DIR", workDir)
	t.Setenv("DIGEST_SHIM_TRACE_FILE", traceFile)

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.WorkDir != workDir {
		t.Errorf("WorkDir = %q, want %q", c.WorkDir, workDir)
	}
	if c.TraceFile != traceFile {
		t.Errorf("TraceFile = %q, want %q", c.TraceFile, traceFile)
	}
	if c.Inspector != InspectorCLI {
		t.Errorf("Inspector = %q, want %q", c.Inspector, InspectorCLI)
	}
	if c.Executable != "docker" {
		t.Errorf("Executable = %q, want docker", c.Executable)
	}
	if slog.Level(c.LogLevel) != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want warn", c.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DIGEST_SHIM_WORK_DIR", t.TempDir())
	t.Setenv("DIGEST_SHIM_TRACE_FILE", "trace.yaml")
	t.Setenv("DIGEST_SHIM_LOG_LEVEL", "debug")
	t.Setenv("DIGEST_SHIM_INSPECTOR", "engine")
	t.Setenv("DIGEST_SHIM_EXECUTABLE", "podman")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if slog.Level(c.LogLevel) != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", c.LogLevel)
	}
	if c.Inspector != InspectorEngine {
		t.Errorf("Inspector = %q, want %q", c.Inspector, InspectorEngine)
	}
	if c.Executable != "podman" {
		t.Errorf("Executable = %q, want podman", c.Executable)
	}
}

func TestLoadErrors(t *testing.T) {
	notDir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(notDir, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing work dir",
			env:     map[string]string{"DIGEST_SHIM_TRACE_FILE": "trace.yaml"},
			wantErr: "DIGEST_SHIM_WORK_DIR",
		},
		{
			name:    "missing trace file",
			env:     map[string]string{"DIGEST_SHIM_WORK_DIR": t.TempDir()},
			wantErr: "DIGEST_SHIM_TRACE_FILE",
		},
		{
			name: "empty trace file",
			env: map[string]string{
				"DIGEST_SHIM_WORK_DIR":   t.TempDir(),
				"DIGEST_SHIM_TRACE_FILE": "",
			},
			wantErr: "DIGEST_SHIM_TRACE_FILE",
		},
		{
			name: "work dir is a file",
			env: map[string]string{
				"DIGEST_SHIM_WORK_DIR":   notDir,
				"DIGEST_SHIM_TRACE_FILE": "trace.yaml",
			},
			wantErr: "not a directory",
		},
		{
			name: "unknown inspector",
			env: map[string]string{
				"DIGEST_SHIM_WORK_DIR":   t.TempDir(),
				"DIGEST_SHIM_TRACE_FILE": "trace.yaml",
				"DIGEST_SHIM_INSPECTOR":  "ssh",
			},
			wantErr: "unknown inspector",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{
				"DIGEST_SHIM_WORK_DIR",
				"DIGEST_SHIM_TRACE_FILE",
				"DIGEST_SHIM_INSPECTOR",
			} {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadIgnoresUnprefixedNames(t *testing.T) {
	for _, key := range []string{
		"DIGEST_SHIM_WORK_DIR",
		"DIGEST_SHIM_TRACE_FILE",
		"DIGEST_SHIM_EXECUTABLE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("WORK_DIR", t.TempDir())
	t.Setenv("TRACE_FILE", filepath.Join(t.TempDir(), "unrelated.yaml"))
	t.Setenv("EXECUTABLE", "podman")

	if c, err := Load(); err == nil {
		t.Fatalf("Load() = %+v, want error without %s_* variables", c, Prefix)
	} else if !strings.Contains(err.Error(), "DIGEST_SHIM_WORK_DIR") {
		t.Errorf("Load() error = %v, want it to name DIGEST_SHIM_WORK_DIR", err)
	}

	t.Setenv("DIGEST_SHIM_WORK_DIR", t.TempDir())
	t.Setenv("DIGEST_SHIM_TRACE_FILE", "trace.yaml")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.TraceFile != "trace.yaml" {
		t.Errorf("TraceFile = %q, want trace.yaml", c.TraceFile)
	}
	if c.Executable != "docker" {
		t.Errorf("Executable = %q, want the default, not the bare EXECUTABLE", c.Executable)
	}
}
