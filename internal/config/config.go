package config

import (
	"fmt"
	"os"

	"github.com/chainguard-dev/clog/slag"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable the shim reads.
const Prefix = "DIGEST_SHIM"

// Inspectors that can resolve image ids and digests.
const (
	InspectorCLI    = "cli"
	InspectorEngine = "engine"
)

// Config is the environment contract of the shim. It is read once at
// startup and passed to the controller. Every key is DIGEST_SHIM_<FIELD>,
// with no fallback to the bare name.
type Config struct {
	// WorkDir holds the probe script
	WorkDir string `split_words:"true" required:"true"`

	// TraceFile receives one "- <digest>" line per recorded run
	TraceFile string `split_words:"true" required:"true"`

	LogLevel slag.Level `split_words:"true" default:"warn"`

	// Inspector selects how image ids and digests are resolved
	Inspector string `split_words:"true" default:"cli"`

	// Executable is the command name the shim shadows on PATH
	Executable string `split_words:"true" default:"docker"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the values that envconfig cannot.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("%s_WORK_DIR is empty", Prefix)
	}
	if c.TraceFile == "" {
		return fmt.Errorf("%s_TRACE_FILE is empty", Prefix)
	}

	info, err := os.Stat(c.WorkDir)
	if err != nil {
		return fmt.Errorf("checking work dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("work dir %s is not a directory", c.WorkDir)
	}

	switch c.Inspector {
	case InspectorCLI, InspectorEngine:
	default:
		return fmt.Errorf("unknown inspector %q (want %s or %s)", c.Inspector, InspectorCLI, InspectorEngine)
	}

	if c.Executable == "" {
		return fmt.Errorf("%s_EXECUTABLE is empty", Prefix)
	}
	return nil
}
