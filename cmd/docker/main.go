// Command docker is installed ahead of the real docker on PATH. For every
// docker run it records the content digest of the image being run in the
// trace file, then hands the untouched command line to the real docker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	charmlog "github.com/charmbracelet/log"
	"github.com/joshrwolf/digest-shim/internal/config"
	"github.com/joshrwolf/digest-shim/internal/invocation"
	"github.com/joshrwolf/digest-shim/internal/resolve"
	"github.com/joshrwolf/digest-shim/internal/runtime"
	"github.com/joshrwolf/digest-shim/internal/runtime/docker"
	"github.com/joshrwolf/digest-shim/internal/runtime/engine"
	"github.com/joshrwolf/digest-shim/internal/shim"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// logPrefix tags every diagnostic line the shim writes
const logPrefix = "digest-shim"

type options struct {
	stdout io.Writer
	stderr io.Writer

	logger *charmlog.Logger
}

// setupLogging configures logging for the command. The shim stays quiet
// unless asked otherwise since it shares stderr with the real docker.
func (o *options) setupLogging(ctx context.Context) context.Context {
	o.logger = charmlog.NewWithOptions(o.stderr, charmlog.Options{
		Level:           charmlog.WarnLevel,
		Prefix:          logPrefix,
		ReportTimestamp: true,
	})
	if f, ok := o.stderr.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		o.logger.SetFormatter(charmlog.LogfmtFormatter)
	}

	ctx = clog.WithLogger(ctx, clog.New(o.logger))
	slog.SetDefault(slog.New(o.logger))
	return ctx
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// execute runs the shim and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &options{stdout: stdout, stderr: stderr}
	ctx = opts.setupLogging(ctx)

	rootCmd := &cobra.Command{
		Use:   "docker [docker options] run [run options] IMAGE [COMMAND] [ARG...]",
		Short: "Record the digest of the image behind docker run, then run it",
		// Everything belongs to docker, including --help
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.Context(), args)
		},
	}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ferr *shim.ForwardError
	if errors.As(err, &ferr) {
		// docker already explained itself on stdout
		clog.FromContext(ctx).Debug("forwarded command failed", "code", ferr.ExitCode, "error", ferr.Err)
		return ferr.ExitCode
	}

	clog.FromContext(ctx).Errorf("error: %v", err)
	return 1
}

func (o *options) run(ctx context.Context, args []string) error {
	inv, err := invocation.Parse(args)
	if err != nil {
		return err
	}
	if inv.Debug {
		o.logger.SetLevel(charmlog.DebugLevel)
	}

	log := clog.FromContext(ctx)
	log.Debug("starting digest-shim", "args", inv.Args, "runArgs", inv.RunArgs)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !inv.Debug {
		o.logger.SetLevel(charmlog.Level(cfg.LogLevel))
	}

	self, err := os.Executable()
	if err != nil {
		log.Debug("cannot determine own path", "error", err)
		self = ""
	}
	dockerPath, err := resolve.Delegate(ctx, cfg.Executable, os.Getenv("PATH"), self)
	if err != nil {
		return err
	}
	log.Debug("resolved real executable", "path", dockerPath)

	rt, closeRuntime, err := newRuntime(cfg, dockerPath)
	if err != nil {
		return err
	}
	defer closeRuntime()
	if o.logger.GetLevel() <= charmlog.DebugLevel {
		log.Debug("using runtime", "runtime", rt, "inspector", cfg.Inspector, "available", rt.Available(ctx))
	}

	return shim.New(cfg, rt, rt, o.stdout).Run(ctx, inv)
}

// client is a runtime that can also forward
type client interface {
	runtime.Client
	runtime.Forwarder
	fmt.Stringer

	Available(ctx context.Context) bool
}

func newRuntime(cfg *config.Config, dockerPath string) (client, func() error, error) {
	if cfg.Inspector == config.InspectorEngine {
		e, err := engine.New(dockerPath)
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	}
	return docker.New(dockerPath), func() error { return nil }, nil
}
