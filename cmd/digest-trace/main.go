// Command digest-trace reads the trace file written by the docker shim.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/clog/slag"
	charmlog "github.com/charmbracelet/log"
	"github.com/joshrwolf/digest-shim/internal/config"
	"github.com/joshrwolf/digest-shim/internal/trace"
	"github.com/spf13/cobra"
)

type options struct {
	logLevel slag.Level

	traceFile string
}

// setupLogging configures logging for the command
func (o *options) setupLogging(ctx context.Context, w io.Writer) context.Context {
	l := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(o.logLevel),
		ReportTimestamp: true,
	})
	ctx = clog.WithLogger(ctx, clog.New(l))
	slog.SetDefault(slog.New(l))
	return ctx
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "error: %v", err)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	_ = opts.logLevel.Set("warn")

	rootCmd := &cobra.Command{
		Use:          "digest-trace",
		Short:        "Inspect image digests recorded by the docker shim",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(opts.setupLogging(cmd.Context(), stderr))
			if opts.traceFile == "" {
				return fmt.Errorf("no trace file: pass --trace-file or set %s_TRACE_FILE", config.Prefix)
			}
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().Var(&opts.logLevel, "log-level", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.traceFile, "trace-file", os.Getenv(config.Prefix+"_TRACE_FILE"), "trace file to read")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every recorded digest",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.list(cmd.Context(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Check that every recorded digest is a well-formed repository@algorithm:hex reference",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.verify(cmd.Context(), cmd.OutOrStdout())
			},
		},
	)

	return rootCmd
}

func (o *options) list(ctx context.Context, w io.Writer) error {
	refs, err := trace.ReadFile(o.traceFile)
	if err != nil {
		return err
	}
	clog.FromContext(ctx).Debug("read trace file", "path", o.traceFile, "entries", len(refs))

	for _, ref := range refs {
		fmt.Fprintln(w, ref)
	}
	return nil
}

func (o *options) verify(ctx context.Context, w io.Writer) error {
	log := clog.FromContext(ctx)

	refs, err := trace.ReadFile(o.traceFile)
	if err != nil {
		return err
	}

	problems := trace.Verify(refs)
	for _, p := range problems {
		log.Debug("malformed entry", "index", p.Index, "ref", p.Ref, "error", p.Err)
		fmt.Fprintln(w, p.String())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d of %d entries are malformed", len(problems), len(refs))
	}

	fmt.Fprintf(w, "%d entries ok\n", len(refs))
	return nil
}
