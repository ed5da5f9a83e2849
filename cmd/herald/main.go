// Herald scores, deduplicates and gates news items into an at-most-once
// alert stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"

	hc "github.com/linnemanlabs/herald/internal/cfg"
)

const appName = "herald"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

// app carries the configuration shared by every command. Each package
// registers its own flags on fs; cobra only sees them through a bridge.
type app struct {
	fs *flag.FlagSet

	cfg       hc.Config
	httpCfg   httpserver.Config
	httpmwCfg httpmw.Config
	logCfg    log.Config
	opsCfg    opshttp.Config
	profCfg   prof.Config
	traceCfg  otelx.Config

	envFile string

	stdin  io.Reader
	stdout io.Writer
	logger log.Logger
	sync   func() error
}

func newApp(stdin io.Reader, stdout io.Writer) *app {
	a := &app{
		fs:     flag.NewFlagSet(appName, flag.ContinueOnError),
		stdin:  stdin,
		stdout: stdout,
		logger: log.Nop(),
		sync:   func() error { return nil },
	}

	// register flags for each package, which will be parsed into the shared config struct
	a.cfg.RegisterFlags(a.fs)
	a.httpCfg.RegisterFlags(a.fs)
	a.httpmwCfg.RegisterFlags(a.fs)
	a.logCfg.RegisterFlags(a.fs)
	a.opsCfg.RegisterFlags(a.fs)
	a.profCfg.RegisterFlags(a.fs)
	a.traceCfg.RegisterFlags(a.fs)
	return a
}

func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	a := newApp(stdin, stdout)

	v.AppName = appName
	vi := v.Get()

	root := &cobra.Command{
		Use:   appName,
		Short: "Score, deduplicate and gate news items into alerts",
		Long: `Herald turns a noisy batch of raw news items into a small, ranked set of
alerts and remembers what it posted, so no item is ever published twice.`,
		Version:           vi.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		// no-op for slog/stderr, but flushes buffered logs if the backend changes
		PersistentPostRun: func(*cobra.Command, []string) { _ = a.sync() },
	}
	root.SetVersionTemplate(fmt.Sprintf(
		"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
		vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
		vi.VCSDirty != nil && *vi.VCSDirty,
	))
	root.SetIn(stdin)
	root.SetOut(stdout)

	root.PersistentFlags().AddGoFlagSet(a.fs)
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file to load before reading HERALD_* variables (default .env when present)")

	root.AddCommand(
		newRunCmd(a),
		newItemsCmd(a),
		newPublishCmd(a),
		newStateCmd(a),
		newPoolsCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup resolves configuration in order of precedence: explicit flags, then
// the process environment, then the dotenv file, then flag defaults.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := loadDotenv(a.envFile); err != nil {
		return err
	}

	// cobra parsed the command line; tell the Go FlagSet which flags were
	// set so env vars do not override them
	if err := markChanged(cmd.Flags(), a.fs); err != nil {
		return err
	}

	// Fill in config values from environment variables with prefix HERALD_,
	// these do not override cmdline flags
	cfg.FillFromEnv(a.fs, "HERALD_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(a.cfg.Validate(), a.logCfg.Validate()); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	v.Component = cmd.Name()
	lg, err := log.New(a.logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	a.sync = lg.Sync

	// create a logger with component field pre-filled for structured logging
	a.logger = lg.With("component", cmd.Name())
	cmd.SetContext(log.WithContext(cmd.Context(), a.logger))
	return nil
}

// loadDotenv loads path, or .env when path is empty and the file exists.
// Variables already present in the environment win.
func loadDotenv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// markChanged replays every flag cobra saw on the command line into the Go
// FlagSet so that fs.Visit reports it as set.
func markChanged(parsed *pflag.FlagSet, fs *flag.FlagSet) error {
	var errs []error
	parsed.Visit(func(f *pflag.Flag) {
		if fs.Lookup(f.Name) == nil {
			return
		}
		if err := fs.Set(f.Name, f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("flag --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}
