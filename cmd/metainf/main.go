// Package main provides the metainf binary entry point.
// Metainf discovers service implementations annotated in Go and Java
// sources and maintains their META-INF/services registry files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	// Register language scanners via init()
	_ "github.com/c360studio/metainf/scanner/golang"
	_ "github.com/c360studio/metainf/scanner/java"

	"github.com/c360studio/metainf/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "metainf"
)

// ErrDiagnostics is returned when a pass reported error diagnostics.
var ErrDiagnostics = errors.New("errors reported")

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions holds the flags shared by every command.
type globalOptions struct {
	configPath  string
	outputDir   string
	logLevel    string
	metricsFile string
	natsURL     string
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Service registration generator",
		Long: `Metainf finds implementations marked as services and keeps the
META-INF/services registry of every contract up to date.

Go types are marked with a //metainf:service directive, Java types with
the @MetaInfServices annotation. Existing registry entries are merged
with discovered ones, and each registry is ordered by priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Project config file path (YAML)")
	flags.StringVarP(&opts.outputDir, "output", "o", "", "Output root for registry files")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after each pass")
	flags.StringVar(&opts.natsURL, "nats-url", "", "Publish registry updates to this NATS server")

	cmd.AddCommand(generateCmd(opts), watchCmd(opts), showCmd(opts))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func generateCmd(opts *globalOptions) *cobra.Command {
	var deferWrites bool

	cmd := &cobra.Command{
		Use:   "generate [paths...]",
		Short: "Scan sources and write registry files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := setup(ctx, cmd, opts, args)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Generate(ctx, deferWrites || app.cfg.Output.DeferWrites)
			if err != nil {
				return err
			}
			written := 0
			for _, c := range res.Contracts {
				if c.Written() {
					written++
				}
			}
			app.logger.Info("Generation complete",
				"accepted", res.Accepted,
				"rejected", res.Rejected,
				"written", written)

			if res.HasErrors() || app.ErrorCount() > 0 {
				return fmt.Errorf("%w: %d rejected, %d diagnostics", ErrDiagnostics, res.Rejected, app.ErrorCount())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&deferWrites, "defer", false, "Discover each path in its own round and write once at the end")
	return cmd
}

func watchCmd(opts *globalOptions) *cobra.Command {
	var deferWrites bool

	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Regenerate registry files as sources change",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup signal handling
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := setup(ctx, cmd, opts, args)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Watch(ctx, deferWrites || app.cfg.Output.DeferWrites)
		},
	}
	cmd.Flags().BoolVar(&deferWrites, "defer", false, "Hold every write until the watch is stopped")
	return cmd
}

func showCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <contract>",
		Short: "Print the registry of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd.Context(), cmd, opts, nil)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Show(args[0])
		},
	}
}

// setup loads the layered configuration, applies the command line on top
// and creates the App.
func setup(ctx context.Context, cmd *cobra.Command, opts *globalOptions, paths []string) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Configure logging; the level is revisited once config is loaded
	var level slog.LevelVar
	level.Set(parseLevel(opts.logLevel))
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).LoadFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.outputDir != "" {
		dir, err := filepath.Abs(opts.outputDir)
		if err != nil {
			return nil, fmt.Errorf("resolve output dir: %w", err)
		}
		cfg.Output.Dir = dir
	}
	if opts.metricsFile != "" {
		cfg.Metrics.Textfile = opts.metricsFile
	}
	if opts.natsURL != "" {
		cfg.Notify.NATSURL = opts.natsURL
	}
	if len(paths) > 0 {
		cfg.Source.Paths = make([]string, len(paths))
		for i, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, fmt.Errorf("resolve path %s: %w", p, err)
			}
			cfg.Source.Paths[i] = abs
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	level.Set(parseLevel(cfg.Log.Level))

	logger.Debug("Configuration loaded",
		"base", cfg.Source.Base,
		"output", cfg.OutputRoot(),
		"prefix", cfg.Output.Prefix)

	return NewApp(ctx, cfg, logger, cmd.OutOrStdout())
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
