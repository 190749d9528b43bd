package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/learnsync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	DataDir    string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries the resolved configuration and logger to subcommands.
// It is built once in PersistentPreRunE and stored in the command context.
type CLIContext struct {
	Flags   CLIFlags
	Cfg     *config.Config
	CfgPath string
	Env     config.EnvOverrides
	Logger  *slog.Logger
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext stored by PersistentPreRunE. A missing
// context is a wiring bug.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("learnsync: CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds the fully-assembled root command. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "learnsync",
		Short:   "Offline-capable learning progress client",
		Long:    "Tracks video watch time and reconciles learning progress with the remote service.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.DataDir, "data-dir", "", "data directory (state.db, token.json)")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newRefreshCmd(),
		newStatusCmd(),
		newReportVideoCmd(),
		newReportArticleCmd(),
		newServeCmd(),
		newExportCmd(),
		newConfigCmd(),
	)

	return cmd
}

// loadCLIContext resolves the override chain and builds the logger.
func loadCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	boot := bootstrapLogger(flags)

	if err := config.LoadDotEnv("", boot); err != nil {
		return nil, err
	}

	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}
	if cmd.Flags().Changed("data-dir") {
		cli.DataDir = &flags.DataDir
	}

	env := config.ReadEnvOverrides(boot)

	cfg, cfgPath, err := config.Resolve(env, cli, boot)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &CLIContext{
		Flags:   flags,
		Cfg:     cfg,
		CfgPath: cfgPath,
		Env:     env,
		Logger:  buildLogger(cfg, flags, os.Stderr),
	}, nil
}

// reloadConfig re-resolves the override chain with the same env and CLI
// layers. Used by the config watcher under serve.
func (cc *CLIContext) reloadConfig() (*config.Config, error) {
	cli := config.CLIOverrides{ConfigPath: cc.CfgPath}
	if cc.Flags.DataDir != "" {
		cli.DataDir = &cc.Flags.DataDir
	}

	cfg, _, err := config.Resolve(cc.Env, cli, cc.Logger)

	return cfg, err
}

// bootstrapLogger is used before config is loaded. It honors only the
// --verbose and --quiet flags.
func bootstrapLogger(flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it. Format "auto" picks text on a terminal and JSON
// otherwise.
func buildLogger(cfg *config.Config, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(cfg.Logging.LogFormat, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func useJSONLogs(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return true
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// newHTTPClient returns an HTTP client bounded by the configured timeouts.
func newHTTPClient(cfg *config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout()}).DialContext

	return &http.Client{
		Timeout:   cfg.DataTimeout(),
		Transport: transport,
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
