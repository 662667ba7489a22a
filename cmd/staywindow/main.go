package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/developingchet/staywindow/internal/config"
	"github.com/developingchet/staywindow/internal/logger"
	"github.com/developingchet/staywindow/internal/metrics"
	"github.com/developingchet/staywindow/internal/storage"
	"github.com/developingchet/staywindow/internal/tracker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// runtimeServer is the long-running part of `serve`.
type runtimeServer interface {
	Run(ctx context.Context) error
}

// Seams replaced in tests.
var (
	loadConfig       = config.Load
	registerMetrics  = metrics.Register
	openStore        = tracker.OpenStore
	newSignalContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	}
	newRuntime = func(cfg *config.Config, t *tracker.Tracker, clock tracker.Clock) runtimeServer {
		return tracker.NewServer(cfg, t, clock)
	}
	clock tracker.Clock = tracker.RealClock{}
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	traveller  string
	json       bool
	noColor    bool
}

// newRootCmd builds and returns the root cobra command. Extracted from main so
// that tests can invoke it directly without spawning a subprocess.
func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "staywindow",
		Short: "Track stays against a rolling-window allowance (Schengen 90/180 by default)",
		Long: `staywindow records entry/exit trips and answers rolling-window questions:
days used and remaining on a given day, how long a stay starting on a given
day may last, and the earliest day a new stay may begin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor || g.json {
				color.NoColor = true
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "config file (YAML or JSON); defaults to $CONFIG_FILE")
	pf.StringVarP(&g.traveller, "traveller", "t", "", "traveller to read and write (overrides TRAVELLER)")
	pf.BoolVar(&g.json, "json", false, "print machine-readable JSON")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		newStatusCmd(g),
		newPlanCmd(g),
		newNextEntryCmd(g),
		newTripsCmd(g),
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the HTTP API and Prometheus metrics",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(g)
			},
		},
		&cobra.Command{
			Use:   "healthcheck",
			Short: "Check store connectivity (for Docker HEALTHCHECK)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHealthcheck(g)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "staywindow %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	return rootCmd
}

// app is an opened configuration, store and tracker.
type app struct {
	cfg     *config.Config
	tracker *tracker.Tracker
}

// openApp loads configuration, sets up logging and opens the store. Short
// CLI commands log at warn unless a more verbose level is configured.
func openApp(ctx context.Context, g *globalFlags, serving bool) (*app, error) {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if g.traveller != "" {
		cfg.Traveller = strings.TrimSpace(g.traveller)
	}

	level := cfg.LogLevel
	if !serving && level != "debug" && level != "trace" {
		level = "warn"
	}
	initLogging(level, cfg.LogFormat)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	t, err := tracker.New(cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &app{cfg: cfg, tracker: t}, nil
}

func (a *app) Close() {
	if err := a.tracker.Close(); err != nil {
		log.Warn().Err(err).Msg("store close failed")
	}
}

func runServe(g *globalFlags) error {
	ctx, cancel := newSignalContext(context.Background())
	defer cancel()

	a, err := openApp(ctx, g, true)
	if err != nil {
		return err
	}
	defer a.Close()

	registerMetrics()
	return newRuntime(a.cfg, a.tracker, clock).Run(ctx)
}

func runHealthcheck(g *globalFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := openApp(ctx, g, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return pingStore(ctx, a.tracker.Store())
}

func pingStore(ctx context.Context, s storage.Store) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("store unhealthy: %w", err)
	}
	return nil
}

func initLogging(level string, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	redacted := logger.NewRedactWriter(os.Stderr)
	if format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: redacted})
	} else {
		log.Logger = zerolog.New(redacted).With().Timestamp().Logger()
	}

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
