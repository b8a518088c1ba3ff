// Package main provides the CLI entry point for visemesync.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/visemesync/internal/config"
	"github.com/normanking/visemesync/internal/logging"
	"github.com/normanking/visemesync/internal/pipeline"
	"github.com/normanking/visemesync/internal/store"
	"github.com/normanking/visemesync/internal/timeline"
)

var (
	// Version information (set at build time)
	version = "dev"

	cfgFile   string
	verbose   bool
	overrides runOverrides

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

var rootCmd = &cobra.Command{
	Use:   "visemesync",
	Short: "visemesync - transcript and audio to a timed viseme sequence",
	Long: titleStyle.Render("visemesync") + `

Turns a spoken-text transcript and its audio recording into a timed
sequence of mouth shapes for 2D lip-sync animation.

Configuration:
  The tool looks for configuration in:
  1. --config flag (explicit path)
  2. ./visemesync.yaml (current directory)
  3. $HOME/.visemesync/visemesync.yaml

Environment Variables:
  VISEMESYNC_PATHS_TRANSCRIPT   - transcript file
  VISEMESYNC_PATHS_AUDIO        - audio file
  VISEMESYNC_PATHS_OUTPUT       - output file
  VISEMESYNC_PHONEMIZER_BACKEND - espeak or letters

` + dimStyle.Render("Use 'visemesync [command] --help' for more information."),
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPipeline,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate the viseme sequence once",
	Long:  "Load the transcript, measure the audio, phonemize the text and write the timed viseme sequence.",
	Args:  cobra.NoArgs,
	RunE:  runPipeline,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./visemesync.yaml or $HOME/.visemesync/visemesync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Pipeline overrides, shared by the root, run and watch commands
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&overrides.Transcript, "transcript", "", "transcript file (overrides config)")
	pf.StringVar(&overrides.Audio, "audio", "", "audio file (overrides config)")
	pf.StringVar(&overrides.Output, "output", "", "output file (overrides config)")
	pf.StringVar(&overrides.Backend, "backend", "", "phoneme backend: espeak, letters (overrides config)")
	pf.StringVar(&overrides.Language, "language", "", "phonemizer language, e.g. en-us (overrides config)")
	pf.StringVar(&overrides.Aligner, "aligner", "", "timing aligner: even, accumulate (overrides config)")
	pf.StringVar(&overrides.Format, "format", "", "output format: json, yaml (overrides config)")
	pf.BoolVar(&overrides.NoCache, "no-cache", false, "disable the phoneme cache and run history")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(configCmd)

	historyCmd.AddCommand(historyShowCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// runOverrides holds the command-line values that take precedence over
// the configuration file
type runOverrides struct {
	Transcript  string
	Audio       string
	Output      string
	Backend     string
	Language    string
	Aligner     string
	Format      string
	NoCache     bool
	MetricsAddr string
}

func (o runOverrides) apply(cfg *config.Config) {
	if o.Transcript != "" {
		cfg.Paths.Transcript = o.Transcript
	}
	if o.Audio != "" {
		cfg.Paths.Audio = o.Audio
	}
	if o.Output != "" {
		cfg.Paths.Output = o.Output
	}
	if o.Backend != "" {
		cfg.Phonemizer.Backend = o.Backend
	}
	if o.Language != "" {
		cfg.Phonemizer.Language = o.Language
	}
	if o.Aligner != "" {
		cfg.Timing.Aligner = o.Aligner
	}
	if o.Format != "" {
		cfg.Output.Format = o.Format
		if o.Output == "" {
			cfg.Paths.Output = timeline.PathForFormat(cfg.Paths.Output, o.Format)
		}
	}
	if o.NoCache {
		cfg.Store.Enabled = false
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
	}
	if verbose {
		cfg.Log.Level = string(logging.LevelDebug)
	}
}

// loadConfig loads, overrides and validates the configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	overrides.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(&logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		File:    cfg.Log.File,
		Console: true,
		Out:     os.Stderr,
	})
}

// openStore opens the SQLite store when enabled. A store that cannot be
// opened is reported and the run continues without it.
func openStore(cfg *config.Config, logger zerolog.Logger) store.Store {
	if !cfg.Store.Enabled {
		return nil
	}
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store, continuing without it")
		return nil
	}
	return st
}

// app is the wiring shared by the run and watch commands
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	log      zerolog.Logger
	cleanup  func()
}

// setup loads configuration and builds the pipeline. The caller must call
// cleanup to close the store and the logger.
func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.Zerolog()

	st := openStore(cfg, logger.Component("store"))
	cleanup := func() {
		if st != nil {
			st.Close()
		}
		logger.Close()
	}

	p, err := pipeline.FromConfig(cfg, st, log)
	if err != nil {
		cleanup()
		return nil, err
	}

	log.Debug().
		Str("transcript", cfg.Paths.Transcript).
		Str("audio", cfg.Paths.Audio).
		Str("output", cfg.Paths.Output).
		Str("backend", cfg.Phonemizer.Backend).
		Str("aligner", cfg.Timing.Aligner).
		Bool("store", st != nil).
		Msg("Configuration loaded")
	if path := logger.LogPath(); path != "" {
		log.Debug().Str("file", path).Msg("Logging to file")
	}

	return &app{cfg: cfg, pipeline: p, log: log, cleanup: cleanup}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := a.pipeline.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}
	printResult(res)
	return nil
}

func printResult(res *pipeline.Result) {
	if res.Skipped {
		fmt.Println(warnStyle.Render("• Skipped: " + res.Reason))
		return
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Wrote %d visemes to %s", len(res.Cues), res.OutputPath)))
	fmt.Printf("  Duration: %.0f ms\n", res.DurationMs)
	fmt.Printf("  Neutral:  %d\n", res.Stats.Neutral)
	if res.DriftMs > 0 {
		fmt.Printf("  Drift:    %.3g ms from even spacing\n", res.DriftMs)
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("  run %s in %s", res.RunID, res.Elapsed.Round(time.Millisecond))))
}
