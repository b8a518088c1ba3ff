package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/visemesync/internal/config"
	"github.com/normanking/visemesync/internal/metrics"
	"github.com/normanking/visemesync/internal/phoneme"
	"github.com/normanking/visemesync/internal/pipeline"
	"github.com/normanking/visemesync/internal/store"
	"github.com/normanking/visemesync/internal/viseme"
)

// ============== Watch Command ==============

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate the sequence whenever the inputs change",
	Long:  "Run once, then watch the transcript and audio files and run again after every change. Stop with Ctrl+C.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)
		if a.cfg.Metrics.Addr != "" {
			m := metrics.New()
			a.pipeline.SetMetrics(m)
			g.Go(func() error {
				return m.Serve(ctx, a.cfg.Metrics.Addr, a.log.With().Str("component", "metrics").Logger())
			})
		}

		opts := a.pipeline.Options()
		fmt.Println(titleStyle.Render("Watching"))
		fmt.Printf("  Transcript: %s\n", opts.TranscriptPath)
		fmt.Printf("  Audio:      %s\n", opts.AudioPath)
		if a.cfg.Metrics.Addr != "" {
			fmt.Printf("  Metrics:    http://%s/metrics\n", a.cfg.Metrics.Addr)
		}
		fmt.Println(dimStyle.Render("  Press Ctrl+C to stop"))
		fmt.Println()

		w := pipeline.NewWatcher(a.pipeline, watchDebounce, a.log, func(res *pipeline.Result, err error) {
			if err != nil {
				fmt.Println(errorStyle.Render("✗ " + err.Error()))
				return
			}
			printResult(res)
		})
		g.Go(func() error {
			err := w.Run(ctx)
			cancel()
			return err
		})
		return g.Wait()
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", pipeline.DefaultDebounce, "quiet period before re-running after a change")
	watchCmd.Flags().StringVar(&overrides.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464 (overrides config)")
}

// ============== History Commands ==============

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded pipeline runs",
	Long:  "List the most recent pipeline runs recorded in the store, newest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := historyStore()
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println(dimStyle.Render("No runs recorded yet. Generate one with 'visemesync run'"))
			return nil
		}

		fmt.Println(titleStyle.Render("Runs"))
		fmt.Println()
		for _, run := range runs {
			fmt.Printf("%s %s  %s\n", statusMark(run.Status), run.CreatedAt.Local().Format("2006-01-02 15:04:05"), run.OutputPath)
			detail := fmt.Sprintf("%s | %s/%s | %.0f ms | %d phonemes", shortID(run.ID), run.Backend, run.Aligner, run.DurationMs, run.Phonemes)
			if run.Error != "" {
				detail += " | " + run.Error
			}
			fmt.Printf("  %s\n", dimStyle.Render(detail))
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one recorded run",
	Long:  "Show a recorded run by ID or unique ID prefix.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := historyStore()
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := findRun(st, args[0])
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render("Run " + run.ID))
		fmt.Println()
		fmt.Printf("  Status:     %s %s\n", statusMark(run.Status), run.Status)
		fmt.Printf("  Created:    %s\n", run.CreatedAt.Local().Format(time.RFC3339))
		fmt.Printf("  Transcript: %s\n", run.TranscriptPath)
		fmt.Printf("  Audio:      %s\n", run.AudioPath)
		fmt.Printf("  Output:     %s\n", run.OutputPath)
		fmt.Printf("  Backend:    %s (%s)\n", run.Backend, run.Language)
		fmt.Printf("  Aligner:    %s\n", run.Aligner)
		fmt.Printf("  Duration:   %.0f ms\n", run.DurationMs)
		fmt.Printf("  Phonemes:   %d (%d neutral)\n", run.Phonemes, run.Neutral)
		if run.Error != "" {
			fmt.Printf("  Error:      %s\n", run.Error)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
}

// historyStore opens the store read by the history commands. Unlike a run,
// these commands cannot work without it.
func historyStore() (*store.SQLiteStore, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, err := os.Stat(cfg.Store.Path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no run history at %s", cfg.Store.Path)
	}
	return store.NewSQLiteStore(cfg.Store.Path)
}

// findRun resolves an exact ID or a unique prefix of one
func findRun(st store.Store, id string) (*store.Run, error) {
	run, err := st.LoadRun(id)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, store.ErrRunNotFound) && !errors.Is(err, store.ErrInvalidID) {
		return nil, err
	}

	runs, err := st.ListRuns(0)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var found *store.Run
	for _, r := range runs {
		if !strings.HasPrefix(r.ID, id) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("run ID prefix is ambiguous: %s", id)
		}
		found = r
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, id)
	}
	return found, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusMark(status string) string {
	switch status {
	case store.StatusOK:
		return successStyle.Render("●")
	case store.StatusSkipped:
		return warnStyle.Render("○")
	default:
		return errorStyle.Render("✗")
	}
}

// ============== Table Command ==============

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print the phoneme to viseme table",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(titleStyle.Render("Viseme table"))
		fmt.Println()
		for _, m := range viseme.Table() {
			fmt.Printf("  %-4s %s\n", m.Phoneme, m.Viseme)
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("  %-4s %s", "*", viseme.Neutral)))
	},
}

// ============== Config Commands ==============

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Initialize, show, and validate the visemesync configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultConfigPath()
		}

		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}

		if err := config.DefaultConfig().SaveToFile(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Println(successStyle.Render("✓ Configuration written to " + path))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Show the configuration after applying the file, environment and flags.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		overrides.apply(cfg)

		settings := cfg.Settings()
		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Println(titleStyle.Render("Configuration"))
		fmt.Println()
		for _, key := range keys {
			fmt.Printf("  %-28s %v\n", key, settings[key])
		}
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and external tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(successStyle.Render("✓ Configuration is valid"))

		if cfg.Phonemizer.Backend == phoneme.BackendEspeak {
			checkTool("phonemizer", cfg.Phonemizer.BinaryPath, true)
		}
		checkTool("ffprobe", cfg.Audio.FFProbePath, false)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")
}

// checkTool reports whether an external binary can be found
func checkTool(label, binary string, required bool) {
	path, err := exec.LookPath(binary)
	switch {
	case err == nil:
		fmt.Printf("%s %s: %s\n", successStyle.Render("✓"), label, dimStyle.Render(path))
	case required:
		fmt.Printf("%s %s: %s not found in PATH\n", errorStyle.Render("✗"), label, binary)
	default:
		fmt.Printf("%s %s: %s not found, only formats decoded natively are supported\n", warnStyle.Render("•"), label, binary)
	}
}
