// Package config provides configuration management for visemesync
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/normanking/visemesync/internal/logging"
	"github.com/normanking/visemesync/internal/phoneme"
	"github.com/normanking/visemesync/internal/timeline"
)

// EnvPrefix prefixes every environment override, e.g. VISEMESYNC_PATHS_AUDIO
const EnvPrefix = "VISEMESYNC"

// Config holds all application configuration
type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Phonemizer PhonemizerConfig `mapstructure:"phonemizer"`
	Timing     TimingConfig     `mapstructure:"timing"`
	Audio      AudioConfig      `mapstructure:"audio"`
	Output     OutputConfig     `mapstructure:"output"`
	Store      StoreConfig      `mapstructure:"store"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// PathsConfig locates the pipeline's input and output files
type PathsConfig struct {
	Transcript string `mapstructure:"transcript"`
	Audio      string `mapstructure:"audio"`
	Output     string `mapstructure:"output"`
}

// PhonemizerConfig selects and tunes the phoneme backend
type PhonemizerConfig struct {
	Backend        string        `mapstructure:"backend"` // espeak, letters
	Language       string        `mapstructure:"language"`
	BinaryPath     string        `mapstructure:"binary_path"`
	WordBoundaries bool          `mapstructure:"word_boundaries"`
	KeepStress     bool          `mapstructure:"keep_stress"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// TimingConfig selects the alignment strategy
type TimingConfig struct {
	Aligner string `mapstructure:"aligner"` // even, accumulate
}

// AudioConfig configures the duration probe
type AudioConfig struct {
	FFProbePath string `mapstructure:"ffprobe_path"`
}

// OutputConfig controls timeline serialization
type OutputConfig struct {
	Format string `mapstructure:"format"` // json, yaml
	Indent int    `mapstructure:"indent"`
}

// StoreConfig configures the phoneme cache and run history database
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig configures the Prometheus endpoint of the watch command
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`
}

// DataDir returns the directory holding the database and default config
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".visemesync"
	}
	return filepath.Join(home, ".visemesync")
}

// DefaultConfig returns a new configuration with default values
func DefaultConfig() *Config {
	ph := phoneme.DefaultConfig()
	return &Config{
		Paths: PathsConfig{
			Transcript: filepath.Join("inputs", "transcript.txt"),
			Audio:      filepath.Join("inputs", "audio.m4a"),
			Output:     filepath.Join("output", "viseme_sequence.json"),
		},
		Phonemizer: PhonemizerConfig{
			Backend:        ph.Backend,
			Language:       "en-us",
			BinaryPath:     ph.BinaryPath,
			WordBoundaries: ph.WordBoundaries,
			KeepStress:     ph.KeepStress,
			Timeout:        ph.Timeout,
		},
		Timing: TimingConfig{
			Aligner: timeline.AlignerEven,
		},
		Audio: AudioConfig{
			FFProbePath: "ffprobe",
		},
		Output: OutputConfig{
			Format: timeline.FormatJSON,
			Indent: timeline.DefaultIndent,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    filepath.Join(DataDir(), "visemesync.db"),
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load loads configuration from file and environment variables. An empty
// configPath searches ./visemesync.yaml and $HOME/.visemesync/visemesync.yaml;
// a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("visemesync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DataDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Log.File = expandHome(cfg.Log.File)

	return &cfg, nil
}

// SaveToFile writes the configuration as YAML
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	for key, value := range c.Settings() {
		v.Set(key, value)
	}
	return v.WriteConfigAs(path)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Paths.Transcript == "" {
		return errors.New("paths.transcript is required")
	}
	if c.Paths.Audio == "" {
		return errors.New("paths.audio is required")
	}
	if c.Paths.Output == "" {
		return errors.New("paths.output is required")
	}

	switch c.Phonemizer.Backend {
	case phoneme.BackendEspeak, phoneme.BackendLetters:
	default:
		return fmt.Errorf("invalid phonemizer backend: %s (must be espeak or letters)", c.Phonemizer.Backend)
	}
	if c.Phonemizer.Language == "" {
		return errors.New("phonemizer.language is required")
	}
	if c.Phonemizer.Timeout < 0 {
		return fmt.Errorf("invalid phonemizer timeout: %s", c.Phonemizer.Timeout)
	}

	if _, err := timeline.NewAligner(c.Timing.Aligner); err != nil {
		return fmt.Errorf("invalid timing aligner: %s (must be even or accumulate)", c.Timing.Aligner)
	}

	switch c.Output.Format {
	case timeline.FormatJSON, timeline.FormatYAML:
	default:
		return fmt.Errorf("invalid output format: %s (must be json or yaml)", c.Output.Format)
	}
	if err := timeline.CheckPath(c.Paths.Output, c.Output.Format); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}
	if c.Output.Indent < 1 || c.Output.Indent > 16 {
		return fmt.Errorf("invalid output indent: %d (must be 1-16)", c.Output.Indent)
	}

	if c.Store.Enabled && c.Store.Path == "" {
		return errors.New("store.path is required when the store is enabled")
	}

	switch logging.LogLevel(c.Log.Level) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Log.Level)
	}

	return nil
}

// PhonemeConfig converts the phonemizer section for the phoneme package
func (c *Config) PhonemeConfig() phoneme.Config {
	return phoneme.Config{
		Backend:        c.Phonemizer.Backend,
		BinaryPath:     c.Phonemizer.BinaryPath,
		WordBoundaries: c.Phonemizer.WordBoundaries,
		KeepStress:     c.Phonemizer.KeepStress,
		Timeout:        c.Phonemizer.Timeout,
	}
}

// DefaultConfigPath returns the per-user configuration file path
func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "visemesync.yaml")
}

// Settings flattens the configuration into dotted viper keys
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"paths.transcript":           c.Paths.Transcript,
		"paths.audio":                c.Paths.Audio,
		"paths.output":               c.Paths.Output,
		"phonemizer.backend":         c.Phonemizer.Backend,
		"phonemizer.language":        c.Phonemizer.Language,
		"phonemizer.binary_path":     c.Phonemizer.BinaryPath,
		"phonemizer.word_boundaries": c.Phonemizer.WordBoundaries,
		"phonemizer.keep_stress":     c.Phonemizer.KeepStress,
		"phonemizer.timeout":         c.Phonemizer.Timeout.String(),
		"timing.aligner":             c.Timing.Aligner,
		"audio.ffprobe_path":         c.Audio.FFProbePath,
		"output.format":              c.Output.Format,
		"output.indent":              c.Output.Indent,
		"store.enabled":              c.Store.Enabled,
		"store.path":                 c.Store.Path,
		"metrics.addr":               c.Metrics.Addr,
		"log.level":                  c.Log.Level,
		"log.file":                   c.Log.File,
	}
}

func setDefaults(v *viper.Viper) {
	for key, value := range DefaultConfig().Settings() {
		v.SetDefault(key, value)
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
