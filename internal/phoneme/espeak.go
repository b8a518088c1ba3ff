package phoneme

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// espeakSeparator is passed to --sep so multi-character phonemes survive
const espeakSeparator = "_"

// EspeakTranscriber runs espeak-ng in IPA mode
// https://github.com/espeak-ng/espeak-ng
type EspeakTranscriber struct {
	logger zerolog.Logger
	config Config
}

// NewEspeakTranscriber creates a new espeak-ng backend
func NewEspeakTranscriber(cfg Config, logger zerolog.Logger) *EspeakTranscriber {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "espeak-ng"
	}
	return &EspeakTranscriber{
		logger: logger.With().Str("backend", BackendEspeak).Logger(),
		config: cfg,
	}
}

// Name returns the backend identifier
func (e *EspeakTranscriber) Name() string {
	return BackendEspeak
}

// Transcribe implements Transcriber
func (e *EspeakTranscriber) Transcribe(ctx context.Context, text, language string) ([]string, error) {
	bin, err := exec.LookPath(e.config.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrBackendUnavailable, e.config.BinaryPath, err)
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()

	// echo "text" | espeak-ng -q --ipa --sep=_ -v en-us --stdin
	cmd := exec.CommandContext(ctx, bin,
		"-q",
		"--ipa",
		"--sep="+espeakSeparator,
		"-v", language,
		"--stdin",
	)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		e.logger.Error().
			Err(err).
			Str("stderr", stderr.String()).
			Msg("espeak-ng failed")
		return nil, fmt.Errorf("espeak-ng command failed: %w", err)
	}

	symbols := Tokenize(stdout.String(), espeakSeparator, e.config.WordBoundaries, e.config.KeepStress)

	e.logger.Debug().
		Str("language", language).
		Int("textLen", len(text)).
		Int("phonemes", len(symbols)).
		Dur("processingTime", time.Since(startTime)).
		Msg("Transcribed with espeak-ng")

	return symbols, nil
}
