// Package phoneme converts transcript text into an ordered sequence of
// phoneme symbols. Symbols are whole strings (an IPA diphthong such as "aɪ"
// is one symbol), never split into characters after transcription.
package phoneme

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Common errors
var (
	ErrUnknownBackend     = errors.New("unknown phoneme backend")
	ErrBackendUnavailable = errors.New("phoneme backend unavailable")
)

// Backend names accepted by New
const (
	BackendEspeak  = "espeak"
	BackendLetters = "letters"
)

// WordBoundary is the symbol emitted between words when word boundaries are
// kept. It has no viseme and renders as a neutral mouth.
const WordBoundary = " "

// Transcriber is the interface all phoneme backends implement
type Transcriber interface {
	// Name returns the backend identifier (e.g., "espeak", "letters")
	Name() string

	// Transcribe converts text in the given language to phoneme symbols
	Transcribe(ctx context.Context, text, language string) ([]string, error)
}

// Config holds phoneme backend configuration
type Config struct {
	Backend        string        `json:"backend"`
	BinaryPath     string        `json:"binary_path"`     // espeak-ng binary (default: espeak-ng on PATH)
	WordBoundaries bool          `json:"word_boundaries"` // emit WordBoundary between words
	KeepStress     bool          `json:"keep_stress"`     // keep IPA stress and length marks
	Timeout        time.Duration `json:"timeout"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Backend:        BackendEspeak,
		BinaryPath:     "espeak-ng",
		WordBoundaries: true,
		Timeout:        30 * time.Second,
	}
}

// New returns the transcriber selected by cfg.Backend
func New(cfg Config, logger zerolog.Logger) (Transcriber, error) {
	switch cfg.Backend {
	case BackendEspeak:
		return NewEspeakTranscriber(cfg, logger), nil
	case BackendLetters:
		return NewLetterTranscriber(cfg.WordBoundaries), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// ipaMarks are suprasegmentals that decorate a phoneme rather than being one
var ipaMarks = strings.NewReplacer("ˈ", "", "ˌ", "", "ː", "", "ˑ", "")

// Tokenize splits backend output into phoneme symbols. Words are separated
// by whitespace and phonemes within a word by sep.
func Tokenize(output, sep string, wordBoundaries, keepStress bool) []string {
	symbols := make([]string, 0, len(output))

	for _, word := range strings.Fields(output) {
		phones := make([]string, 0, len(word))
		for _, sym := range strings.Split(word, sep) {
			if !keepStress {
				sym = ipaMarks.Replace(sym)
			}
			if sym != "" {
				phones = append(phones, sym)
			}
		}
		if len(phones) == 0 {
			continue
		}
		if wordBoundaries && len(symbols) > 0 {
			symbols = append(symbols, WordBoundary)
		}
		symbols = append(symbols, phones...)
	}

	return symbols
}
