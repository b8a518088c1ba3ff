package phoneme

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/rs/zerolog"
)

// Cache stores transcriptions between runs
type Cache interface {
	GetPhonemes(key string) ([]string, bool, error)
	PutPhonemes(key string, phonemes []string) error
}

// CachedTranscriber consults a Cache before calling the wrapped backend.
// Cache failures are logged and never fail a transcription.
type CachedTranscriber struct {
	next    Transcriber
	cache   Cache
	variant string
	logger  zerolog.Logger
}

// NewCachedTranscriber wraps next with cache. variant distinguishes backend
// options that change the output for the same text.
func NewCachedTranscriber(next Transcriber, cache Cache, variant string, logger zerolog.Logger) *CachedTranscriber {
	return &CachedTranscriber{
		next:    next,
		cache:   cache,
		variant: variant,
		logger:  logger.With().Str("backend", next.Name()).Logger(),
	}
}

// Variant encodes the options of cfg that affect transcription output
func Variant(cfg Config) string {
	return "wb=" + strconv.FormatBool(cfg.WordBoundaries) + ",stress=" + strconv.FormatBool(cfg.KeepStress)
}

// Name returns the wrapped backend identifier
func (c *CachedTranscriber) Name() string {
	return c.next.Name()
}

// CacheKey derives the cache key for a transcription request
func CacheKey(backend, variant, language, text string) string {
	h := sha256.New()
	for _, part := range []string{backend, variant, language, text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Transcribe implements Transcriber
func (c *CachedTranscriber) Transcribe(ctx context.Context, text, language string) ([]string, error) {
	key := CacheKey(c.next.Name(), c.variant, language, text)

	phonemes, ok, err := c.cache.GetPhonemes(key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Phoneme cache lookup failed")
	} else if ok {
		c.logger.Debug().Int("phonemes", len(phonemes)).Msg("Phoneme cache hit")
		return phonemes, nil
	}

	phonemes, err = c.next.Transcribe(ctx, text, language)
	if err != nil {
		return nil, err
	}

	if err := c.cache.PutPhonemes(key, phonemes); err != nil {
		c.logger.Warn().Err(err).Msg("Phoneme cache write failed")
	}

	return phonemes, nil
}
