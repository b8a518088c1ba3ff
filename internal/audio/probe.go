// Package audio reports the duration of the audio clip a timeline is synced to.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Common errors
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrProberUnavailable = errors.New("audio prober unavailable")
)

// Prober reports the total duration of an audio file
type Prober interface {
	// Name returns the prober identifier (e.g., "beep", "ffprobe")
	Name() string

	// Probe decodes the file at path. It returns ErrUnsupportedFormat when
	// the file is in a format this prober cannot read.
	Probe(ctx context.Context, path string) (time.Duration, error)
}

// DurationMillis rounds d to whole milliseconds
func DurationMillis(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond).Milliseconds())
}

// ChainProber tries each prober in turn until one understands the format
type ChainProber struct {
	logger  zerolog.Logger
	probers []Prober
}

// NewChainProber creates a prober that delegates to probers in order
func NewChainProber(logger zerolog.Logger, probers ...Prober) *ChainProber {
	return &ChainProber{
		logger:  logger.With().Str("component", "audio").Logger(),
		probers: probers,
	}
}

// NewDefaultProber decodes in-process first and falls back to ffprobe
func NewDefaultProber(logger zerolog.Logger, ffprobePath string) *ChainProber {
	return NewChainProber(logger, NewBeepProber(), NewFFProbeProber(ffprobePath))
}

// Name returns the prober identifier
func (c *ChainProber) Name() string {
	return "chain"
}

// Probe implements Prober
func (c *ChainProber) Probe(ctx context.Context, path string) (time.Duration, error) {
	for _, p := range c.probers {
		d, err := p.Probe(ctx, path)
		if errors.Is(err, ErrUnsupportedFormat) {
			c.logger.Debug().
				Str("prober", p.Name()).
				Str("path", path).
				Msg("Format not supported, trying next prober")
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%s: %w", p.Name(), err)
		}

		c.logger.Debug().
			Str("prober", p.Name()).
			Str("path", path).
			Dur("duration", d).
			Msg("Audio probed")
		return d, nil
	}

	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}
