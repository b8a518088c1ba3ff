package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

var beepDecoders = map[string]decodeFunc{
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".wave": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
	".oga":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}

// BeepProber decodes WAV, MP3, FLAC and Ogg Vorbis files in-process
type BeepProber struct{}

// NewBeepProber creates a new in-process prober
func NewBeepProber() *BeepProber {
	return &BeepProber{}
}

// Name returns the prober identifier
func (b *BeepProber) Name() string {
	return "beep"
}

// Probe implements Prober
func (b *BeepProber) Probe(ctx context.Context, path string) (time.Duration, error) {
	decode, ok := beepDecoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return 0, ErrUnsupportedFormat
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	stream, format, err := decode(f)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	defer stream.Close()

	n := stream.Len()
	if n < 0 {
		return 0, fmt.Errorf("decode %s: unknown stream length", filepath.Base(path))
	}

	return format.SampleRate.D(n), nil
}
