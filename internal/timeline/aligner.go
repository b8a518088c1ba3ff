// Package timeline turns a phoneme sequence and an audio duration into a
// viseme timeline.
package timeline

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownAligner is returned by NewAligner for names it does not know
var ErrUnknownAligner = errors.New("unknown aligner")

// Aligner names accepted by NewAligner
const (
	AlignerEven       = "even"
	AlignerAccumulate = "accumulate"
)

// Span is a time interval in milliseconds
type Span struct {
	Start float64
	End   float64
}

// Aligner assigns a time span to each of count phonemes spread over a clip
// of durationMs milliseconds. Implementations must return exactly count
// spans in phoneme order, or none when count is zero.
type Aligner interface {
	Name() string
	Align(count int, durationMs float64) []Span
}

// NewAligner returns the aligner registered under name
func NewAligner(name string) (Aligner, error) {
	switch name {
	case "", AlignerEven:
		return EvenAligner{}, nil
	case AlignerAccumulate:
		return AccumulatingAligner{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAligner, name)
	}
}

// EvenAligner splits the clip into count equal slots. Boundaries are
// computed multiplicatively so the last span always ends exactly at the
// clip duration.
type EvenAligner struct{}

// Name returns the aligner identifier
func (EvenAligner) Name() string { return AlignerEven }

// Align implements Aligner
func (EvenAligner) Align(count int, durationMs float64) []Span {
	if count <= 0 {
		return nil
	}

	n := float64(count)
	spans := make([]Span, count)
	for k := range spans {
		spans[k] = Span{
			Start: float64(k) * durationMs / n,
			End:   float64(k+1) * durationMs / n,
		}
	}
	spans[count-1].End = durationMs

	return spans
}

// AccumulatingAligner advances a running cursor by a fixed step per
// phoneme. Rounding error accumulates, so the last boundary can drift away
// from the clip duration. Use MaxDrift to compare it with EvenAligner.
type AccumulatingAligner struct{}

// Name returns the aligner identifier
func (AccumulatingAligner) Name() string { return AlignerAccumulate }

// Align implements Aligner
func (AccumulatingAligner) Align(count int, durationMs float64) []Span {
	if count <= 0 {
		return nil
	}

	step := durationMs / float64(count)
	spans := make([]Span, count)
	cursor := 0.0
	for k := range spans {
		spans[k] = Span{Start: cursor, End: cursor + step}
		cursor += step
	}

	return spans
}

// MaxDrift returns the largest absolute difference between corresponding
// boundaries of a and b. Timelines of different length are infinitely far
// apart.
func MaxDrift(a, b []Span) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var drift float64
	for i := range a {
		drift = math.Max(drift, math.Abs(a[i].Start-b[i].Start))
		drift = math.Max(drift, math.Abs(a[i].End-b[i].End))
	}
	return drift
}
