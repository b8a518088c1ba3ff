package timeline

import (
	"github.com/normanking/visemesync/internal/viseme"
)

// Build maps each phoneme to its viseme and attaches the span chosen by
// aligner. A nil aligner means EvenAligner. The result is never nil so an
// empty timeline serializes as an empty array.
func Build(phonemes []string, durationMs float64, aligner Aligner) []viseme.Cue {
	if aligner == nil {
		aligner = EvenAligner{}
	}

	cues := make([]viseme.Cue, 0, len(phonemes))
	spans := aligner.Align(len(phonemes), durationMs)

	for i, p := range phonemes {
		cues = append(cues, viseme.Cue{
			Viseme:    viseme.For(p),
			StartTime: spans[i].Start,
			EndTime:   spans[i].End,
		})
	}

	return cues
}

// Spans extracts the timing of a built timeline
func Spans(cues []viseme.Cue) []Span {
	spans := make([]Span, len(cues))
	for i, c := range cues {
		spans[i] = Span{Start: c.StartTime, End: c.EndTime}
	}
	return spans
}

// Stats summarizes a timeline for logging and run history
type Stats struct {
	Cues    int            `json:"cues"`
	Neutral int            `json:"neutral"`
	Counts  map[string]int `json:"counts"`
}

// Summarize counts cues per viseme
func Summarize(cues []viseme.Cue) Stats {
	s := Stats{Cues: len(cues), Counts: make(map[string]int)}
	for _, c := range cues {
		s.Counts[string(c.Viseme)]++
		if c.Viseme == viseme.Neutral {
			s.Neutral++
		}
	}
	return s
}
