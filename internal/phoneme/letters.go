package phoneme

import (
	"context"
	"strings"
	"unicode"
)

// LetterTranscriber treats every letter of the text as a phoneme. It needs
// no external tools and is useful for previews and tests; it ignores the
// language.
type LetterTranscriber struct {
	wordBoundaries bool
}

// NewLetterTranscriber creates the placeholder backend
func NewLetterTranscriber(wordBoundaries bool) *LetterTranscriber {
	return &LetterTranscriber{wordBoundaries: wordBoundaries}
}

// Name returns the backend identifier
func (l *LetterTranscriber) Name() string {
	return BackendLetters
}

// Transcribe implements Transcriber
func (l *LetterTranscriber) Transcribe(ctx context.Context, text, _ string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(text))
	for _, word := range strings.Fields(text) {
		letters := make([]string, 0, len(word))
		for _, r := range word {
			if unicode.IsLetter(r) {
				letters = append(letters, string(unicode.ToLower(r)))
			}
		}
		if len(letters) == 0 {
			continue
		}
		if l.wordBoundaries && len(symbols) > 0 {
			symbols = append(symbols, WordBoundary)
		}
		symbols = append(symbols, letters...)
	}

	return symbols, nil
}
