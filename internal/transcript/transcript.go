// Package transcript loads the text that drives a lip-sync timeline.
package transcript

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"
)

// Common errors
var (
	ErrNotFound    = errors.New("transcript not found")
	ErrInvalidUTF8 = errors.New("transcript is not valid UTF-8")
)

// Load reads the transcript at path and trims surrounding whitespace.
// A missing file yields ErrNotFound; other failures are wrapped.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w at %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("read transcript: %w", err)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrInvalidUTF8, path)
	}

	return strings.TrimSpace(string(data)), nil
}
