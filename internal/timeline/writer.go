package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/normanking/visemesync/internal/viseme"
)

// Common errors
var (
	ErrUnknownFormat  = errors.New("unknown output format")
	ErrFormatMismatch = errors.New("output format does not match file extension")
)

// Output formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DefaultIndent matches the layout animators already consume
const DefaultIndent = 4

// Encode serializes cues in the given format. indent applies to both
// formats; values below 1 fall back to DefaultIndent.
func Encode(cues []viseme.Cue, format string, indent int) ([]byte, error) {
	if cues == nil {
		cues = []viseme.Cue{}
	}
	if indent < 1 {
		indent = DefaultIndent
	}

	switch format {
	case "", FormatJSON:
		data, err := json.MarshalIndent(cues, "", strings.Repeat(" ", indent))
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil

	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(indent)
		if err := enc.Encode(cues); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// FormatForPath returns the format Read uses for path: yaml for .yaml and
// .yml files, json for everything else.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// PathForFormat replaces the extension of path with the one for format
func PathForFormat(path, format string) string {
	if format == "" {
		format = FormatJSON
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + format
}

// CheckPath reports ErrFormatMismatch when a file written to path in
// format could not be read back by Read.
func CheckPath(path, format string) error {
	if format == "" {
		format = FormatJSON
	}
	if want := FormatForPath(path); want != format {
		return fmt.Errorf("%w: %s output cannot be written to %s (expects %s)", ErrFormatMismatch, format, filepath.Base(path), want)
	}
	return nil
}

// Write encodes cues and writes them to path, creating parent directories
// as needed. The format must agree with the file extension.
func Write(path string, cues []viseme.Cue, format string, indent int) error {
	if err := CheckPath(path, format); err != nil {
		return err
	}

	data, err := Encode(cues, format, indent)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	return nil
}

// Read loads a timeline previously written by Write. The format is taken
// from the file extension, see FormatForPath.
func Read(path string) ([]viseme.Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timeline: %w", err)
	}

	cues := []viseme.Cue{}
	switch FormatForPath(path) {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cues); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cues); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}
	return cues, nil
}
