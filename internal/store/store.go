// Package store persists the phoneme cache and the history of pipeline runs.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrRunNotFound = errors.New("run not found")
	ErrInvalidID   = errors.New("invalid run ID")
)

// Run statuses
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Run records one execution of the pipeline
type Run struct {
	ID             string    `json:"id"`
	TranscriptPath string    `json:"transcript_path"`
	AudioPath      string    `json:"audio_path"`
	OutputPath     string    `json:"output_path"`
	Backend        string    `json:"backend"`
	Language       string    `json:"language"`
	Aligner        string    `json:"aligner"`
	DurationMs     float64   `json:"duration_ms"`
	Phonemes       int       `json:"phonemes"`
	Neutral        int       `json:"neutral"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewRun creates a run with a fresh ID
func NewRun() *Run {
	return &Run{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}
}

// Store is the persistence interface used by the pipeline
type Store interface {
	// GetPhonemes returns cached phonemes for key
	GetPhonemes(key string) ([]string, bool, error)

	// PutPhonemes caches phonemes under key
	PutPhonemes(key string, phonemes []string) error

	// SaveRun records a pipeline run
	SaveRun(run *Run) error

	// LoadRun retrieves a run by ID
	LoadRun(id string) (*Run, error)

	// ListRuns returns the most recent runs, newest first
	ListRuns(limit int) ([]*Run, error)

	// Close releases any resources held by the store
	Close() error
}
