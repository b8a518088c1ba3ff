package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout sorts lexically in the same order as the instants it encodes
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// The parent directory and tables are created if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the phoneme cache and runs tables if they don't exist.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS phoneme_cache (
		key TEXT PRIMARY KEY,
		phonemes TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		transcript_path TEXT NOT NULL,
		audio_path TEXT NOT NULL,
		output_path TEXT NOT NULL,
		backend TEXT NOT NULL,
		language TEXT NOT NULL,
		aligner TEXT NOT NULL,
		duration_ms REAL NOT NULL,
		phonemes INTEGER NOT NULL,
		neutral INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetPhonemes returns the cached phonemes for key
func (s *SQLiteStore) GetPhonemes(key string) ([]string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow(`SELECT phonemes FROM phoneme_cache WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load phonemes: %w", err)
	}

	phonemes := []string{}
	if err := json.Unmarshal([]byte(raw), &phonemes); err != nil {
		return nil, false, fmt.Errorf("decode phonemes: %w", err)
	}
	return phonemes, true, nil
}

// PutPhonemes stores phonemes under key, replacing any previous entry
func (s *SQLiteStore) PutPhonemes(key string, phonemes []string) error {
	if phonemes == nil {
		phonemes = []string{}
	}
	raw, err := json.Marshal(phonemes)
	if err != nil {
		return fmt.Errorf("encode phonemes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO phoneme_cache (key, phonemes, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		phonemes = excluded.phonemes,
		created_at = excluded.created_at
	`
	if _, err := s.db.Exec(query, key, string(raw), time.Now().UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("save phonemes: %w", err)
	}
	return nil
}

// SaveRun persists a run to the database.
func (s *SQLiteStore) SaveRun(run *Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if run.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO runs (id, transcript_path, audio_path, output_path, backend, language, aligner,
		duration_ms, phonemes, neutral, status, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		duration_ms = excluded.duration_ms,
		phonemes = excluded.phonemes,
		neutral = excluded.neutral,
		status = excluded.status,
		error = excluded.error
	`

	var errText *string
	if run.Error != "" {
		errText = &run.Error
	}

	_, err := s.db.Exec(query,
		run.ID,
		run.TranscriptPath,
		run.AudioPath,
		run.OutputPath,
		run.Backend,
		run.Language,
		run.Aligner,
		run.DurationMs,
		run.Phonemes,
		run.Neutral,
		run.Status,
		errText,
		run.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	return nil
}

const runColumns = `id, transcript_path, audio_path, output_path, backend, language, aligner,
	duration_ms, phonemes, neutral, status, error, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var errText sql.NullString
	var createdAt string

	err := row.Scan(
		&run.ID,
		&run.TranscriptPath,
		&run.AudioPath,
		&run.OutputPath,
		&run.Backend,
		&run.Language,
		&run.Aligner,
		&run.DurationMs,
		&run.Phonemes,
		&run.Neutral,
		&run.Status,
		&errText,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	run.Error = errText.String
	run.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &run, nil
}

// LoadRun retrieves a run by ID from the database.
func (s *SQLiteStore) LoadRun(id string) (*Run, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("load run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A limit below 1 returns
// all runs.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = -1
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
