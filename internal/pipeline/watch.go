package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses the burst of events an editor save produces
const DefaultDebounce = 300 * time.Millisecond

// Watcher re-runs a pipeline whenever its transcript or audio file changes.
// Runs happen one at a time on the watcher's goroutine.
type Watcher struct {
	pipeline *Pipeline
	debounce time.Duration
	logger   zerolog.Logger
	onResult func(*Result, error)
}

// NewWatcher creates a watcher for p. onResult, if set, is called after
// every run.
func NewWatcher(p *Pipeline, debounce time.Duration, logger zerolog.Logger, onResult func(*Result, error)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		pipeline: p,
		debounce: debounce,
		logger:   logger.With().Str("component", "watch").Logger(),
		onResult: onResult,
	}
}

// Run performs an initial run, then watches the input files until ctx is
// cancelled. Directories are watched rather than files so that editors
// that save by rename are still noticed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	opts := w.pipeline.Options()
	targets := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range []string{opts.TranscriptPath, opts.AudioPath} {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Debug().Str("dir", dir).Msg("Watching directory")
	}

	w.runOnce(ctx)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !targets[abs] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Input changed")
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")

		case <-timer.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) {
	res, err := w.pipeline.Run(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Run failed")
	}
	if w.onResult != nil {
		w.onResult(res, err)
	}
}
