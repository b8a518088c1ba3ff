// Package pipeline wires the transcript loader, audio probe, phoneme
// transcriber and timeline builder into one sequential run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/visemesync/internal/audio"
	"github.com/normanking/visemesync/internal/config"
	"github.com/normanking/visemesync/internal/metrics"
	"github.com/normanking/visemesync/internal/phoneme"
	"github.com/normanking/visemesync/internal/store"
	"github.com/normanking/visemesync/internal/timeline"
	"github.com/normanking/visemesync/internal/transcript"
	"github.com/normanking/visemesync/internal/viseme"
)

// Skip reasons
const (
	ReasonTranscriptMissing = "transcript missing"
	ReasonTranscriptEmpty   = "transcript empty"
)

// Options are the per-run settings of a Pipeline
type Options struct {
	TranscriptPath string
	AudioPath      string
	OutputPath     string
	Language       string
	Format         string
	Indent         int
}

// Pipeline runs load -> probe -> transcribe -> build -> write
type Pipeline struct {
	opts        Options
	prober      audio.Prober
	transcriber phoneme.Transcriber
	aligner     timeline.Aligner
	store       store.Store
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// New creates a pipeline from its parts. st may be nil to disable run
// history.
func New(opts Options, prober audio.Prober, transcriber phoneme.Transcriber, aligner timeline.Aligner, st store.Store, logger zerolog.Logger) *Pipeline {
	if aligner == nil {
		aligner = timeline.EvenAligner{}
	}
	return &Pipeline{
		opts:        opts,
		prober:      prober,
		transcriber: transcriber,
		aligner:     aligner,
		store:       st,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// FromConfig builds a pipeline from configuration. When st is non-nil it
// backs both the phoneme cache and the run history.
func FromConfig(cfg *config.Config, st store.Store, logger zerolog.Logger) (*Pipeline, error) {
	pcfg := cfg.PhonemeConfig()
	transcriber, err := phoneme.New(pcfg, logger)
	if err != nil {
		return nil, err
	}
	if st != nil {
		transcriber = phoneme.NewCachedTranscriber(transcriber, st, phoneme.Variant(pcfg), logger)
	}

	aligner, err := timeline.NewAligner(cfg.Timing.Aligner)
	if err != nil {
		return nil, err
	}

	opts := Options{
		TranscriptPath: cfg.Paths.Transcript,
		AudioPath:      cfg.Paths.Audio,
		OutputPath:     cfg.Paths.Output,
		Language:       cfg.Phonemizer.Language,
		Format:         cfg.Output.Format,
		Indent:         cfg.Output.Indent,
	}

	prober := audio.NewDefaultProber(logger, cfg.Audio.FFProbePath)

	return New(opts, prober, transcriber, aligner, st, logger), nil
}

// SetMetrics makes every following run report to m
func (p *Pipeline) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Options returns the run settings
func (p *Pipeline) Options() Options {
	return p.opts
}

// Result describes a finished run
type Result struct {
	RunID      string
	Skipped    bool
	Reason     string
	DurationMs float64
	Phonemes   []string
	Cues       []viseme.Cue
	Stats      timeline.Stats
	DriftMs    float64 // largest boundary offset from the even partition
	OutputPath string
	Elapsed    time.Duration
}

// Run executes the pipeline once. A missing or empty transcript is not an
// error: the result is marked skipped and no other stage runs.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	run := store.NewRun()
	run.TranscriptPath = p.opts.TranscriptPath
	run.AudioPath = p.opts.AudioPath
	run.OutputPath = p.opts.OutputPath
	run.Backend = p.transcriber.Name()
	run.Language = p.opts.Language
	run.Aligner = p.aligner.Name()

	res, err := p.run(ctx)
	if res == nil {
		res = &Result{}
	}
	res.RunID = run.ID
	res.Elapsed = time.Since(startTime)

	switch {
	case err != nil:
		run.Status = store.StatusFailed
		run.Error = err.Error()
	case res.Skipped:
		run.Status = store.StatusSkipped
		run.Error = res.Reason
	default:
		run.Status = store.StatusOK
	}
	run.DurationMs = res.DurationMs
	run.Phonemes = len(res.Phonemes)
	run.Neutral = res.Stats.Neutral
	p.record(run)
	if p.metrics != nil {
		p.metrics.ObserveRun(run.Status, res.Elapsed, res.DurationMs, len(res.Cues), res.Stats.Neutral, run.Status == store.StatusOK)
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context) (*Result, error) {
	text, err := transcript.Load(p.opts.TranscriptPath)
	if errors.Is(err, transcript.ErrNotFound) {
		p.logger.Error().
			Str("path", p.opts.TranscriptPath).
			Msg("Transcript file not found")
		return &Result{Skipped: true, Reason: ReasonTranscriptMissing}, nil
	}
	if err != nil {
		return nil, err
	}
	if text == "" {
		p.logger.Warn().
			Str("path", p.opts.TranscriptPath).
			Msg("Transcript is empty, nothing to do")
		return &Result{Skipped: true, Reason: ReasonTranscriptEmpty}, nil
	}

	duration, err := p.prober.Probe(ctx, p.opts.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("probe audio: %w", err)
	}
	durationMs := audio.DurationMillis(duration)

	phonemes, err := p.transcriber.Transcribe(ctx, text, p.opts.Language)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	cues := timeline.Build(phonemes, durationMs, p.aligner)
	stats := timeline.Summarize(cues)

	var drift float64
	if p.aligner.Name() != timeline.AlignerEven && len(cues) > 0 {
		even := timeline.EvenAligner{}.Align(len(phonemes), durationMs)
		drift = timeline.MaxDrift(even, timeline.Spans(cues))
		p.logger.Debug().
			Str("aligner", p.aligner.Name()).
			Float64("driftMs", drift).
			Msg("Boundary drift from even partition")
	}

	if err := timeline.Write(p.opts.OutputPath, cues, p.opts.Format, p.opts.Indent); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("output", p.opts.OutputPath).
		Float64("durationMs", durationMs).
		Int("phonemes", len(phonemes)).
		Int("neutral", stats.Neutral).
		Msg("Viseme timeline written")

	return &Result{
		DurationMs: durationMs,
		Phonemes:   phonemes,
		Cues:       cues,
		Stats:      stats,
		DriftMs:    drift,
		OutputPath: p.opts.OutputPath,
	}, nil
}

func (p *Pipeline) record(run *store.Run) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveRun(run); err != nil {
		p.logger.Warn().Err(err).Str("run", run.ID).Msg("Failed to record run")
	}
}
