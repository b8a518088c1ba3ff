package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/visemesync/internal/config"
	"github.com/normanking/visemesync/internal/metrics"
	"github.com/normanking/visemesync/internal/phoneme"
	"github.com/normanking/visemesync/internal/store"
	"github.com/normanking/visemesync/internal/timeline"
	"github.com/normanking/visemesync/internal/viseme"
)

type stubProber struct {
	duration time.Duration
	err      error
	calls    int
}

func (s *stubProber) Name() string { return "stub" }

func (s *stubProber) Probe(context.Context, string) (time.Duration, error) {
	s.calls++
	return s.duration, s.err
}

type stubTranscriber struct {
	phonemes []string
	err      error
	calls    int
}

func (s *stubTranscriber) Name() string { return "stub" }

func (s *stubTranscriber) Transcribe(context.Context, string, string) ([]string, error) {
	s.calls++
	return s.phonemes, s.err
}

type fixture struct {
	dir  string
	opts Options
}

func newFixture(t *testing.T, text string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir: dir,
		opts: Options{
			TranscriptPath: filepath.Join(dir, "inputs", "transcript.txt"),
			AudioPath:      filepath.Join(dir, "inputs", "audio.m4a"),
			OutputPath:     filepath.Join(dir, "output", "viseme_sequence.json"),
			Language:       "en-us",
			Format:         timeline.FormatJSON,
			Indent:         4,
		},
	}
	if text != "" {
		f.writeTranscript(t, text)
	}
	return f
}

func (f fixture) writeTranscript(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(f.opts.TranscriptPath), 0755))
	require.NoError(t, os.WriteFile(f.opts.TranscriptPath, []byte(text), 0644))
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "visemesync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRun_HiScenario(t *testing.T) {
	f := newFixture(t, "hi\n")
	st := newTestStore(t)
	prober := &stubProber{duration: time.Second}

	m := metrics.New()
	p := New(f.opts, prober, phoneme.NewLetterTranscriber(true), nil, st, zerolog.Nop())
	p.SetMetrics(m)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Equal(t, 1000.0, res.DurationMs)
	assert.Zero(t, res.DriftMs)
	assert.Equal(t, []string{"h", "i"}, res.Phonemes)
	assert.Equal(t, []viseme.Cue{
		{Viseme: viseme.Neutral, StartTime: 0, EndTime: 500},
		{Viseme: viseme.NarrowSmile, StartTime: 500, EndTime: 1000},
	}, res.Cues)

	written, err := timeline.Read(f.opts.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, res.Cues, written)

	run, err := st.LoadRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, run.Status)
	assert.Equal(t, "letters", run.Backend)
	assert.Equal(t, "even", run.Aligner)
	assert.Equal(t, 2, run.Phonemes)
	assert.Equal(t, 1, run.Neutral)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunCount.WithLabelValues(store.StatusOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LastCues))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastNeutral))
}

func TestRun_EmptyPhonemes(t *testing.T) {
	f := newFixture(t, "123 !!")
	prober := &stubProber{duration: 1500 * time.Millisecond}

	p := New(f.opts, prober, phoneme.NewLetterTranscriber(true), nil, nil, zerolog.Nop())
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Cues)
	data, err := os.ReadFile(f.opts.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestRun_Skipped(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"missing transcript", "", ReasonTranscriptMissing},
		{"blank transcript", " \n\t", ReasonTranscriptEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.text)
			st := newTestStore(t)
			prober := &stubProber{duration: time.Second}
			tr := &stubTranscriber{phonemes: []string{"a"}}

			m := metrics.New()
			p := New(f.opts, prober, tr, nil, st, zerolog.Nop())
			p.SetMetrics(m)
			res, err := p.Run(context.Background())
			require.NoError(t, err)

			assert.True(t, res.Skipped)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Zero(t, prober.calls, "audio must not be decoded")
			assert.Zero(t, tr.calls, "text must not be transcribed")
			_, err = os.Stat(f.opts.OutputPath)
			assert.True(t, errors.Is(err, os.ErrNotExist), "no output file")

			run, err := st.LoadRun(res.RunID)
			require.NoError(t, err)
			assert.Equal(t, store.StatusSkipped, run.Status)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.RunCount.WithLabelValues(store.StatusSkipped)))
			assert.Zero(t, testutil.ToFloat64(m.LastCues))
		})
	}
}

func TestRun_Failures(t *testing.T) {
	t.Run("audio decode", func(t *testing.T) {
		f := newFixture(t, "hello")
		st := newTestStore(t)
		tr := &stubTranscriber{phonemes: []string{"a"}}

		p := New(f.opts, &stubProber{err: errors.New("missing RIFF")}, tr, nil, st, zerolog.Nop())
		res, err := p.Run(context.Background())
		require.Error(t, err)
		assert.Nil(t, res)
		assert.Contains(t, err.Error(), "probe audio")
		assert.Zero(t, tr.calls)

		runs, err := st.ListRuns(1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, store.StatusFailed, runs[0].Status)
		assert.Contains(t, runs[0].Error, "missing RIFF")
	})

	t.Run("transcription", func(t *testing.T) {
		f := newFixture(t, "hello")
		tr := &stubTranscriber{err: phoneme.ErrBackendUnavailable}

		p := New(f.opts, &stubProber{duration: time.Second}, tr, nil, nil, zerolog.Nop())
		_, err := p.Run(context.Background())
		assert.ErrorIs(t, err, phoneme.ErrBackendUnavailable)

		_, statErr := os.Stat(f.opts.OutputPath)
		assert.True(t, errors.Is(statErr, os.ErrNotExist))
	})

	t.Run("unwritable output", func(t *testing.T) {
		f := newFixture(t, "hello")
		blocker := filepath.Join(f.dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))
		f.opts.OutputPath = filepath.Join(blocker, "viseme_sequence.json")

		p := New(f.opts, &stubProber{duration: time.Second}, phoneme.NewLetterTranscriber(true), nil, nil, zerolog.Nop())
		_, err := p.Run(context.Background())
		assert.Error(t, err)
	})
}

func TestRun_AccumulatingAligner(t *testing.T) {
	f := newFixture(t, "pam sat")
	tr := &stubTranscriber{phonemes: []string{"p", "a", "m", " ", "s", "a", "t"}}

	p := New(f.opts, &stubProber{duration: 1001 * time.Millisecond}, tr, timeline.AccumulatingAligner{}, nil, zerolog.Nop())
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Cues, 7)
	even := timeline.EvenAligner{}.Align(7, 1001)
	assert.Less(t, timeline.MaxDrift(even, timeline.Spans(res.Cues)), 1e-9)
	assert.Equal(t, timeline.MaxDrift(even, timeline.Spans(res.Cues)), res.DriftMs)
	assert.Less(t, res.DriftMs, 1e-9)
	assert.Equal(t, viseme.POutward, res.Cues[0].Viseme)
	assert.Equal(t, viseme.Neutral, res.Cues[3].Viseme)
	assert.Equal(t, viseme.FlatOpen, res.Cues[6].Viseme)
}

// writeWAV writes a silent 16-bit mono PCM file
func writeWAV(t *testing.T, path string, sampleRate, samples int) {
	t.Helper()

	dataSize := samples * 2
	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVEfmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate*2))
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	buf = append(buf, make([]byte, dataSize)...)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, buf, 0644))
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Paths.Transcript = filepath.Join(dir, "transcript.txt")
	cfg.Paths.Audio = filepath.Join(dir, "audio.wav")
	cfg.Paths.Output = filepath.Join(dir, "out", "visemes.yaml")
	cfg.Phonemizer.Backend = phoneme.BackendLetters
	cfg.Output.Format = timeline.FormatYAML
	cfg.Output.Indent = 2

	require.NoError(t, os.WriteFile(cfg.Paths.Transcript, []byte("mama"), 0644))
	writeWAV(t, cfg.Paths.Audio, 8000, 16000)

	st := newTestStore(t)
	p, err := FromConfig(cfg, st, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2000.0, res.DurationMs)
		require.Len(t, res.Cues, 4)
		assert.Equal(t, viseme.Closed, res.Cues[0].Viseme)
		assert.Equal(t, viseme.MouthOpen, res.Cues[3].Viseme)
		assert.Equal(t, 2000.0, res.Cues[3].EndTime)
	}

	written, err := timeline.Read(cfg.Paths.Output)
	require.NoError(t, err)
	assert.Len(t, written, 4)

	key := phoneme.CacheKey(phoneme.BackendLetters, phoneme.Variant(cfg.PhonemeConfig()), "en-us", "mama")
	cached, ok, err := st.GetPhonemes(key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"m", "a", "m", "a"}, cached)

	runs, err := st.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	cfg.Timing.Aligner = "forced"
	_, err = FromConfig(cfg, nil, zerolog.Nop())
	assert.ErrorIs(t, err, timeline.ErrUnknownAligner)

	cfg.Timing.Aligner = "even"
	cfg.Phonemizer.Backend = "festival"
	_, err = FromConfig(cfg, nil, zerolog.Nop())
	assert.ErrorIs(t, err, phoneme.ErrUnknownBackend)
}

func TestWatcher(t *testing.T) {
	f := newFixture(t, "ma")
	require.NoError(t, os.MkdirAll(filepath.Dir(f.opts.AudioPath), 0755))

	p := New(f.opts, &stubProber{duration: time.Second}, phoneme.NewLetterTranscriber(true), nil, nil, zerolog.Nop())

	results := make(chan *Result, 8)
	w := NewWatcher(p, 20*time.Millisecond, zerolog.Nop(), func(res *Result, err error) {
		if err == nil {
			results <- res
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	next := func() *Result {
		select {
		case res := <-results:
			return res
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for run")
			return nil
		}
	}

	first := next()
	assert.Len(t, first.Cues, 2)

	f.writeTranscript(t, "mamma mia")
	second := next()
	assert.Len(t, second.Cues, 9)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
