package timeline

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/visemesync/internal/viseme"
)

func TestNewAligner(t *testing.T) {
	a, err := NewAligner("")
	require.NoError(t, err)
	assert.Equal(t, AlignerEven, a.Name())

	a, err = NewAligner("accumulate")
	require.NoError(t, err)
	assert.Equal(t, AlignerAccumulate, a.Name())

	_, err = NewAligner("forced")
	assert.ErrorIs(t, err, ErrUnknownAligner)
}

func TestEvenAligner(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		duration float64
	}{
		{"single", 1, 1000},
		{"two", 2, 1000},
		{"thirds", 3, 1000},
		{"sevenths of odd clip", 7, 2333},
		{"many", 997, 61_234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := EvenAligner{}.Align(tt.count, tt.duration)
			require.Len(t, spans, tt.count)

			step := tt.duration / float64(tt.count)
			for k, s := range spans {
				assert.InDelta(t, float64(k)*step, s.Start, 1e-9)
				assert.InDelta(t, float64(k+1)*step, s.End, 1e-9)
				if k > 0 {
					assert.Equal(t, spans[k-1].End, s.Start, "gap or overlap at %d", k)
				}
			}
			assert.Equal(t, 0.0, spans[0].Start)
			assert.Equal(t, tt.duration, spans[len(spans)-1].End)
		})
	}
}

func TestAlignersEmpty(t *testing.T) {
	for _, a := range []Aligner{EvenAligner{}, AccumulatingAligner{}} {
		t.Run(a.Name(), func(t *testing.T) {
			assert.Empty(t, a.Align(0, 1000))
			assert.Empty(t, a.Align(0, 0))
		})
	}
}

func TestAccumulatingAligner_Drift(t *testing.T) {
	even := EvenAligner{}.Align(997, 61_234)
	acc := AccumulatingAligner{}.Align(997, 61_234)

	require.Len(t, acc, 997)
	for k := 1; k < len(acc); k++ {
		assert.Equal(t, acc[k-1].End, acc[k].Start)
	}

	drift := MaxDrift(even, acc)
	assert.Less(t, drift, 1e-6, "accumulated drift should stay sub-nanosecond")
	assert.True(t, math.IsInf(MaxDrift(even, acc[:10]), 1))
}

func TestBuild(t *testing.T) {
	t.Run("hi over one second", func(t *testing.T) {
		cues := Build([]string{"h", "i"}, 1000, nil)

		assert.Equal(t, []viseme.Cue{
			{Viseme: viseme.Neutral, StartTime: 0, EndTime: 500},
			{Viseme: viseme.NarrowSmile, StartTime: 500, EndTime: 1000},
		}, cues)
	})

	t.Run("no phonemes", func(t *testing.T) {
		cues := Build(nil, 1000, nil)
		assert.NotNil(t, cues)
		assert.Empty(t, cues)

		cues = Build([]string{}, 0, AccumulatingAligner{})
		assert.NotNil(t, cues)
		assert.Empty(t, cues)
	})

	t.Run("whole symbols", func(t *testing.T) {
		cues := Build([]string{"tʃ", "t", "aɪ", "a"}, 400, EvenAligner{})
		require.Len(t, cues, 4)
		assert.Equal(t, viseme.Neutral, cues[0].Viseme)
		assert.Equal(t, viseme.FlatOpen, cues[1].Viseme)
		assert.Equal(t, viseme.Neutral, cues[2].Viseme)
		assert.Equal(t, viseme.MouthOpen, cues[3].Viseme)
	})
}

func TestSummarize(t *testing.T) {
	cues := Build([]string{"m", "a", "m", "x"}, 100, nil)
	s := Summarize(cues)

	assert.Equal(t, 4, s.Cues)
	assert.Equal(t, 1, s.Neutral)
	assert.Equal(t, 2, s.Counts["closed"])
	assert.Equal(t, 1, s.Counts["mouth_open"])

	spans := Spans(cues)
	require.Len(t, spans, 4)
	assert.Equal(t, 100.0, spans[3].End)
}

func TestEncode(t *testing.T) {
	cues := Build([]string{"h", "i"}, 1000, nil)

	data, err := Encode(cues, FormatJSON, 4)
	require.NoError(t, err)
	assert.Equal(t, `[
    {
        "viseme": "neutral",
        "start_time": 0,
        "end_time": 500
    },
    {
        "viseme": "narrow_smile",
        "start_time": 500,
        "end_time": 1000
    }
]
`, string(data))

	data, err = Encode(nil, FormatJSON, 0)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	_, err = Encode(cues, "xml", 4)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteRead(t *testing.T) {
	cues := Build([]string{"p", "a", "s", "t", "ə"}, 1234, nil)

	tests := []struct {
		name   string
		file   string
		format string
	}{
		{"json", "out/viseme_sequence.json", FormatJSON},
		{"yaml", "out/nested/viseme_sequence.yaml", FormatYAML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)

			require.NoError(t, Write(path, cues, tt.format, 2))
			_, err := os.Stat(path)
			require.NoError(t, err)

			got, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, cues, got)
		})
	}
}

func TestWrite_FormatMismatch(t *testing.T) {
	cues := Build([]string{"m", "a"}, 1000, nil)

	tests := []struct {
		name   string
		file   string
		format string
	}{
		{"yaml into json file", "viseme_sequence.json", FormatYAML},
		{"json into yaml file", "viseme_sequence.yaml", FormatJSON},
		{"yaml without extension", "viseme_sequence", FormatYAML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)

			err := Write(path, cues, tt.format, 4)
			assert.ErrorIs(t, err, ErrFormatMismatch)
			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr), "nothing written")
		})
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatForPath("out/seq.yaml"))
	assert.Equal(t, FormatYAML, FormatForPath("out/seq.YML"))
	assert.Equal(t, FormatJSON, FormatForPath("out/seq.json"))
	assert.Equal(t, FormatJSON, FormatForPath("out/seq"))

	assert.Equal(t, filepath.Join("output", "viseme_sequence.yaml"), PathForFormat(filepath.Join("output", "viseme_sequence.json"), FormatYAML))
	assert.Equal(t, "seq.json", PathForFormat("seq", ""))

	yamlPath := filepath.Join(t.TempDir(), PathForFormat("viseme_sequence.json", FormatYAML))
	cues := Build([]string{"o"}, 250, nil)
	require.NoError(t, Write(yamlPath, cues, FormatYAML, 2))
	got, err := Read(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, cues, got)
}

func TestWriteRead_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")

	require.NoError(t, Write(path, Build(nil, 500, nil), FormatJSON, 4))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}
