package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFProbeProber reads container metadata with ffprobe. It covers formats
// the in-process decoders do not, such as M4A/AAC and Opus.
type FFProbeProber struct {
	binaryPath string
}

// NewFFProbeProber creates a prober that runs the given ffprobe binary.
// An empty path means "ffprobe" looked up on PATH.
func NewFFProbeProber(binaryPath string) *FFProbeProber {
	if binaryPath == "" {
		binaryPath = "ffprobe"
	}
	return &FFProbeProber{binaryPath: binaryPath}
}

// Name returns the prober identifier
func (p *FFProbeProber) Name() string {
	return "ffprobe"
}

// maxSeconds is the longest duration representable as a time.Duration
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe implements Prober
func (p *FFProbeProber) Probe(ctx context.Context, path string) (time.Duration, error) {
	bin, err := exec.LookPath(p.binaryPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %s not found: %v", ErrProberUnavailable, p.binaryPath, err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return 0, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
		}
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if out.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", path)
	}

	seconds, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 || seconds >= maxSeconds {
		return 0, fmt.Errorf("invalid duration %q", out.Format.Duration)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}
