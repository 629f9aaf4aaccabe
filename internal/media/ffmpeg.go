// ABOUTME: Thin wrapper over the ffprobe and ffmpeg command-line tools
// ABOUTME: Probes durations and cuts audio spans or audio tracks into the cache
package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harper/mediaindex/internal/models"
)

// Runner executes an external command and returns its stdout
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
	}
	return out, nil
}

// Toolkit probes and cuts media files
type Toolkit struct {
	FFmpeg  string
	FFprobe string
	WorkDir string
	Runner  Runner
}

// NewToolkit creates a toolkit writing derived files under workDir
func NewToolkit(ffmpeg, ffprobe, workDir string) *Toolkit {
	return &Toolkit{FFmpeg: ffmpeg, FFprobe: ffprobe, WorkDir: workDir, Runner: ExecRunner{}}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the duration of a media file in seconds
func (t *Toolkit) Probe(ctx context.Context, path string) (float64, error) {
	out, err := t.Runner.Run(ctx, t.FFprobe, "-v", "quiet", "-print_format", "json", "-show_format", path)
	if err != nil {
		return 0, err
	}
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil || d <= 0 {
		return 0, models.InvalidArgument(path, fmt.Sprintf("could not determine duration of %s", path))
	}
	return d, nil
}

// ExtractSpan cuts one span of src into an mp3 file and returns its path.
// The output name is derived from the source and span so reruns overwrite.
func (t *Toolkit) ExtractSpan(ctx context.Context, src string, span models.ChunkSpan) (string, error) {
	dest := t.derivedPath(src, fmt.Sprintf("chunk_%04d_%.3f_%.3f", span.Index, span.Start, span.End), "mp3")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create chunk directory: %w", err)
	}
	_, err := t.Runner.Run(ctx, t.FFmpeg,
		"-y", "-v", "error",
		"-ss", formatSeconds(span.Start),
		"-t", formatSeconds(span.Duration()),
		"-i", src,
		"-vn", "-ac", "1", "-ar", "16000",
		"-acodec", "libmp3lame",
		dest)
	if err != nil {
		return "", err
	}
	return dest, nil
}

// ExtractAudio writes the audio track of a video file in the given format
func (t *Toolkit) ExtractAudio(ctx context.Context, src, format string) (string, error) {
	if format == "" {
		format = "mp3"
	}
	codec, ok := audioCodecs[format]
	if !ok {
		return "", models.InvalidArgument("format", fmt.Sprintf("unsupported audio format %q: use mp3, wav or m4a", format))
	}
	dest := t.derivedPath(src, "audio", format)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create audio directory: %w", err)
	}
	_, err := t.Runner.Run(ctx, t.FFmpeg, "-y", "-v", "error", "-i", src, "-vn", "-acodec", codec, dest)
	if err != nil {
		return "", err
	}
	return dest, nil
}

var audioCodecs = map[string]string{
	"mp3": "libmp3lame",
	"wav": "pcm_s16le",
	"m4a": "aac",
}

func (t *Toolkit) derivedPath(src, name, ext string) string {
	sum := sha256.Sum256([]byte(src))
	return filepath.Join(t.WorkDir, "derived", hex.EncodeToString(sum[:12]), name+"."+ext)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
