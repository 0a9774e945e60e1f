package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

// FFmpeg drives the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	Binary string
	Probe  string
}

// NewFFmpeg returns an FFmpeg using the given binaries, falling back to the
// names on PATH.
func NewFFmpeg(binary, probe string) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if strings.TrimSpace(probe) == "" {
		probe = "ffprobe"
	}
	return &FFmpeg{Binary: binary, Probe: probe}
}

// Extract converts videoFile into a mono 16 kHz PCM WAV at audioFile,
// overwriting any existing file. ffmpeg's stderr is carried in the error.
func (f *FFmpeg) Extract(ctx context.Context, videoFile, audioFile string) error {
	args := []string{"-y", "-hide_banner", "-i", videoFile, "-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", audioFile}
	if err := f.run(ctx, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", "", err)
	}
	return nil
}

func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, f.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr == "" {
			return err
		}
		return fmt.Errorf("%v\nStderr: %s", err, stderrStr)
	}
	return nil
}
