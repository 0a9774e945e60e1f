package audio

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

// Chunk is one piece of a split audio file and its position in the original.
type Chunk struct {
	Path   string
	Offset time.Duration
}

// Duration reports the length of audioFile using ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, audioFile string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.Probe, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", audioFile)
	output, err := cmd.Output()
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "transcribe", "ffprobe", "failed to get audio duration", err)
	}
	duration, err := parseDuration(string(output))
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "transcribe", "ffprobe", "failed to parse audio duration", err)
	}
	return duration, nil
}

// Split cuts audioFile into consecutive pieces of at most chunk length, written
// next to the source as <name>_chunk_<n>.wav.
func (f *FFmpeg) Split(ctx context.Context, audioFile string, chunk time.Duration) ([]Chunk, error) {
	if chunk <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive")
	}
	duration, err := f.Duration(ctx, audioFile)
	if err != nil {
		return nil, err
	}

	count := ChunkCount(duration, chunk)
	base := strings.TrimSuffix(audioFile, filepath.Ext(audioFile))
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := time.Duration(i) * chunk
		chunkFile := fmt.Sprintf("%s_chunk_%d.wav", base, i)
		err := f.run(ctx, "-y", "-hide_banner", "-i", audioFile,
			"-ss", formatSeconds(start), "-t", formatSeconds(chunk),
			"-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", chunkFile)
		if err != nil {
			return chunks, services.Wrap(services.ErrExternalTool, "transcribe", "ffmpeg", "failed to create audio chunk", err)
		}
		chunks = append(chunks, Chunk{Path: chunkFile, Offset: start})
	}
	return chunks, nil
}

// ChunkCount returns how many pieces of length chunk cover duration.
func ChunkCount(duration, chunk time.Duration) int {
	if chunk <= 0 || duration <= 0 {
		return 1
	}
	n := int(duration / chunk)
	if duration%chunk != 0 {
		n++
	}
	return n
}

func parseDuration(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %v", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
