package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// The stub writes its last argument, which is the output path.
const copyLastArg = `for last; do :; done
echo audio > "$last"
`

func TestExtractWritesOutput(t *testing.T) {
	dir := t.TempDir()
	bin := writeStub(t, dir, "ffmpeg", copyLastArg)
	f := NewFFmpeg(bin, "")

	out := filepath.Join(dir, "audio.wav")
	if err := f.Extract(context.Background(), filepath.Join(dir, "clip.mp4"), out); err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected audio output: %v", err)
	}
}

func TestExtractSurfacesToolError(t *testing.T) {
	dir := t.TempDir()
	bin := writeStub(t, dir, "ffmpeg", "echo 'clip.mp4: Invalid data found when processing input' >&2\nexit 1\n")
	f := NewFFmpeg(bin, "")

	err := f.Extract(context.Background(), "clip.mp4", filepath.Join(dir, "audio.wav"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found when processing input") {
		t.Fatalf("expected ffmpeg stderr in error, got %q", err.Error())
	}
}

func TestExtractMissingBinary(t *testing.T) {
	f := NewFFmpeg(filepath.Join(t.TempDir(), "no-such-ffmpeg"), "")
	err := f.Extract(context.Background(), "clip.mp4", "audio.wav")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestSplitCreatesChunksWithOffsets(t *testing.T) {
	dir := t.TempDir()
	bin := writeStub(t, dir, "ffmpeg", copyLastArg)
	probe := writeStub(t, dir, "ffprobe", "echo 125.5\n")
	f := NewFFmpeg(bin, probe)

	source := filepath.Join(dir, "audio.wav")
	chunks, err := f.Split(context.Background(), source, time.Minute)
	if err != nil {
		t.Fatalf("Split returned error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Offset != time.Duration(i)*time.Minute {
			t.Errorf("chunk %d offset = %v", i, chunk.Offset)
		}
		want := filepath.Join(dir, "audio_chunk_"+strconv.Itoa(i)+".wav")
		if chunk.Path != want {
			t.Errorf("chunk %d path = %q, want %q", i, chunk.Path, want)
		}
		if _, err := os.Stat(chunk.Path); err != nil {
			t.Errorf("chunk %d not written: %v", i, err)
		}
	}
}

func TestDurationParseFailure(t *testing.T) {
	dir := t.TempDir()
	probe := writeStub(t, dir, "ffprobe", "echo N/A\n")
	f := NewFFmpeg("", probe)
	if _, err := f.Duration(context.Background(), "audio.wav"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestChunkCount(t *testing.T) {
	cases := []struct {
		duration, chunk time.Duration
		want            int
	}{
		{0, time.Minute, 1},
		{time.Minute, time.Minute, 1},
		{61 * time.Second, time.Minute, 2},
		{10 * time.Minute, 0, 1},
	}
	for _, tc := range cases {
		if got := ChunkCount(tc.duration, tc.chunk); got != tc.want {
			t.Errorf("ChunkCount(%v, %v) = %d, want %d", tc.duration, tc.chunk, got, tc.want)
		}
	}
}
