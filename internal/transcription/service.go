package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/HugeFrog24/gpt-video-translator/internal/audio"
	"github.com/HugeFrog24/gpt-video-translator/internal/retry"
	"github.com/HugeFrog24/gpt-video-translator/internal/srt"
)

// API transcribes a single audio file into SRT text.
type API interface {
	Transcribe(ctx context.Context, audioFile string) (string, error)
}

// Splitter cuts an audio file into consecutive chunks.
type Splitter interface {
	Split(ctx context.Context, audioFile string, chunk time.Duration) ([]audio.Chunk, error)
}

// Service sends audio to the speech-to-text API. Files above Threshold bytes
// are split into ChunkLength pieces whose SRT results are merged with shifted
// timestamps. A zero ChunkLength or Threshold disables splitting.
type Service struct {
	API         API
	Splitter    Splitter
	Retry       retry.Policy
	Threshold   int64
	ChunkLength time.Duration
	Logger      *slog.Logger
}

// Transcribe returns SRT text for audioFile.
func (s *Service) Transcribe(ctx context.Context, audioFile string) (string, error) {
	size, err := fileSize(audioFile)
	if err != nil {
		return "", err
	}
	if !s.shouldSplit(size) {
		return s.call(ctx, audioFile)
	}

	s.logger().Info("splitting audio before transcription",
		slog.String("audio", audioFile),
		slog.String("size", humanize.IBytes(uint64(size))),
		slog.Duration("chunk", s.ChunkLength))

	chunks, err := s.Splitter.Split(ctx, audioFile, s.ChunkLength)
	defer removeChunks(chunks)
	if err != nil {
		return "", err
	}

	pieces := make([]srt.Piece, 0, len(chunks))
	for i, chunk := range chunks {
		text, err := s.call(ctx, chunk.Path)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		pieces = append(pieces, srt.Piece{Content: text, Offset: chunk.Offset})
		s.logger().Debug("chunk transcribed", slog.Int("chunk", i+1), slog.Int("total", len(chunks)))
	}
	return srt.Merge(pieces), nil
}

func (s *Service) call(ctx context.Context, audioFile string) (string, error) {
	policy := s.Retry
	if policy == nil {
		policy = retry.None{}
	}
	var text string
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = s.API.Transcribe(ctx, audioFile)
		return err
	})
	return text, err
}

func (s *Service) shouldSplit(size int64) bool {
	return s.Splitter != nil && s.ChunkLength > 0 && s.Threshold > 0 && size > s.Threshold
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat audio: %w", err)
	}
	return info.Size(), nil
}

func removeChunks(chunks []audio.Chunk) {
	for _, chunk := range chunks {
		_ = os.Remove(chunk.Path)
	}
}
