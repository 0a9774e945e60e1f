package pipeline

import (
	"context"

	"github.com/HugeFrog24/gpt-video-translator/internal/langdetect"
)

type MockAudioExtractor struct {
	ExtractFunc func(ctx context.Context, videoFile, audioFile string) error
}

func (m *MockAudioExtractor) Extract(ctx context.Context, videoFile, audioFile string) error {
	return m.ExtractFunc(ctx, videoFile, audioFile)
}

type MockAudioTranscriber struct {
	TranscribeFunc func(ctx context.Context, audioFile string) (string, error)
}

func (m *MockAudioTranscriber) Transcribe(ctx context.Context, audioFile string) (string, error) {
	return m.TranscribeFunc(ctx, audioFile)
}

type MockLanguageDetector struct {
	DetectFunc func(transcript string) langdetect.Result
}

func (m *MockLanguageDetector) Detect(transcript string) langdetect.Result {
	return m.DetectFunc(transcript)
}

type MockSubtitleTranslator struct {
	TranslateFunc func(ctx context.Context, transcript, language string) (string, error)
}

func (m *MockSubtitleTranslator) Translate(ctx context.Context, transcript, language string) (string, error) {
	return m.TranslateFunc(ctx, transcript, language)
}
