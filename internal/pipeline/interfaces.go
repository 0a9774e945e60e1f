package pipeline

import (
	"context"

	"github.com/HugeFrog24/gpt-video-translator/internal/langdetect"
	"github.com/HugeFrog24/gpt-video-translator/internal/media"
)

type UploadValidator interface {
	Validate(u media.Upload) error
	Save(u media.Upload, dir string) (string, error)
}

type AudioExtractor interface {
	Extract(ctx context.Context, videoFile, audioFile string) error
}

type AudioTranscriber interface {
	Transcribe(ctx context.Context, audioFile string) (string, error)
}

type LanguageDetector interface {
	Detect(transcript string) langdetect.Result
}

type SubtitleTranslator interface {
	Translate(ctx context.Context, transcript, language string) (string, error)
}

type OutputWriter interface {
	Write(runID, label, text string) (string, error)
}

// Observer is notified after every state or progress change.
type Observer interface {
	RunUpdated(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) RunUpdated(s Snapshot) { f(s) }

// Observers fans a snapshot out to several observers in order.
type Observers []Observer

func (o Observers) RunUpdated(s Snapshot) {
	for _, obs := range o {
		if obs != nil {
			obs.RunUpdated(s)
		}
	}
}
