package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HugeFrog24/gpt-video-translator/internal/langdetect"
	"github.com/HugeFrog24/gpt-video-translator/internal/media"
	"github.com/HugeFrog24/gpt-video-translator/internal/output"
	"github.com/HugeFrog24/gpt-video-translator/internal/retry"
	"github.com/HugeFrog24/gpt-video-translator/internal/services"
	"github.com/HugeFrog24/gpt-video-translator/internal/srt"
)

// Options carries the collaborators of a Pipeline. Everything except Retry,
// Observer, Logger and Now is required.
type Options struct {
	// WorkDir holds per-run intermediate files (upload, audio).
	WorkDir     string
	Validator   UploadValidator
	Extractor   AudioExtractor
	Transcriber AudioTranscriber
	Detector    LanguageDetector
	Translator  SubtitleTranslator
	Writer      OutputWriter
	// Retry wraps each translation call. Defaults to retry.None.
	Retry    retry.Policy
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Pipeline sequences validation, audio extraction, transcription, language
// detection, translation and output writing for one run at a time. Each run
// owns its own work and output directories, keyed by the run id.
type Pipeline struct {
	opts Options
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case strings.TrimSpace(opts.WorkDir) == "":
		return nil, errors.New("pipeline: work dir is required")
	case opts.Validator == nil:
		return nil, errors.New("pipeline: validator is required")
	case opts.Extractor == nil:
		return nil, errors.New("pipeline: audio extractor is required")
	case opts.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber is required")
	case opts.Detector == nil:
		return nil, errors.New("pipeline: language detector is required")
	case opts.Translator == nil:
		return nil, errors.New("pipeline: translator is required")
	case opts.Writer == nil:
		return nil, errors.New("pipeline: output writer is required")
	}
	if opts.Retry == nil {
		opts.Retry = retry.None{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{opts: opts}, nil
}

// Prepare validates the upload and runs extraction, transcription and
// language detection. On success the run is AwaitingEdit with progress 50.
// A validation failure returns a nil run: nothing was written. Any later
// failure returns the aborted run alongside the error.
func (p *Pipeline) Prepare(ctx context.Context, upload media.Upload) (*Run, error) {
	run, err := p.Start(upload)
	if err != nil {
		return run, err
	}
	return run, p.Analyze(ctx, run)
}

// Start validates the upload, creates the run and saves the media into the
// run's work directory. The upload body is fully consumed when Start returns.
func (p *Pipeline) Start(upload media.Upload) (*Run, error) {
	logger := p.opts.Logger.With(slog.String("media", upload.Filename))
	if err := p.opts.Validator.Validate(upload); err != nil {
		logger.Warn("upload rejected", slog.String("reason", services.Message(err)))
		return nil, err
	}

	run := newRun(upload.Filename, upload.Size, p.opts.Now())
	logger = logger.With(slog.String("run_id", run.ID()))
	if err := p.advance(run, StateValidated, ProgressStart); err != nil {
		return run, err
	}

	workDir := filepath.Join(p.opts.WorkDir, run.ID())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return run, p.fail(run, logger, "prepare", fmt.Errorf("create work directory: %w", err))
	}
	mediaPath, err := p.opts.Validator.Save(upload, workDir)
	if err != nil {
		p.removeWorkDir(logger, workDir)
		return run, p.fail(run, logger, "validate", err)
	}
	run.setMedia(workDir, mediaPath)
	return run, nil
}

// Analyze extracts, transcribes and detects the language of a run returned by
// Start. The run's work directory is removed when Analyze returns.
func (p *Pipeline) Analyze(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("pipeline: nil run")
	}
	workDir, mediaPath := run.media()
	if state := run.State(); state != StateValidated || mediaPath == "" {
		return services.Wrap(services.ErrValidation, "prepare", "", fmt.Sprintf("run %s is %s, not ready for analysis", run.ID(), state), nil)
	}
	logger := p.opts.Logger.With(slog.String("media", run.Snapshot().MediaName), slog.String("run_id", run.ID()))
	defer p.removeWorkDir(logger, workDir)

	audioPath := filepath.Join(workDir, "audio.wav")
	started := time.Now()
	if err := p.opts.Extractor.Extract(ctx, mediaPath, audioPath); err != nil {
		return p.fail(run, logger, "extract", err)
	}
	_ = os.Remove(mediaPath)
	logger.Info("audio extracted", slog.String("stage", "extract"), slog.Duration("elapsed", time.Since(started)))
	if err := p.advance(run, StateAudioExtracted, ProgressExtracted); err != nil {
		return err
	}

	started = time.Now()
	transcript, err := p.opts.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return p.fail(run, logger, "transcribe", err)
	}
	run.setTranscript(transcript)
	logger.Info("audio transcribed",
		slog.String("stage", "transcribe"),
		slog.Int("cues", srt.CountCues(transcript)),
		slog.Duration("elapsed", time.Since(started)))
	if err := p.advance(run, StateTranscribed, ProgressTranscribed); err != nil {
		return err
	}

	detected := p.opts.Detector.Detect(transcript)
	run.setDetected(detected)
	logger.Info("source language detected", slog.String("stage", "detect"), slog.String("language", detected.String()))
	if err := p.advance(run, StateLanguageDetected, ProgressTranscribed); err != nil {
		return err
	}
	return p.advance(run, StateAwaitingEdit, ProgressTranscribed)
}

func (p *Pipeline) removeWorkDir(logger *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove work directory", slog.String("dir", dir), slog.String("error", err.Error()))
	}
}

// Translate freezes editedTranscript (or the original transcript when empty)
// and translates it into each language in order, one call at a time. Every
// completed translation is written before the next call starts, so a failure
// at language i leaves languages 1..i-1 on disk and in the run; the remaining
// languages are not attempted.
func (p *Pipeline) Translate(ctx context.Context, run *Run, editedTranscript string, languages []string) error {
	if run == nil {
		return errors.New("pipeline: nil run")
	}
	if state := run.State(); state != StateAwaitingEdit {
		return services.Wrap(services.ErrValidation, "translate", "", fmt.Sprintf("run %s is %s, not awaiting translation", run.ID(), state), nil)
	}
	labels := NormalizeLanguages(languages)
	if len(labels) == 0 {
		return services.Wrap(services.ErrValidation, "translate", "", "select at least one target language", nil)
	}

	logger := p.opts.Logger.With(slog.String("run_id", run.ID()), slog.String("stage", "translate"))
	run.setLanguages(labels)
	transcript := run.freeze(editedTranscript)
	if err := p.advance(run, StateTranslating, ProgressTranscribed); err != nil {
		return err
	}

	sourceCues := srt.CountCues(transcript)
	total := len(labels)
	for i, label := range labels {
		if err := ctx.Err(); err != nil {
			return p.fail(run, logger, "translate", err)
		}

		started := time.Now()
		var text string
		err := p.opts.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			text, err = p.opts.Translator.Translate(ctx, transcript, label)
			return err
		})
		if err != nil {
			return p.fail(run, logger, "translate", fmt.Errorf("%s (%d/%d): %w", label, i+1, total, err))
		}

		path, err := p.opts.Writer.Write(run.ID(), label, text)
		if err != nil {
			return p.fail(run, logger, "write", err)
		}
		run.addTranslation(Translation{Language: label, Text: text, Path: path})

		if got := srt.CountCues(text); sourceCues > 0 && got != sourceCues {
			logger.Warn("translated subtitle cue count differs from source",
				slog.String("language", label), slog.Int("source_cues", sourceCues), slog.Int("translated_cues", got))
		}
		logger.Info("translation written",
			slog.String("language", label),
			slog.String("path", path),
			slog.Int("index", i+1),
			slog.Int("total", total),
			slog.Duration("elapsed", time.Since(started)))

		if err := p.advance(run, StateTranslating, TranslationProgress(i+1, total)); err != nil {
			return err
		}
	}

	if err := p.advance(run, StateComplete, ProgressComplete); err != nil {
		return err
	}
	logger.Info("run complete", slog.Int("translations", total))
	return nil
}

// EditFunc lets a caller replace the transcript between detection and
// translation. Returning "" or only whitespace keeps the transcript unchanged.
type EditFunc func(transcript string, detected langdetect.Result) string

// Process runs Prepare and Translate back to back.
func (p *Pipeline) Process(ctx context.Context, upload media.Upload, languages []string, edit EditFunc) (*Run, error) {
	if len(NormalizeLanguages(languages)) == 0 {
		return nil, services.Wrap(services.ErrValidation, "translate", "", "select at least one target language", nil)
	}
	run, err := p.Prepare(ctx, upload)
	if err != nil {
		return run, err
	}
	edited := ""
	if edit != nil {
		snap := run.Snapshot()
		edited = edit(snap.Transcript, snap.DetectedLanguage)
	}
	return run, p.Translate(ctx, run, edited, languages)
}

// NormalizeLanguages converts selections to output labels, dropping blanks
// and case-insensitive duplicates while keeping the first occurrence's order.
func NormalizeLanguages(languages []string) []string {
	labels := make([]string, 0, len(languages))
	seen := make(map[string]struct{}, len(languages))
	for _, raw := range languages {
		label := output.Label(raw)
		if label == "" {
			continue
		}
		key := output.Key(label)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		labels = append(labels, label)
	}
	return labels
}

func (p *Pipeline) advance(run *Run, next State, progress int) error {
	if err := run.advance(next, progress, p.opts.Now()); err != nil {
		return err
	}
	p.notify(run)
	return nil
}

func (p *Pipeline) fail(run *Run, logger *slog.Logger, stage string, err error) error {
	run.abort(err, p.opts.Now())
	logger.Error("run aborted",
		slog.String("stage", stage),
		slog.String("kind", services.Kind(err)),
		slog.String("error", err.Error()))
	p.notify(run)
	return err
}

func (p *Pipeline) notify(run *Run) {
	if p.opts.Observer != nil {
		p.opts.Observer.RunUpdated(run.Snapshot())
	}
}
