package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/HugeFrog24/gpt-video-translator/internal/audio"
	"github.com/HugeFrog24/gpt-video-translator/internal/config"
	"github.com/HugeFrog24/gpt-video-translator/internal/history"
	"github.com/HugeFrog24/gpt-video-translator/internal/langdetect"
	"github.com/HugeFrog24/gpt-video-translator/internal/logging"
	"github.com/HugeFrog24/gpt-video-translator/internal/media"
	"github.com/HugeFrog24/gpt-video-translator/internal/output"
	"github.com/HugeFrog24/gpt-video-translator/internal/pipeline"
	"github.com/HugeFrog24/gpt-video-translator/internal/retry"
	"github.com/HugeFrog24/gpt-video-translator/internal/services/openaiapi"
	"github.com/HugeFrog24/gpt-video-translator/internal/transcription"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// openHistory opens the run history database.
func (c *commandContext) openHistory() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	return store, nil
}

// buildPipeline wires the ffmpeg extractor, the OpenAI client, the lingua
// detector and the output writer into a pipeline.
func (c *commandContext) buildPipeline(observer pipeline.Observer) (*pipeline.Pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	api := openaiapi.New(cfg.OpenAI)
	ffmpeg := audio.NewFFmpeg(cfg.Media.FFmpeg, cfg.Media.FFprobe)
	policy := retryPolicy(cfg.Retry, logger)

	return pipeline.New(pipeline.Options{
		WorkDir:   cfg.Paths.WorkDir,
		Validator: media.NewValidator(cfg.MaxUploadBytes(), cfg.Media.AllowedExtensions),
		Extractor: ffmpeg,
		Transcriber: &transcription.Service{
			API:         api,
			Splitter:    ffmpeg,
			Retry:       policy,
			Threshold:   int64(cfg.Transcription.ChunkThresholdMiB) << 20,
			ChunkLength: time.Duration(cfg.Transcription.ChunkMinutes) * time.Minute,
			Logger:      logger,
		},
		Detector:   langdetect.New(),
		Translator: api,
		Writer:     output.NewWriter(cfg.Paths.OutputDir),
		Retry:      policy,
		Observer:   observer,
		Logger:     logger,
	})
}

func retryPolicy(cfg config.Retry, logger *slog.Logger) retry.Policy {
	policy := retry.FromConfig(cfg)
	backoff, ok := policy.(retry.Backoff)
	if !ok {
		return policy
	}
	backoff.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("transient failure, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	}
	return backoff
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
