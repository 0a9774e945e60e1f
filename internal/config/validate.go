package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. A missing API key is not an
// error here: the OpenAI calls themselves fail fast without one so that
// offline commands keep working.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateOpenAI(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if c.Transcription.ChunkMinutes < 0 {
		return errors.New("transcription.chunk_minutes must not be negative")
	}
	if c.Transcription.ChunkThresholdMiB < 0 {
		return errors.New("transcription.chunk_threshold_mib must not be negative")
	}
	if c.Server.SessionTTLMinutes <= 0 {
		return errors.New("server.session_ttl_minutes must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.HistoryDB == "" {
		return errors.New("paths.history_db must be set")
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.MaxUploadMiB <= 0 {
		return errors.New("media.max_upload_mib must be positive")
	}
	if len(c.Media.AllowedExtensions) == 0 {
		return errors.New("media.allowed_extensions must not be empty")
	}
	if strings.TrimSpace(c.Media.FFmpeg) == "" {
		return errors.New("media.ffmpeg must be set")
	}
	return nil
}

func (c *Config) validateOpenAI() error {
	if c.OpenAI.BaseURL == "" {
		return errors.New("openai.base_url must be set")
	}
	if strings.TrimSpace(c.OpenAI.TranscriptionModel) == "" {
		return errors.New("openai.transcription_model must be set")
	}
	if strings.TrimSpace(c.OpenAI.TranslationModel) == "" {
		return errors.New("openai.translation_model must be set")
	}
	if c.OpenAI.TimeoutSeconds < 0 {
		return errors.New("openai.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialBackoffMS < 0 || c.Retry.MaxBackoffMS < 0 {
		return errors.New("retry backoff values must not be negative")
	}
	if c.Retry.MaxAttempts > 1 && c.Retry.MaxBackoffMS < c.Retry.InitialBackoffMS {
		return errors.New("retry.max_backoff_ms must be >= retry.initial_backoff_ms")
	}
	return nil
}
