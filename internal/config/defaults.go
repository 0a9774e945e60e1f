package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultLanguages is the target language list offered by the web form.
var DefaultLanguages = []string{
	"French", "German", "Spanish", "Italian", "Turkish", "Chinese",
	"English", "Arabic", "Portuguese", "Russian", "Japanese",
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   "~/.local/share/vidtranslate/work",
			OutputDir: "~/.local/share/vidtranslate/output",
			LogDir:    "~/.local/share/vidtranslate/logs",
			HistoryDB: "~/.local/share/vidtranslate/history.db",
		},
		OpenAI: OpenAI{
			BaseURL:            "https://api.openai.com/v1",
			TranscriptionModel: "whisper-1",
			TranslationModel:   "gpt-3.5-turbo",
		},
		Media: Media{
			MaxUploadMiB:      200,
			AllowedExtensions: []string{"mp4", "avi", "mov", "mp3"},
			FFmpeg:            "ffmpeg",
			FFprobe:           "ffprobe",
		},
		Transcription: Transcription{
			ChunkMinutes:      10,
			ChunkThresholdMiB: 25,
		},
		Retry: Retry{
			MaxAttempts:      1,
			InitialBackoffMS: 500,
			MaxBackoffMS:     8000,
		},
		Server: Server{
			Bind:              "127.0.0.1:8501",
			SessionTTLMinutes: 60,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
		Languages: Languages{
			Choices: append([]string(nil), DefaultLanguages...),
		},
	}
}

func (c *Config) normalize() error {
	var err error
	for _, field := range []*string{&c.Paths.WorkDir, &c.Paths.OutputDir, &c.Paths.LogDir, &c.Paths.HistoryDB} {
		if *field, err = expandPath(*field); err != nil {
			return err
		}
	}

	exts := make([]string, 0, len(c.Media.AllowedExtensions))
	for _, ext := range c.Media.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	c.Media.AllowedExtensions = exts

	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	if len(c.Languages.Choices) == 0 {
		c.Languages.Choices = append([]string(nil), DefaultLanguages...)
	}
	return nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}
