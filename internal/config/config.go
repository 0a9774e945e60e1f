package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	HistoryDB string `toml:"history_db"`
}

// OpenAI contains credentials and model selection for the speech-to-text and
// chat-completion APIs.
type OpenAI struct {
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	TranscriptionModel string `toml:"transcription_model"`
	TranslationModel   string `toml:"translation_model"`
	// TimeoutSeconds bounds a single API request. Zero means no timeout.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Media contains upload limits and the conversion tool binaries.
type Media struct {
	MaxUploadMiB      int      `toml:"max_upload_mib"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	FFmpeg            string   `toml:"ffmpeg"`
	FFprobe           string   `toml:"ffprobe"`
}

// Transcription controls splitting of long audio before it is sent to Whisper.
type Transcription struct {
	ChunkMinutes      int `toml:"chunk_minutes"`
	ChunkThresholdMiB int `toml:"chunk_threshold_mib"`
}

// Retry configures the policy applied to transcription and translation calls.
// MaxAttempts of 1 disables retries.
type Retry struct {
	MaxAttempts      int `toml:"max_attempts"`
	InitialBackoffMS int `toml:"initial_backoff_ms"`
	MaxBackoffMS     int `toml:"max_backoff_ms"`
}

// Server contains the web front end settings.
type Server struct {
	Bind string `toml:"bind"`
	// SessionTTLMinutes is how long a finished run stays reachable in the
	// web front end before it is dropped from memory.
	SessionTTLMinutes int `toml:"session_ttl_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Languages lists the target languages offered by the web form.
type Languages struct {
	Choices []string `toml:"choices"`
}

// Config encapsulates all configuration values.
type Config struct {
	Paths         Paths         `toml:"paths"`
	OpenAI        OpenAI        `toml:"openai"`
	Media         Media         `toml:"media"`
	Transcription Transcription `toml:"transcription"`
	Retry         Retry         `toml:"retry"`
	Server        Server        `toml:"server"`
	Logging       Logging       `toml:"logging"`
	Languages     Languages     `toml:"languages"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidtranslate/config.toml")
}

// Load reads .env, locates, parses, and validates a configuration file. The
// returned config has env overrides applied and path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads a .env file from the working directory when present.
// Variables already set in the environment win.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

func (c *Config) applyEnv() {
	if value := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); value != "" {
		c.OpenAI.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); value != "" {
		c.OpenAI.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv("VIDTRANSLATE_OUTPUT_DIR")); value != "" {
		c.Paths.OutputDir = value
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = defaultPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir, filepath.Dir(c.Paths.HistoryDB)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// MaxUploadBytes returns the upload size bound in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Media.MaxUploadMiB) * 1024 * 1024
}

// SessionTTL returns how long finished web runs are kept.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLMinutes) * time.Minute
}

// SampleConfig returns the commented sample configuration file.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path. Existing files are
// left untouched unless overwrite is set.
func CreateSample(path string, overwrite bool) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(expanded); err == nil {
			return fmt.Errorf("config file already exists: %s", expanded)
		}
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
