// Package openaiapi adapts the OpenAI speech-to-text and chat-completion APIs
// to the transcription and translation stages.
package openaiapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/HugeFrog24/gpt-video-translator/internal/config"
	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

// Client holds one configured OpenAI client shared by both stages.
type Client struct {
	client             *openai.Client
	apiKey             string
	transcriptionModel string
	translationModel   string
}

// New constructs a Client from configuration. A missing API key is reported
// on first use rather than here.
func New(cfg config.OpenAI) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	httpClient := &http.Client{}
	if cfg.TimeoutSeconds > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	clientCfg.HTTPClient = httpClient

	transcriptionModel := strings.TrimSpace(cfg.TranscriptionModel)
	if transcriptionModel == "" {
		transcriptionModel = openai.Whisper1
	}
	translationModel := strings.TrimSpace(cfg.TranslationModel)
	if translationModel == "" {
		translationModel = openai.GPT3Dot5Turbo
	}

	return &Client{
		client:             openai.NewClientWithConfig(clientCfg),
		apiKey:             strings.TrimSpace(cfg.APIKey),
		transcriptionModel: transcriptionModel,
		translationModel:   translationModel,
	}
}

// Transcribe sends audioFile to the speech-to-text endpoint and returns the
// SRT response verbatim.
func (c *Client) Transcribe(ctx context.Context, audioFile string) (string, error) {
	if err := c.ensureKey("transcribe"); err != nil {
		return "", err
	}
	req := openai.AudioRequest{
		Model:    c.transcriptionModel,
		FilePath: audioFile,
		Format:   openai.AudioResponseFormatSRT,
	}
	resp, err := c.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", classify(services.Wrap(services.ErrExternalService, "transcribe", c.transcriptionModel, "transcription request failed", err))
	}
	return resp.Text, nil
}

// SystemPrompt is the fixed instruction sent with every translation.
func SystemPrompt(language string) string {
	return fmt.Sprintf("You are a translator. Translate the following SRT content to %s. Maintain the SRT format including timestamps.", language)
}

// Translate asks the chat model to translate transcript into language and
// returns the response content unmodified.
func (c *Client) Translate(ctx context.Context, transcript, language string) (string, error) {
	if err := c.ensureKey("translate"); err != nil {
		return "", err
	}
	req := openai.ChatCompletionRequest{
		Model: c.translationModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: SystemPrompt(language),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: transcript,
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(services.Wrap(services.ErrExternalService, "translate", language, "chat completion failed", err))
	}
	if len(resp.Choices) == 0 {
		return "", services.Wrap(services.ErrExternalService, "translate", language, "chat completion returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) ensureKey(stage string) error {
	if c.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, stage, "openai", "OPENAI_API_KEY environment variable is not set", nil)
	}
	return nil
}

// classify tags rate limits, server errors and network failures as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if retryableStatus(apiErr.HTTPStatusCode) {
			return services.MarkTransient(err)
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if retryableStatus(reqErr.HTTPStatusCode) {
			return services.MarkTransient(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return services.MarkTransient(err)
	}
	return err
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
