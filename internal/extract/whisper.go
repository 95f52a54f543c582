package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperConfig configures an OpenAI-compatible speech-to-text endpoint.
type WhisperConfig struct {
	Name     string // label used in logs, e.g. "groq"
	APIBase  string // e.g., "https://api.groq.com/openai/v1" or "https://api.openai.com/v1"
	APIKey   string
	Model    string // e.g., "whisper-large-v3" (Groq) or "whisper-1" (OpenAI)
	Language string // optional: ISO-639-1 language code
	Logger   *slog.Logger
}

// WhisperTranscriber transcribes audio through the /audio/transcriptions API.
type WhisperTranscriber struct {
	name     string
	model    string
	language string
	client   *openai.Client
	logger   *slog.Logger
}

func NewWhisperTranscriber(cfg WhisperConfig) *WhisperTranscriber {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3"
	}
	if cfg.Name == "" {
		cfg.Name = "whisper"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.APIBase
	clientCfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	return &WhisperTranscriber{
		name:     cfg.Name,
		model:    cfg.Model,
		language: cfg.Language,
		client:   openai.NewClientWithConfig(clientCfg),
		logger:   cfg.Logger,
	}
}

func (w *WhisperTranscriber) Name() string { return w.name }

// Transcribe uploads media and returns the recognized text.
// filename must carry an extension the API can infer the format from.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, media io.Reader, filename string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   media,
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	w.logger.Info("transcription complete",
		"provider", w.name,
		"text_len", len(resp.Text),
		"language", resp.Language,
		"duration", resp.Duration,
	)
	return resp.Text, nil
}
