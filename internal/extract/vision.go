package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const ocrPrompt = "Transcribe all text visible in this image exactly as written. " +
	"Reply with the text only. If there is no text, reply with an empty message."

// VisionConfig configures an OpenAI-compatible multimodal model used for OCR.
type VisionConfig struct {
	APIBase   string
	APIKey    string
	Model     string
	MaxTokens int
	Logger    *slog.Logger
}

// VisionOCR reads text from images with a vision-capable chat model.
type VisionOCR struct {
	model     string
	maxTokens int
	client    *openai.Client
	logger    *slog.Logger
}

func NewVisionOCR(cfg VisionConfig) *VisionOCR {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.APIBase
	clientCfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	return &VisionOCR{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    openai.NewClientWithConfig(clientCfg),
		logger:    cfg.Logger,
	}
}

func (v *VisionOCR) Name() string { return "vision-ocr" }

// RecognizeImage sends the image inline as a data URL.
func (v *VisionOCR) RecognizeImage(ctx context.Context, image *Blob) (string, error) {
	dataURL := "data:" + imageMIME(image) + ";base64," + base64.StdEncoding.EncodeToString(image.Data)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     v.model,
		MaxTokens: v.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: ocrPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision response has no choices")
	}

	text := resp.Choices[0].Message.Content
	v.logger.Info("ocr complete", "model", v.model, "text_len", len(text), "tokens", resp.Usage.TotalTokens)
	return text, nil
}

// imageMIME returns the declared type when it is an image type and sniffs
// the bytes otherwise. File servers often answer application/octet-stream.
func imageMIME(b *Blob) string {
	if strings.HasPrefix(b.MimeType, "image/") {
		return b.MimeType
	}
	return http.DetectContentType(b.Data)
}
