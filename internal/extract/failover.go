package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// FailoverTranscriber tries transcribers in order, falling back to the next
// one when the current fails.
type FailoverTranscriber struct {
	transcribers []Transcriber
	logger       *slog.Logger
}

// NewFailoverTranscriber creates a failover chain from the given transcribers.
func NewFailoverTranscriber(transcribers []Transcriber, logger *slog.Logger) *FailoverTranscriber {
	return &FailoverTranscriber{
		transcribers: transcribers,
		logger:       logger,
	}
}

func (ft *FailoverTranscriber) Name() string {
	names := make([]string, len(ft.transcribers))
	for i, t := range ft.transcribers {
		names[i] = t.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

// Transcribe buffers media once so every attempt reads the full file.
func (ft *FailoverTranscriber) Transcribe(ctx context.Context, media io.Reader, filename string) (string, error) {
	if len(ft.transcribers) == 0 {
		return "", errNoRecognizer
	}
	data, err := io.ReadAll(media)
	if err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}

	var lastErr error
	for i, t := range ft.transcribers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := t.Transcribe(ctx, bytes.NewReader(data), filename)
		if err == nil {
			if i > 0 {
				ft.logger.Info("failover: used fallback transcriber",
					"transcriber", t.Name(),
					"attempt", i+1,
				)
			}
			return text, nil
		}
		lastErr = err
		ft.logger.Warn("failover: transcriber failed, trying next",
			"transcriber", t.Name(),
			"attempt", i+1,
			"error", err,
		)
	}
	return "", fmt.Errorf("all transcribers in failover chain failed: %w", lastErr)
}
