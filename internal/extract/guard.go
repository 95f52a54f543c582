// Package extract turns image, audio and video payloads into text.
// Every recognizer call runs behind a guard that bounds it in time and
// converts errors and panics into a failed ExtractionResult.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hwbot/internal/domain"
	"hwbot/internal/metrics"
)

// DefaultTimeout bounds a single extraction when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// RecognizeFunc performs one recognition attempt.
type RecognizeFunc func(ctx context.Context) (string, error)

type guardResult struct {
	text string
	err  error
}

// Guard runs fn with a deadline. It returns a successful result only when fn
// returns without error before the deadline. It never panics and never
// returns an error.
func Guard(ctx context.Context, timeout time.Duration, kind domain.ContentKind, logger *slog.Logger, fn RecognizeFunc) domain.ExtractionResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	// Buffered so a recognizer that ignores ctx can still finish and exit.
	done := make(chan guardResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- guardResult{err: fmt.Errorf("recognizer panic: %v", r)}
			}
		}()
		text, err := fn(ctx)
		done <- guardResult{text: text, err: err}
	}()

	var res guardResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = guardResult{err: fmt.Errorf("extraction aborted: %w", ctx.Err())}
	}
	metrics.ExtractionLatency.Observe(time.Since(start).Seconds())

	if res.err != nil {
		metrics.ExtractionFailures.Inc()
		logger.Warn("extraction failed",
			"kind", kind,
			"elapsed", time.Since(start),
			"err", res.err,
		)
		return domain.FailedExtraction()
	}
	return domain.ExtractionResult{Text: strings.TrimSpace(res.text), Success: true}
}
