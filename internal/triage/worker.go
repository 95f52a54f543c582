package triage

import (
	"context"
	"log/slog"
	"sync"

	"hwbot/internal/domain"
)

const defaultConcurrency = 4

// Run consumes inbound messages and processes them with bounded concurrency.
// It returns when ctx is done or inbound is closed, after in-flight messages
// have finished.
func Run(ctx context.Context, inbound <-chan domain.InboundMessage, concurrency int, p *Pipeline, logger *slog.Logger) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	logger.Info("triage workers started", "concurrency", concurrency)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			logger.Info("triage workers stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				logger.Info("inbound queue closed, triage workers stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				logger.Warn("shutdown before message was processed", "message_id", msg.ID)
				return
			}
			wg.Add(1)
			go func(m domain.InboundMessage) {
				defer wg.Done()
				defer func() { <-sem }()
				p.Process(ctx, m)
			}(msg)
		}
	}
}
