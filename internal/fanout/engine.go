// Package fanout delivers one matched message to every destination of its
// source concurrently. A slow or failing destination never delays or
// cancels delivery to its siblings.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hwbot/internal/domain"
	"hwbot/internal/metrics"
)

// DefaultTimeout bounds one delivery attempt when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// Engine runs one independent, time-bounded delivery attempt per destination.
// Failed deliveries are reported, never retried.
type Engine struct {
	deliverer domain.Deliverer
	timeout   time.Duration
	logger    *slog.Logger
}

type Config struct {
	Deliverer domain.Deliverer
	Timeout   time.Duration // per destination
	Logger    *slog.Logger
}

func New(cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Engine{
		deliverer: cfg.Deliverer,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

// Deliver sends msg to every destination and returns once all attempts have
// finished or timed out. Outcomes are indexed like destinations.
func (e *Engine) Deliver(ctx context.Context, msg domain.InboundMessage, destinations []int64) []domain.ForwardOutcome {
	outcomes := make([]domain.ForwardOutcome, len(destinations))

	var wg sync.WaitGroup
	for i, dest := range destinations {
		wg.Add(1)
		go func(i int, dest int64) {
			defer wg.Done()
			outcomes[i] = e.deliverOne(ctx, msg, dest)
		}(i, dest)
	}
	wg.Wait()

	failed := 0
	for _, o := range outcomes {
		if !o.Delivered {
			failed++
		}
	}
	if failed > 0 {
		e.logger.Warn("fan-out finished with failures",
			"message_id", msg.ID,
			"source_id", msg.SourceID,
			"destinations", len(destinations),
			"failed", failed,
		)
	}
	return outcomes
}

func (e *Engine) deliverOne(ctx context.Context, msg domain.InboundMessage, dest int64) domain.ForwardOutcome {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("deliverer panic: %v", r)
			}
		}()
		done <- e.deliverer.Deliver(ctx, msg, dest)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("delivery aborted: %w", ctx.Err())
	}
	metrics.DeliveryLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.DeliveriesFailed.Inc()
		e.logger.Warn("delivery failed",
			"message_id", msg.ID,
			"source_id", msg.SourceID,
			"dest_id", dest,
			"err", err,
		)
		return domain.ForwardOutcome{DestinationID: dest, Error: err.Error()}
	}

	metrics.DeliveriesOK.Inc()
	e.logger.Info("message forwarded",
		"message_id", msg.ID,
		"source_id", msg.SourceID,
		"dest_id", dest,
		"elapsed", time.Since(start),
	)
	return domain.ForwardOutcome{DestinationID: dest, Delivered: true}
}
