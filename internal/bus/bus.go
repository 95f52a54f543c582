// Package bus is the bounded inbound queue between transports and triage workers.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hwbot/internal/domain"
)

const DefaultPublishTimeout = 10 * time.Second

var (
	ErrClosed    = errors.New("inbound queue closed")
	ErrQueueFull = errors.New("inbound queue full")
)

// Queue is a channel-backed queue of inbound messages.
type Queue struct {
	inbound chan domain.InboundMessage
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	once    sync.Once
	wait    time.Duration
	logger  *slog.Logger
}

// New creates a Queue with the given buffer size. A full queue makes
// Publish wait up to wait before the message is dropped.
func New(bufferSize int, wait time.Duration, logger *slog.Logger) *Queue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if wait <= 0 {
		wait = DefaultPublishTimeout
	}
	return &Queue{
		inbound: make(chan domain.InboundMessage, bufferSize),
		done:    make(chan struct{}),
		wait:    wait,
		logger:  logger,
	}
}

// Publish enqueues msg. It blocks while the queue is full, up to the
// configured wait, until ctx is done or until the queue is closed.
func (q *Queue) Publish(ctx context.Context, msg domain.InboundMessage) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("attempted to publish to closed queue", "message_id", msg.ID)
		return ErrClosed
	}

	select {
	case q.inbound <- msg:
		return nil
	default:
	}

	q.logger.Warn("inbound queue full, waiting", "source", msg.SourceID, "message_id", msg.ID)
	timer := time.NewTimer(q.wait)
	defer timer.Stop()
	select {
	case q.inbound <- msg:
		q.logger.Info("message enqueued after wait", "message_id", msg.ID)
		return nil
	case <-timer.C:
		q.logger.Error("message dropped: inbound queue full",
			"source", msg.SourceID,
			"message_id", msg.ID,
			"waited", q.wait,
		)
		return ErrQueueFull
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns the receive side. It is closed by Close.
func (q *Queue) Subscribe() <-chan domain.InboundMessage {
	return q.inbound
}

// Len reports the number of queued messages.
func (q *Queue) Len() int {
	return len(q.inbound)
}

// Close stops the queue. Publishers waiting on a full queue return
// ErrClosed so Close does not wait out their timeout.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.inbound)
	}
}
