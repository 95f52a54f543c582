// Package events publishes "homework forwarded" notifications to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"hwbot/internal/domain"
)

const (
	EventTypeForwarded = "homework.forwarded"
	DefaultRoutingKey  = "homework.forwarded"
	DefaultExchange    = "hwbot.events"

	maxDialDelay = 60 * time.Second
)

// Meta identifies one published event.
type Meta struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Meta    Meta                  `json:"meta"`
	Payload domain.ForwardedEvent `json:"payload"`
}

func newEnvelope(ev domain.ForwardedEvent, now time.Time) Envelope {
	return Envelope{
		Meta: Meta{
			ID:         uuid.NewString(),
			Type:       EventTypeForwarded,
			Source:     "hwbot",
			OccurredAt: now.UTC(),
		},
		Payload: ev,
	}
}

type Config struct {
	URL           string
	Exchange      string
	RoutingKey    string
	RetryAttempts int
	Delay         time.Duration
	Logger        *slog.Logger
}

// RabbitPublisher implements domain.EventPublisher on a topic exchange
// with publisher confirms.
type RabbitPublisher struct {
	mu         sync.Mutex
	conn       *amqp091.Connection
	ch         *amqp091.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

func NewRabbitPublisher(ctx context.Context, cfg Config) (*RabbitPublisher, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = DefaultRoutingKey
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}

	conn, err := dialWithRetry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	cfg.Logger.Info("event publisher connected", "exchange", cfg.Exchange, "routing_key", cfg.RoutingKey)
	return &RabbitPublisher{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     cfg.Logger,
	}, nil
}

// PublishForwarded publishes ev and waits for the broker's confirm.
func (p *RabbitPublisher) PublishForwarded(ctx context.Context, ev domain.ForwardedEvent) error {
	env := newEnvelope(ev, time.Now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, p.routingKey, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     env.Meta.ID,
			CorrelationId: ev.MessageID,
			Type:          EventTypeForwarded,
			Timestamp:     env.Meta.OccurredAt,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", EventTypeForwarded, err)
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !ok {
		return errors.New("broker nacked event")
	}
	p.logger.Debug("event published", "message_id", ev.MessageID, "event_id", env.Meta.ID)
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	return p.conn.Close()
}

// dialWithRetry connects with exponential backoff, giving up when ctx is done.
func dialWithRetry(ctx context.Context, cfg Config) (*amqp091.Connection, error) {
	var lastErr error
	for i := 1; i <= cfg.RetryAttempts; i++ {
		conn, err := amqp091.Dial(cfg.URL)
		if err == nil {
			if i > 1 {
				cfg.Logger.Info("rabbit connected", "attempt", i)
			}
			return conn, nil
		}
		lastErr = err
		if i == cfg.RetryAttempts {
			break
		}

		sleep := backoff(cfg.Delay, i)
		cfg.Logger.Warn("rabbit dial failed", "attempt", i, "sleep", sleep, "err", err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("connect to RabbitMQ after %d attempts: %w", cfg.RetryAttempts, lastErr)
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base * time.Duration(math.Pow(2, float64(attempt-1)))
	if d > maxDialDelay {
		d = maxDialDelay
	}
	return d
}
