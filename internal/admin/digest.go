package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"hwbot/internal/domain"
)

// Digest sends the forwarding summary to admin chats on a cron schedule.
type Digest struct {
	cron       *cron.Cron
	service    *Service
	notifier   domain.Notifier
	recipients []int64
	window     time.Duration
	timeout    time.Duration
	logger     *slog.Logger
}

type DigestConfig struct {
	Spec       string // standard 5-field cron expression
	Location   *time.Location
	Window     time.Duration
	Service    *Service
	Notifier   domain.Notifier
	Recipients []int64
	Logger     *slog.Logger
}

func NewDigest(cfg DigestConfig) (*Digest, error) {
	if cfg.Service == nil || cfg.Notifier == nil {
		return nil, fmt.Errorf("digest: service and notifier are required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	d := &Digest{
		cron:       cron.New(cron.WithLocation(cfg.Location)),
		service:    cfg.Service,
		notifier:   cfg.Notifier,
		recipients: cfg.Recipients,
		window:     cfg.Window,
		timeout:    time.Minute,
		logger:     cfg.Logger,
	}
	if _, err := d.cron.AddFunc(cfg.Spec, d.run); err != nil {
		return nil, fmt.Errorf("digest: invalid schedule %q: %w", cfg.Spec, err)
	}
	return d, nil
}

// Start runs the scheduler in the background.
func (d *Digest) Start() {
	d.cron.Start()
	for _, e := range d.cron.Entries() {
		d.logger.Info("digest scheduled", "next", e.Next, "recipients", len(d.recipients))
	}
}

// Stop halts the scheduler and waits for a running digest to finish.
func (d *Digest) Stop() {
	<-d.cron.Stop().Done()
}

func (d *Digest) run() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.Send(ctx); err != nil {
		d.logger.Error("digest failed", "err", err)
	}
}

// Send builds the summary and notifies every recipient. A failed recipient
// does not stop the others.
func (d *Digest) Send(ctx context.Context) error {
	summary, err := d.service.Summary(ctx, true, d.window)
	if err != nil {
		return err
	}
	text := FormatSummary(summary, int(d.window/(24*time.Hour)))

	var errs []error
	for _, chatID := range d.recipients {
		if err := d.notifier.Notify(ctx, chatID, text); err != nil {
			d.logger.Warn("digest delivery failed", "chat_id", chatID, "err", err)
			errs = append(errs, fmt.Errorf("notify %d: %w", chatID, err))
		}
	}
	d.logger.Info("digest sent", "recipients", len(d.recipients), "failed", len(errs), "forwarded", summary.Total())
	return errors.Join(errs...)
}
