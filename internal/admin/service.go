// Package admin implements the operator surface: route reload, forwarding
// summaries and log maintenance, plus the digest scheduler and HTTP API
// that expose them.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"hwbot/internal/domain"
	"hwbot/internal/route"
)

// ErrNotAdmin is returned when a non-admin caller invokes an admin operation.
var ErrNotAdmin = errors.New("admin privileges required")

// DefaultWindow is the summary window used by the weekly report.
const DefaultWindow = 7 * 24 * time.Hour

// RoutesSource returns the current route configuration text.
type RoutesSource func() (string, error)

// Summary counts forwarded messages per source over (From, To].
type Summary struct {
	From   time.Time
	To     time.Time
	Counts map[int64]int
}

// Total is the number of forwarded messages in the window.
func (s Summary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Sources returns the counted source ids, busiest first.
func (s Summary) Sources() []int64 {
	ids := make([]int64, 0, len(s.Counts))
	for id := range s.Counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if s.Counts[ids[i]] != s.Counts[ids[j]] {
			return s.Counts[ids[i]] > s.Counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Service runs admin operations. Every operation takes the caller's admin
// status as decided by the transport.
type Service struct {
	router *route.Router
	store  domain.ActivityStore
	source RoutesSource
	now    func() time.Time
	logger *slog.Logger
}

type Config struct {
	Router       *route.Router
	Store        domain.ActivityStore
	RoutesSource RoutesSource // used when a reload supplies no text
	Now          func() time.Time
	Logger       *slog.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		router: cfg.Router,
		store:  cfg.Store,
		source: cfg.RoutesSource,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
}

// ReloadRoutes replaces the active route table. An empty text re-reads the
// configured source. On error the previous table stays active.
func (s *Service) ReloadRoutes(ctx context.Context, isAdmin bool, text string) (*route.Table, error) {
	if !isAdmin {
		return nil, ErrNotAdmin
	}
	if text == "" && s.source != nil {
		var err error
		if text, err = s.source(); err != nil {
			return nil, fmt.Errorf("read route source: %w", err)
		}
	}
	t, err := s.router.Reload(text)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Routes returns the active route table.
func (s *Service) Routes() *route.Table {
	return s.router.Snapshot()
}

// Summary counts forwarded messages per source in (now-window, now].
func (s *Service) Summary(ctx context.Context, isAdmin bool, window time.Duration) (Summary, error) {
	if !isAdmin {
		return Summary{}, ErrNotAdmin
	}
	if window <= 0 {
		window = DefaultWindow
	}
	now := s.now()
	counts, err := s.store.Summarize(ctx, window, now)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize: %w", err)
	}
	return Summary{From: now.Add(-window), To: now, Counts: counts}, nil
}

func (s *Service) ClearForwardedLog(ctx context.Context, isAdmin bool) error {
	if !isAdmin {
		return ErrNotAdmin
	}
	if err := s.store.ClearForwardedLog(ctx); err != nil {
		return fmt.Errorf("clear forwarded log: %w", err)
	}
	s.logger.Info("forwarded log cleared by admin")
	return nil
}

func (s *Service) ClearSenderActivity(ctx context.Context, isAdmin bool) error {
	if !isAdmin {
		return ErrNotAdmin
	}
	if err := s.store.ClearSenderActivity(ctx); err != nil {
		return fmt.Errorf("clear sender activity: %w", err)
	}
	s.logger.Info("sender activity cleared by admin")
	return nil
}

// ListSenders returns sender activity, most recent first.
func (s *Service) ListSenders(ctx context.Context, isAdmin bool) ([]domain.SenderActivityRecord, error) {
	if !isAdmin {
		return nil, ErrNotAdmin
	}
	m, err := s.store.ListSenderActivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sender activity: %w", err)
	}
	out := make([]domain.SenderActivityRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out, nil
}
