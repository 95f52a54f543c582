package activity

import (
	"context"
	"sync"
	"time"

	"hwbot/internal/domain"
)

// MemoryStore implements domain.ActivityStore in process memory.
// Each write holds the lock for one logical mutation; reads copy a snapshot.
type MemoryStore struct {
	mu         sync.RWMutex
	senders    map[int64]domain.SenderActivityRecord
	forwarded  []domain.ForwardedLogEntry
	snippetLen int
}

func NewMemoryStore(snippetLen int) *MemoryStore {
	return &MemoryStore{
		senders:    make(map[int64]domain.SenderActivityRecord),
		snippetLen: snippetLen,
	}
}

func (s *MemoryStore) RecordSenderActivity(ctx context.Context, rec domain.SenderActivityRecord) error {
	rec.Snippet = Truncate(rec.Snippet, s.snippetLen)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[rec.SourceID] = rec
	return nil
}

func (s *MemoryStore) AppendForwardedLog(ctx context.Context, entry domain.ForwardedLogEntry) error {
	entry.Snippet = Truncate(entry.Snippet, s.snippetLen)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwarded = append(s.forwarded, entry)
	return nil
}

func (s *MemoryStore) Summarize(ctx context.Context, window time.Duration, now time.Time) (map[int64]int, error) {
	lower := now.Add(-window)
	counts := make(map[int64]int)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.forwarded {
		if e.ForwardedAt.After(lower) && !e.ForwardedAt.After(now) {
			counts[e.SourceID]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) ListSenderActivity(ctx context.Context) (map[int64]domain.SenderActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]domain.SenderActivityRecord, len(s.senders))
	for k, v := range s.senders {
		out[k] = v
	}
	return out, nil
}

// ForwardedLog returns a copy of the log in insertion order.
func (s *MemoryStore) ForwardedLog() []domain.ForwardedLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ForwardedLogEntry(nil), s.forwarded...)
}

func (s *MemoryStore) ClearForwardedLog(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwarded = nil
	return nil
}

func (s *MemoryStore) ClearSenderActivity(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders = make(map[int64]domain.SenderActivityRecord)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
