package domain

import (
	"context"
	"time"
)

// SenderActivityRecord is the latest forwarded activity for a source chat.
// At most one live record exists per SourceID.
type SenderActivityRecord struct {
	SourceID    int64     `json:"source_id"`
	SenderID    int64     `json:"sender_id"`
	DisplayName string    `json:"display_name"`
	Snippet     string    `json:"last_message"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ForwardedLogEntry is one append-only record of a forwarded message.
type ForwardedLogEntry struct {
	SourceID    int64     `json:"source_id"`
	Snippet     string    `json:"message"`
	ForwardedAt time.Time `json:"forwarded_at"`
}

// ActivityStore owns the sender-activity table and the forwarded-message log.
// Callers only submit entries; stored entries are never mutated in place.
type ActivityStore interface {
	// RecordSenderActivity upserts by SourceID.
	RecordSenderActivity(ctx context.Context, rec SenderActivityRecord) error

	// AppendForwardedLog appends one entry; it never overwrites.
	AppendForwardedLog(ctx context.Context, entry ForwardedLogEntry) error

	// Summarize counts forwarded entries per source with a timestamp in (now-window, now].
	Summarize(ctx context.Context, window time.Duration, now time.Time) (map[int64]int, error)

	ListSenderActivity(ctx context.Context) (map[int64]SenderActivityRecord, error)

	ClearForwardedLog(ctx context.Context) error
	ClearSenderActivity(ctx context.Context) error

	Close() error
}
