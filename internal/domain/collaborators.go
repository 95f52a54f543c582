package domain

import "context"

// ImageTextExtractor turns an image payload into text.
// Implementations must never return an error: failures and timeouts are
// reported as a failed ExtractionResult.
type ImageTextExtractor interface {
	ExtractImageText(ctx context.Context, payloadRef string) ExtractionResult
}

// MediaTextExtractor turns an audio or video payload into text.
type MediaTextExtractor interface {
	ExtractMediaText(ctx context.Context, payloadRef string, kind ContentKind) ExtractionResult
}

// Deliverer sends a matched message to one destination chat.
type Deliverer interface {
	Deliver(ctx context.Context, msg InboundMessage, destinationID int64) error
}

// Notifier sends a plain text notice to a chat (admin digests, startup notices).
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// ForwardedEvent describes a message that completed fan-out.
type ForwardedEvent struct {
	MessageID string           `json:"message_id"`
	SourceID  int64            `json:"source_id"`
	SenderID  int64            `json:"sender_id"`
	Kind      ContentKind      `json:"kind"`
	Snippet   string           `json:"snippet"`
	Outcomes  []ForwardOutcome `json:"outcomes"`
}

// EventPublisher announces forwarded messages to downstream consumers.
type EventPublisher interface {
	PublishForwarded(ctx context.Context, ev ForwardedEvent) error
	Close() error
}
