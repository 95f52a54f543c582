package domain

import (
	"fmt"
	"time"
)

// ContentKind classifies the payload of an inbound message.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
	KindAudio ContentKind = "audio"
	KindVideo ContentKind = "video"
)

// IsMedia reports whether the kind carries a binary payload that needs extraction.
func (k ContentKind) IsMedia() bool {
	return k == KindImage || k == KindAudio || k == KindVideo
}

// Sender identifies the user who wrote an inbound message.
type Sender struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// InboundMessage is a single message observed in a source chat.
// Text carries the payload of text messages; PayloadRef carries the file
// reference of media messages. Caption is the literal text attached to media.
type InboundMessage struct {
	ID         string      `json:"id"`
	SourceID   int64       `json:"source_id"`
	MessageID  int         `json:"message_id"` // platform message id inside the source chat
	Kind       ContentKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	Caption    string      `json:"caption,omitempty"`
	PayloadRef string      `json:"payload_ref,omitempty"`
	FileName   string      `json:"file_name,omitempty"` // optional hint for recognizers
	Sender     Sender      `json:"sender"`
	ReceivedAt time.Time   `json:"received_at"`
}

// LiteralText returns the text the user typed: the payload for text
// messages, the caption for media.
func (m InboundMessage) LiteralText() string {
	if m.Kind == KindText {
		return m.Text
	}
	return m.Caption
}

// Validate checks that exactly one of Text / PayloadRef is populated,
// consistent with Kind.
func (m InboundMessage) Validate() error {
	switch {
	case m.Kind == KindText:
		if m.PayloadRef != "" {
			return fmt.Errorf("text message %s carries a payload reference", m.ID)
		}
	case m.Kind.IsMedia():
		if m.PayloadRef == "" {
			return fmt.Errorf("%s message %s has no payload reference", m.Kind, m.ID)
		}
		if m.Text != "" {
			return fmt.Errorf("%s message %s carries a text payload", m.Kind, m.ID)
		}
	default:
		return fmt.Errorf("message %s has unknown content kind %q", m.ID, m.Kind)
	}
	return nil
}

// ExtractionResult is what a recognizer produced for a media payload.
// On failure Text is empty and Success is false.
type ExtractionResult struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
}

// FailedExtraction is the zero-text failure result.
func FailedExtraction() ExtractionResult {
	return ExtractionResult{}
}

// ClassificationResult is the outcome of junk and homework checks.
type ClassificationResult struct {
	IsJunk      bool   `json:"is_junk"`
	IsHomework  bool   `json:"is_homework"`
	MatchedText string `json:"matched_text,omitempty"`
}

// ForwardOutcome records one delivery attempt to one destination.
type ForwardOutcome struct {
	DestinationID int64  `json:"destination_id"`
	Delivered     bool   `json:"delivered"`
	Error         string `json:"error,omitempty"`
}
