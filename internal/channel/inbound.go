package channel

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"hwbot/internal/domain"
)

// toInbound converts a Telegram message into an inbound message. Messages
// without text or a supported media payload (stickers, polls, service
// messages) report ok=false.
func toInbound(msg *tgbotapi.Message, now time.Time) (domain.InboundMessage, bool) {
	in := domain.InboundMessage{
		ID:         uuid.NewString(),
		SourceID:   msg.Chat.ID,
		MessageID:  msg.MessageID,
		Caption:    msg.Caption,
		Sender:     senderOf(msg.From),
		ReceivedAt: now,
	}
	if msg.Date > 0 {
		in.ReceivedAt = time.Unix(int64(msg.Date), 0)
	}

	switch {
	case len(msg.Photo) > 0:
		// Telegram lists sizes smallest first.
		in.Kind = domain.KindImage
		in.PayloadRef = msg.Photo[len(msg.Photo)-1].FileID
		in.FileName = "photo.jpg"
	case msg.Voice != nil:
		in.Kind = domain.KindAudio
		in.PayloadRef = msg.Voice.FileID
		in.FileName = "voice.ogg"
	case msg.Audio != nil:
		in.Kind = domain.KindAudio
		in.PayloadRef = msg.Audio.FileID
		in.FileName = msg.Audio.FileName
	case msg.Video != nil:
		in.Kind = domain.KindVideo
		in.PayloadRef = msg.Video.FileID
		in.FileName = msg.Video.FileName
	case msg.VideoNote != nil:
		in.Kind = domain.KindVideo
		in.PayloadRef = msg.VideoNote.FileID
		in.FileName = "video_note.mp4"
	case msg.Document != nil:
		kind, ok := documentKind(msg.Document.MimeType)
		if !ok {
			return domain.InboundMessage{}, false
		}
		in.Kind = kind
		in.PayloadRef = msg.Document.FileID
		in.FileName = msg.Document.FileName
	case msg.Text != "":
		in.Kind = domain.KindText
		in.Text = msg.Text
		in.Caption = ""
	default:
		return domain.InboundMessage{}, false
	}
	return in, true
}

// documentKind maps a document's MIME type to a content kind.
func documentKind(mime string) (domain.ContentKind, bool) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return domain.KindImage, true
	case strings.HasPrefix(mime, "audio/"):
		return domain.KindAudio, true
	case strings.HasPrefix(mime, "video/"):
		return domain.KindVideo, true
	}
	return "", false
}

func senderOf(u *tgbotapi.User) domain.Sender {
	if u == nil {
		return domain.Sender{}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return domain.Sender{ID: u.ID, DisplayName: name}
}

func idReply(msg *tgbotapi.Message) string {
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	return fmt.Sprintf("👤 Your ID: %d\n💬 Chat ID: %d", userID, msg.Chat.ID)
}

// parseDays reads an optional positive day count from command arguments.
func parseDays(args string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n <= 0 || n > 365 {
		return fallback
	}
	return n
}
