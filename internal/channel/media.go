package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hwbot/internal/domain"
	"hwbot/internal/extract"
)

// Deliver copies msg into the destination chat. The copy carries no
// "forwarded from" header.
func (t *Telegram) Deliver(ctx context.Context, msg domain.InboundMessage, destinationID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := tgbotapi.NewCopyMessage(destinationID, msg.SourceID, msg.MessageID)
	if _, err := t.bot.Request(c); err != nil {
		return fmt.Errorf("copy message %d to %d: %w", msg.MessageID, destinationID, err)
	}
	return nil
}

// Fetch downloads the file behind a Telegram file id.
func (t *Telegram) Fetch(ctx context.Context, fileID string) (*extract.Blob, error) {
	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if t.cfg.MaxFileBytes > 0 && int64(file.FileSize) > t.cfg.MaxFileBytes {
		return nil, fmt.Errorf("file is %d bytes, limit %d", file.FileSize, t.cfg.MaxFileBytes)
	}

	// The URL embeds the bot token and must not be logged.
	url := fmt.Sprintf(t.cfg.FileEndpoint, t.cfg.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", redactToken(err, t.cfg.Token))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if t.cfg.MaxFileBytes > 0 {
		body = io.LimitReader(resp.Body, t.cfg.MaxFileBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if t.cfg.MaxFileBytes > 0 && int64(len(data)) > t.cfg.MaxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", t.cfg.MaxFileBytes)
	}

	return &extract.Blob{
		Data:     data,
		Name:     path.Base(file.FilePath),
		MimeType: resp.Header.Get("Content-Type"),
	}, nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// redactToken strips the bot token from transport errors, which quote the URL.
func redactToken(err error, token string) error {
	if token == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}
