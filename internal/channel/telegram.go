// Package channel connects the bot to Telegram: it turns updates into
// inbound messages, answers admin commands, copies matched messages to
// destination chats and downloads media for extraction.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hwbot/internal/admin"
	"hwbot/internal/domain"
	"hwbot/internal/route"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3

	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Publisher accepts inbound messages for triage.
type Publisher interface {
	Publish(ctx context.Context, msg domain.InboundMessage) error
}

// Telegram implements domain.Deliverer, domain.Notifier and extract.Fetcher
// on top of one bot session.
type Telegram struct {
	cfg    TelegramConfig
	bot    *tgbotapi.BotAPI
	queue  Publisher
	client *http.Client
	logger *slog.Logger
}

type TelegramConfig struct {
	Token       string
	Mode        string // polling | webhook
	WebhookURL  string // public base URL; WebhookPath is appended
	WebhookPath string
	ParseMode   string
	AdminIDs    []int64

	MaxFileBytes int64
	Location     *time.Location
	Admin        *admin.Service

	// APIEndpoint and FileEndpoint override the Telegram servers, in the
	// format of tgbotapi.APIEndpoint and tgbotapi.FileEndpoint.
	APIEndpoint  string
	FileEndpoint string
	HTTPClient   *http.Client

	Logger *slog.Logger
}

// NewTelegram authenticates the bot. The returned value can deliver and
// fetch immediately; Start begins receiving updates.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if cfg.Admin == nil {
		return nil, fmt.Errorf("telegram: admin service is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePolling
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	return &Telegram{
		cfg:    cfg,
		bot:    bot,
		client: cfg.HTTPClient,
		logger: cfg.Logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Start receives updates until ctx is cancelled. In webhook mode it
// registers the webhook and updates arrive through WebhookHandler.
func (t *Telegram) Start(ctx context.Context, queue Publisher) error {
	t.queue = queue

	if t.cfg.Mode == ModeWebhook {
		link := strings.TrimRight(t.cfg.WebhookURL, "/") + t.cfg.WebhookPath
		wh, err := tgbotapi.NewWebhook(link)
		if err != nil {
			return fmt.Errorf("telegram webhook url: %w", err)
		}
		if _, err := t.bot.Request(wh); err != nil {
			return fmt.Errorf("telegram set webhook: %w", err)
		}
		t.logger.Info("telegram webhook registered", "path", t.cfg.WebhookPath)
		<-ctx.Done()
		return nil
	}

	// A webhook left over from an earlier deployment blocks getUpdates.
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		t.logger.Warn("telegram delete webhook failed", "err", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// WebhookHandler serves updates posted by Telegram in webhook mode.
func (t *Telegram) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		update, err := t.bot.HandleUpdate(r)
		if err != nil {
			t.logger.Warn("telegram webhook: bad update", "err", err)
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		if t.queue == nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		t.handleUpdate(r.Context(), *update)
		w.WriteHeader(http.StatusOK)
	})
}

// NotifyAdmins sends text to every admin chat. Failures are logged.
func (t *Telegram) NotifyAdmins(ctx context.Context, text string) {
	for _, id := range t.cfg.AdminIDs {
		if err := t.Notify(ctx, id, text); err != nil {
			t.logger.Warn("failed to notify admin", "admin_id", id, "err", err)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	if msg.IsCommand() && addressedTo(msg.CommandWithAt(), t.bot.Self.UserName) {
		// Unknown commands in groups are ordinary messages and go to triage.
		if knownCommands[msg.Command()] || msg.Chat.IsPrivate() {
			t.handleCommand(ctx, msg)
			return
		}
	}

	in, ok := toInbound(msg, time.Now())
	if !ok {
		return
	}

	t.logger.Debug("telegram message received",
		"message_id", in.ID,
		"chat_id", in.SourceID,
		"kind", in.Kind,
	)
	if err := t.queue.Publish(ctx, in); err != nil {
		t.logger.Error("telegram message not queued",
			"message_id", in.ID,
			"chat_id", in.SourceID,
			"err", err,
		)
	}
}

var knownCommands = map[string]bool{
	"start":              true,
	"status":             true,
	"help":               true,
	"id":                 true,
	"reload_config":      true,
	"weekly_summary":     true,
	"clear_homework_log": true,
	"list_senders":       true,
	"clear_senders":      true,
}

// addressedTo reports whether a command in /name or /name@bot form is meant
// for the bot called username.
func addressedTo(commandWithAt, username string) bool {
	_, target, ok := strings.Cut(commandWithAt, "@")
	return !ok || strings.EqualFold(target, username)
}

func (t *Telegram) isAdmin(from *tgbotapi.User) bool {
	return from != nil && slices.Contains(t.cfg.AdminIDs, from.ID)
}

func (t *Telegram) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	isAdmin := t.isAdmin(msg.From)
	svc := t.cfg.Admin
	now := time.Now().In(t.cfg.Location)

	var err error
	switch msg.Command() {
	case "start":
		t.sendMessage(ctx, chatID, admin.Greeting(now))
	case "status":
		t.sendMessage(ctx, chatID, admin.Status(now, svc.Routes().Len()))
	case "help":
		t.sendMessage(ctx, chatID, admin.Help(isAdmin))
	case "id":
		t.sendMessage(ctx, chatID, idReply(msg))
	case "reload_config":
		var table *route.Table
		if table, err = svc.ReloadRoutes(ctx, isAdmin, ""); err == nil {
			t.sendMessage(ctx, chatID, fmt.Sprintf("🔄 Configuration reloaded! %d mapped groups.", table.Len()))
		}
	case "weekly_summary":
		days := parseDays(msg.CommandArguments(), int(admin.DefaultWindow/(24*time.Hour)))
		var s admin.Summary
		if s, err = svc.Summary(ctx, isAdmin, time.Duration(days)*24*time.Hour); err == nil {
			t.sendMessage(ctx, chatID, admin.FormatSummary(s, days))
		}
	case "clear_homework_log":
		if err = svc.ClearForwardedLog(ctx, isAdmin); err == nil {
			t.sendMessage(ctx, chatID, "🧹 Homework log has been cleared.")
		}
	case "list_senders":
		var records []domain.SenderActivityRecord
		if records, err = svc.ListSenders(ctx, isAdmin); err == nil {
			t.sendMessage(ctx, chatID, admin.FormatSenders(records, t.cfg.Location))
		}
	case "clear_senders":
		if err = svc.ClearSenderActivity(ctx, isAdmin); err == nil {
			t.sendMessage(ctx, chatID, "🧹 Sender activity log has been cleared.")
		}
	default:
		t.sendMessage(ctx, chatID, "Unknown command. Type /help for available commands.")
	}

	if err != nil {
		t.replyError(ctx, chatID, msg, err)
	}
}

func (t *Telegram) replyError(ctx context.Context, chatID int64, msg *tgbotapi.Message, err error) {
	if errors.Is(err, admin.ErrNotAdmin) {
		var userID int64
		if msg.From != nil {
			userID = msg.From.ID
		}
		t.logger.Warn("admin command refused", "command", msg.Command(), "user_id", userID)
		t.sendMessage(ctx, chatID, "⛔ You are not authorized to use this command.")
		return
	}
	t.logger.Error("admin command failed", "command", msg.Command(), "err", err)
	t.sendMessage(ctx, chatID, "❌ "+err.Error())
}

// Notify implements domain.Notifier.
func (t *Telegram) Notify(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.sendChunk(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) {
	if err := t.Notify(ctx, chatID, text); err != nil {
		t.logger.Error("telegram send failed", "chat_id", chatID, "err", err)
	}
}

// sendChunk sends one chunk, first with the configured parse mode and then
// as plain text, backing off on rate limits and transient errors.
func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.cfg.ParseMode != "" {
			msg.ParseMode = t.cfg.ParseMode
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		errStr := err.Error()

		var backoff time.Duration
		switch {
		case strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429"):
			backoff = time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off", "retry_after", backoff, "attempt", attempt+1)
		case msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities"):
			t.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err)
			continue
		default:
			backoff = time.Duration(attempt+1) * time.Second
		}

		if attempt == telegramMaxSendRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("telegram send to %d after %d attempts: %w", chatID, telegramMaxSendRetries+1, lastErr)
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring
// newline boundaries and never splitting a UTF-8 sequence.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > maxLen {
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
			for cutAt > 0 && !isRuneStart(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
