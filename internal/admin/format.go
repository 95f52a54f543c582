package admin

import (
	"fmt"
	"strings"
	"time"

	"hwbot/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// FormatSummary renders a summary for chat. days names the window.
func FormatSummary(s Summary, days int) string {
	if len(s.Counts) == 0 {
		return fmt.Sprintf("😐 No homework messages were forwarded in the past %d days.", days)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Homework Summary (last %d days):*\n\n", days)
	for _, src := range s.Sources() {
		fmt.Fprintf(&b, "📘 Group %d: %d messages\n", src, s.Counts[src])
	}
	fmt.Fprintf(&b, "\nTotal: %d", s.Total())
	return b.String()
}

// FormatSenders renders sender activity with times in loc.
func FormatSenders(records []domain.SenderActivityRecord, loc *time.Location) string {
	if len(records) == 0 {
		return "😶 No recent sender activity."
	}
	if loc == nil {
		loc = time.UTC
	}
	blocks := make([]string, 0, len(records))
	for _, r := range records {
		name := r.DisplayName
		if name == "" {
			name = "unknown"
		}
		blocks = append(blocks, fmt.Sprintf("👤 %s (%d) in %d\n🕒 %s\n✏️ %s",
			name, r.SenderID, r.SourceID, r.RecordedAt.In(loc).Format(timeLayout), r.Snippet))
	}
	return strings.Join(blocks, "\n\n")
}

// Greeting returns the /start reply for the local time t.
func Greeting(t time.Time) string {
	var timeEmoji, greeting string
	switch h := t.Hour(); {
	case h < 12:
		timeEmoji, greeting = "☀️", "Good morning"
	case h < 17:
		timeEmoji, greeting = "🌤️", "Good afternoon"
	case h < 21:
		timeEmoji, greeting = "🌙", "Good evening"
	default:
		timeEmoji, greeting = "🌌", "Good night"
	}

	dayEmoji := "📚"
	switch t.Weekday() {
	case time.Monday:
		dayEmoji = "✨"
	case time.Friday:
		dayEmoji = "🎉"
	case time.Saturday:
		dayEmoji = "😎"
	case time.Sunday:
		dayEmoji = "🧘‍♀️"
	}
	return fmt.Sprintf("%s %s, teacher!\n\nI'm the Homework Forwarder Bot. %s", timeEmoji, greeting, dayEmoji)
}

// Status returns the /status reply.
func Status(t time.Time, routes int) string {
	return fmt.Sprintf("✅ Bot is online!\n\n⏰ Time: %s\n🧭 Mapped groups: %d", t.Format(timeLayout), routes)
}

// Help returns the /help reply for admins or regular users.
func Help(isAdmin bool) string {
	if isAdmin {
		return "🛠️ *Admin Commands:*\n" +
			"/reload\\_config - Reload routing config\n" +
			"/weekly\\_summary - Show homework log summary\n" +
			"/clear\\_homework\\_log - Clear the forwarded homework log\n" +
			"/list\\_senders - View recent sender activity\n" +
			"/clear\\_senders - Clear sender activity\n" +
			"/id - Get chat/user ID info"
	}
	return "🧾 *User Help:*\n" +
		"/start - Greet the bot\n" +
		"/status - Check bot status\n" +
		"/id - Get your ID\n" +
		"/help - Show this message"
}
