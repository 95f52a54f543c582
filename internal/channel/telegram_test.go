package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hwbot/internal/activity"
	"hwbot/internal/admin"
	"hwbot/internal/domain"
	"hwbot/internal/route"
)

const testToken = "123:abc"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type apiCall struct {
	method string
	form   url.Values
}

// fakeAPI is a minimal Telegram Bot API server.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
	files map[string][]byte // file path -> content
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/bot"+testToken+"/") {
		data, ok := f.files[strings.TrimPrefix(r.URL.Path, "/file/bot"+testToken+"/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/ogg")
		w.Write(data)
		return
	}

	method := strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/")
	r.ParseForm()
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, form: r.Form})
	f.mu.Unlock()

	var result string
	switch method {
	case "getMe":
		result = `{"id":1,"is_bot":true,"first_name":"hw","username":"hwbot"}`
	case "copyMessage":
		if r.Form.Get("chat_id") == "-999" {
			fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked"}`)
			return
		}
		result = `{"message_id":77}`
	case "sendMessage":
		result = fmt.Sprintf(`{"message_id":1,"date":0,"chat":{"id":%s,"type":"private"}}`, r.Form.Get("chat_id"))
	case "getFile":
		id := r.Form.Get("file_id")
		result = fmt.Sprintf(`{"file_id":%q,"file_unique_id":"u","file_size":%d,"file_path":"voice/%s.oga"}`,
			id, len(f.files["voice/"+id+".oga"]), id)
	default:
		result = `true`
	}
	fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
}

func (f *fakeAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

type recordingQueue struct {
	mu   sync.Mutex
	msgs []domain.InboundMessage
}

func (q *recordingQueue) Publish(ctx context.Context, msg domain.InboundMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

func newTestTelegram(t *testing.T, maxFileBytes int64) (*Telegram, *fakeAPI, *activity.MemoryStore) {
	t.Helper()
	api := &fakeAPI{files: map[string][]byte{"voice/f1.oga": []byte("OggS-data")}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store := activity.NewMemoryStore(0)
	svc := admin.NewService(admin.Config{
		Router:       route.NewRouter(route.Empty(), testLogger()),
		Store:        store,
		RoutesSource: func() (string, error) { return "-1001:-2001+-2002", nil },
		Logger:       testLogger(),
	})

	tg, err := NewTelegram(TelegramConfig{
		Token:        testToken,
		AdminIDs:     []int64{42},
		MaxFileBytes: maxFileBytes,
		Admin:        svc,
		APIEndpoint:  srv.URL + "/bot%s/%s",
		FileEndpoint: srv.URL + "/file/bot%s/%s",
		HTTPClient:   srv.Client(),
		Logger:       testLogger(),
	})
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	return tg, api, store
}

func command(text string, from int64) *tgbotapi.Message {
	name := strings.Fields(text)[0]
	return &tgbotapi.Message{
		MessageID: 1,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: from},
		From:      &tgbotapi.User{ID: from, FirstName: "Dorji"},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func TestToInbound_Kinds(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	base := func() *tgbotapi.Message {
		return &tgbotapi.Message{
			MessageID: 9,
			Chat:      &tgbotapi.Chat{ID: -1001},
			From:      &tgbotapi.User{ID: 7, FirstName: "Pema", LastName: "Wangmo"},
		}
	}

	text := base()
	text.Text = "Homework: page 5"
	photo := base()
	photo.Caption = "math"
	photo.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}
	voice := base()
	voice.Voice = &tgbotapi.Voice{FileID: "v1"}
	audio := base()
	audio.Audio = &tgbotapi.Audio{FileID: "a1", FileName: "lesson.mp3"}
	video := base()
	video.Video = &tgbotapi.Video{FileID: "vid"}
	note := base()
	note.VideoNote = &tgbotapi.VideoNote{FileID: "round"}
	imageDoc := base()
	imageDoc.Document = &tgbotapi.Document{FileID: "d1", FileName: "scan.png", MimeType: "image/png"}

	tests := []struct {
		name string
		msg  *tgbotapi.Message
		kind domain.ContentKind
		ref  string
	}{
		{"text", text, domain.KindText, ""},
		{"photo uses largest size", photo, domain.KindImage, "large"},
		{"voice", voice, domain.KindAudio, "v1"},
		{"audio", audio, domain.KindAudio, "a1"},
		{"video", video, domain.KindVideo, "vid"},
		{"video note", note, domain.KindVideo, "round"},
		{"image document", imageDoc, domain.KindImage, "d1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := toInbound(tt.msg, now)
			if !ok {
				t.Fatal("expected message to convert")
			}
			if in.Kind != tt.kind || in.PayloadRef != tt.ref {
				t.Errorf("got kind=%s ref=%q, want %s %q", in.Kind, in.PayloadRef, tt.kind, tt.ref)
			}
			if err := in.Validate(); err != nil {
				t.Errorf("converted message invalid: %v", err)
			}
			if in.SourceID != -1001 || in.MessageID != 9 || in.ID == "" {
				t.Errorf("identity not carried: %+v", in)
			}
			if in.Sender.DisplayName != "Pema Wangmo" {
				t.Errorf("sender name = %q", in.Sender.DisplayName)
			}
			if !in.ReceivedAt.Equal(now) {
				t.Errorf("ReceivedAt = %v, want %v", in.ReceivedAt, now)
			}
		})
	}

	in, _ := toInbound(photo, now)
	if in.Caption != "math" {
		t.Errorf("caption = %q", in.Caption)
	}
}

func TestToInbound_Unsupported(t *testing.T) {
	pdf := &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 1},
		Document: &tgbotapi.Document{FileID: "d", MimeType: "application/pdf"},
	}
	if _, ok := toInbound(pdf, time.Now()); ok {
		t.Error("pdf documents should be ignored")
	}
	sticker := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Sticker: &tgbotapi.Sticker{FileID: "s"}}
	if _, ok := toInbound(sticker, time.Now()); ok {
		t.Error("stickers should be ignored")
	}
}

func TestToInbound_UsesMessageDate(t *testing.T) {
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "hi", Date: 1700000000}
	in, _ := toInbound(msg, time.Now())
	if in.ReceivedAt.Unix() != 1700000000 {
		t.Errorf("ReceivedAt = %v", in.ReceivedAt)
	}
	if in.Sender != (domain.Sender{}) {
		t.Errorf("missing sender should be zero, got %+v", in.Sender)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text = %q", got)
	}
	if got := splitMessage("", 10); len(got) != 0 {
		t.Errorf("empty text = %q", got)
	}

	text := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitMessage(text, 10)
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) {
		t.Errorf("newline split = %q", got)
	}

	multi := strings.Repeat("é", 10) // 2 bytes each
	for _, chunk := range splitMessage(multi, 5) {
		if len(chunk) > 5 {
			t.Errorf("chunk too long: %q", chunk)
		}
		for _, r := range chunk {
			if r != 'é' {
				t.Fatalf("chunk split a rune: %q", chunk)
			}
		}
	}
	if strings.Join(splitMessage(multi, 5), "") != multi {
		t.Error("chunks do not reassemble")
	}
}

func TestParseDays(t *testing.T) {
	tests := map[string]int{"": 7, "14": 14, " 3 ": 3, "0": 7, "-2": 7, "abc": 7, "1000": 7}
	for in, want := range tests {
		if got := parseDays(in, 7); got != want {
			t.Errorf("parseDays(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestDeliver_CopiesMessage(t *testing.T) {
	tg, api, _ := newTestTelegram(t, 0)
	msg := domain.InboundMessage{SourceID: -1001, MessageID: 55}

	if err := tg.Deliver(context.Background(), msg, -2001); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	calls := api.callsTo("copyMessage")
	if len(calls) != 1 {
		t.Fatalf("copyMessage calls = %d", len(calls))
	}
	f := calls[0].form
	if f.Get("chat_id") != "-2001" || f.Get("from_chat_id") != "-1001" || f.Get("message_id") != "55" {
		t.Errorf("copyMessage params = %v", f)
	}

	if err := tg.Deliver(context.Background(), msg, -999); err == nil {
		t.Error("expected error for rejected destination")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tg.Deliver(ctx, msg, -2002); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFetch(t *testing.T) {
	tg, _, _ := newTestTelegram(t, 1024)
	blob, err := tg.Fetch(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(blob.Data) != "OggS-data" || blob.Name != "f1.oga" || blob.MimeType != "audio/ogg" {
		t.Errorf("blob = %+v", blob)
	}

	if _, err := tg.Fetch(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFetch_SizeLimit(t *testing.T) {
	tg, _, _ := newTestTelegram(t, 4)
	if _, err := tg.Fetch(context.Background(), "f1"); err == nil {
		t.Error("expected size limit error")
	}
}

func TestHandleUpdate_PublishesMessages(t *testing.T) {
	tg, api, _ := newTestTelegram(t, 0)
	q := &recordingQueue{}
	tg.queue = q

	tg.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 3, Chat: &tgbotapi.Chat{ID: -1001}, Text: "homework page 3",
	}})
	tg.handleUpdate(context.Background(), tgbotapi.Update{EditedMessage: &tgbotapi.Message{
		MessageID: 3, Chat: &tgbotapi.Chat{ID: -1001}, Text: "edited",
	}})

	if len(q.msgs) != 1 || q.msgs[0].Text != "homework page 3" {
		t.Errorf("published = %+v", q.msgs)
	}
	if len(api.callsTo("sendMessage")) != 0 {
		t.Error("plain messages must not be answered")
	}
}

func TestHandleUpdate_ForeignAndUnknownCommandsAreTriaged(t *testing.T) {
	tg, api, _ := newTestTelegram(t, 0)
	q := &recordingQueue{}
	tg.queue = q
	ctx := context.Background()

	group := &tgbotapi.Chat{ID: -1001, Type: "group"}
	for _, text := range []string{"/homework complete page 5 worksheet", "/start@otherbot"} {
		msg := command(text, 5)
		msg.Chat = group
		tg.handleUpdate(ctx, tgbotapi.Update{Message: msg})
	}

	if len(q.msgs) != 2 {
		t.Fatalf("published = %d, want 2: %+v", len(q.msgs), q.msgs)
	}
	if q.msgs[0].Text != "/homework complete page 5 worksheet" || q.msgs[0].SourceID != -1001 {
		t.Errorf("first published = %+v", q.msgs[0])
	}
	if n := len(api.callsTo("sendMessage")); n != 0 {
		t.Errorf("bot replied %d times in the group", n)
	}
}

func TestHandleUpdate_OwnCommands(t *testing.T) {
	tg, api, _ := newTestTelegram(t, 0)
	q := &recordingQueue{}
	tg.queue = q
	ctx := context.Background()

	addressed := command("/status@hwbot", 5)
	addressed.Chat = &tgbotapi.Chat{ID: -1001, Type: "group"}
	tg.handleUpdate(ctx, tgbotapi.Update{Message: addressed})

	private := command("/nope", 5)
	private.Chat = &tgbotapi.Chat{ID: 5, Type: "private"}
	tg.handleUpdate(ctx, tgbotapi.Update{Message: private})

	if len(q.msgs) != 0 {
		t.Errorf("commands must not be triaged: %+v", q.msgs)
	}
	sent := api.callsTo("sendMessage")
	if len(sent) != 2 {
		t.Fatalf("replies = %d, want 2", len(sent))
	}
	if sent[0].form.Get("chat_id") != "-1001" {
		t.Errorf("status reply went to %q", sent[0].form.Get("chat_id"))
	}
	if !strings.Contains(sent[1].form.Get("text"), "Unknown command") {
		t.Errorf("private unknown reply = %q", sent[1].form.Get("text"))
	}
}

func TestAddressedTo(t *testing.T) {
	tests := []struct {
		cmd  string
		want bool
	}{
		{"start", true},
		{"start@hwbot", true},
		{"start@HWBot", true},
		{"start@otherbot", false},
	}
	for _, tt := range tests {
		if got := addressedTo(tt.cmd, "hwbot"); got != tt.want {
			t.Errorf("addressedTo(%q) = %v, want %v", tt.cmd, got, tt.want)
		}
	}
}

func TestHandleCommand_AdminOnly(t *testing.T) {
	tg, api, store := newTestTelegram(t, 0)
	ctx := context.Background()
	store.AppendForwardedLog(ctx, domain.ForwardedLogEntry{SourceID: -1001, Snippet: "hw", ForwardedAt: time.Now()})

	tg.handleCommand(ctx, command("/clear_homework_log", 5))
	sent := api.callsTo("sendMessage")
	if len(sent) != 1 || !strings.Contains(sent[0].form.Get("text"), "not authorized") {
		t.Fatalf("non-admin reply = %+v", sent)
	}
	if got, _ := store.Summarize(ctx, time.Hour, time.Now()); len(got) != 1 {
		t.Error("log must survive a refused clear")
	}

	tg.handleCommand(ctx, command("/clear_homework_log", 42))
	if got, _ := store.Summarize(ctx, time.Hour, time.Now()); len(got) != 0 {
		t.Errorf("log not cleared by admin: %v", got)
	}
}

func TestHandleCommand_ReloadConfig(t *testing.T) {
	tg, api, _ := newTestTelegram(t, 0)
	tg.handleCommand(context.Background(), command("/reload_config", 42))

	if n := tg.cfg.Admin.Routes().Len(); n != 1 {
		t.Errorf("routes after reload = %d, want 1", n)
	}
	sent := api.callsTo("sendMessage")
	if len(sent) != 1 || !strings.Contains(sent[0].form.Get("text"), "1 mapped groups") {
		t.Errorf("reload reply = %+v", sent)
	}
}

func TestHandleCommand_WeeklySummary(t *testing.T) {
	tg, api, store := newTestTelegram(t, 0)
	ctx := context.Background()
	store.AppendForwardedLog(ctx, domain.ForwardedLogEntry{SourceID: -1001, ForwardedAt: time.Now().Add(-time.Hour)})
	store.AppendForwardedLog(ctx, domain.ForwardedLogEntry{SourceID: -1001, ForwardedAt: time.Now().Add(-10 * 24 * time.Hour)})

	tg.handleCommand(ctx, command("/weekly_summary", 42))
	tg.handleCommand(ctx, command("/weekly_summary 14", 42))

	sent := api.callsTo("sendMessage")
	if len(sent) != 2 {
		t.Fatalf("replies = %d", len(sent))
	}
	if !strings.Contains(sent[0].form.Get("text"), "Group -1001: 1 messages") {
		t.Errorf("7-day summary = %q", sent[0].form.Get("text"))
	}
	if !strings.Contains(sent[1].form.Get("text"), "Group -1001: 2 messages") {
		t.Errorf("14-day summary = %q", sent[1].form.Get("text"))
	}
}

func TestHandleCommand_PublicCommands(t *testing.T) {
	tg, api, _ := newTestTelegram(t, 0)
	ctx := context.Background()
	for _, c := range []string{"/start", "/status", "/help", "/id", "/nope"} {
		tg.handleCommand(ctx, command(c, 5))
	}
	sent := api.callsTo("sendMessage")
	if len(sent) != 5 {
		t.Fatalf("replies = %d, want 5", len(sent))
	}
	if !strings.Contains(sent[3].form.Get("text"), "Your ID: 5") {
		t.Errorf("/id reply = %q", sent[3].form.Get("text"))
	}
	if !strings.Contains(sent[4].form.Get("text"), "Unknown command") {
		t.Errorf("unknown reply = %q", sent[4].form.Get("text"))
	}
}

func TestWebhookHandler(t *testing.T) {
	tg, _, _ := newTestTelegram(t, 0)
	h := tg.WebhookHandler()

	body := `{"update_id":1,"message":{"message_id":4,"date":1700000000,"chat":{"id":-1001,"type":"group"},"text":"homework"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram", strings.NewReader(body)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before Start: status = %d", rec.Code)
	}

	q := &recordingQueue{}
	tg.queue = q
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(q.msgs) != 1 || q.msgs[0].SourceID != -1001 {
		t.Errorf("published = %+v", q.msgs)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d", rec.Code)
	}
}

func TestNewTelegram_RequiresToken(t *testing.T) {
	if _, err := NewTelegram(TelegramConfig{Logger: testLogger()}); err == nil {
		t.Error("expected error without token")
	}
}
