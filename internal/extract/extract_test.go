package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hwbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- fakes ---

type fakeFetcher struct {
	blob *Blob
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) (*Blob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.blob, nil
}

type fakeOCR struct {
	text  string
	err   error
	delay time.Duration
	panic bool
}

func (f *fakeOCR) Name() string { return "fake-ocr" }

func (f *fakeOCR) RecognizeImage(ctx context.Context, image *Blob) (string, error) {
	if f.panic {
		panic("tesseract exploded")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.text, f.err
}

type fakeTranscriber struct {
	name  string
	text  string
	err   error
	calls atomic.Int32
	got   string
}

func (f *fakeTranscriber) Name() string { return f.name }

func (f *fakeTranscriber) Transcribe(ctx context.Context, media io.Reader, filename string) (string, error) {
	f.calls.Add(1)
	data, _ := io.ReadAll(media)
	f.got = string(data)
	return f.text, f.err
}

// --- Guard ---

func TestGuard_Success(t *testing.T) {
	res := Guard(context.Background(), time.Second, domain.KindImage, testLogger(), func(ctx context.Context) (string, error) {
		return "  page 4  ", nil
	})
	if !res.Success || res.Text != "page 4" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGuard_ErrorBecomesFailure(t *testing.T) {
	res := Guard(context.Background(), time.Second, domain.KindAudio, testLogger(), func(ctx context.Context) (string, error) {
		return "partial", errors.New("boom")
	})
	if res.Success || res.Text != "" {
		t.Fatalf("expected failed result, got %+v", res)
	}
}

func TestGuard_PanicBecomesFailure(t *testing.T) {
	res := Guard(context.Background(), time.Second, domain.KindImage, testLogger(), func(ctx context.Context) (string, error) {
		panic("bad image")
	})
	if res.Success {
		t.Fatal("expected failure after panic")
	}
}

func TestGuard_TimeoutEvenIfRecognizerIgnoresContext(t *testing.T) {
	start := time.Now()
	res := Guard(context.Background(), 50*time.Millisecond, domain.KindVideo, testLogger(), func(ctx context.Context) (string, error) {
		time.Sleep(500 * time.Millisecond)
		return "too late", nil
	})
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("guard did not return at deadline, took %v", elapsed)
	}
}

// --- Extractor ---

func TestExtractImageText_Success(t *testing.T) {
	e := New(Config{
		Fetcher: &fakeFetcher{blob: &Blob{Data: []byte("png"), Name: "photo.jpg"}},
		OCR:     &fakeOCR{text: "Worksheet page 7"},
		Timeout: time.Second,
		Logger:  testLogger(),
	})
	res := e.ExtractImageText(context.Background(), "file-1")
	if !res.Success || res.Text != "Worksheet page 7" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExtractImageText_Failures(t *testing.T) {
	cases := map[string]Config{
		"no ocr":        {Fetcher: &fakeFetcher{blob: &Blob{Data: []byte("x")}}},
		"fetch error":   {Fetcher: &fakeFetcher{err: errors.New("404")}, OCR: &fakeOCR{text: "x"}},
		"empty file":    {Fetcher: &fakeFetcher{blob: &Blob{}}, OCR: &fakeOCR{text: "x"}},
		"no fetcher":    {OCR: &fakeOCR{text: "x"}},
		"ocr error":     {Fetcher: &fakeFetcher{blob: &Blob{Data: []byte("x")}}, OCR: &fakeOCR{err: errors.New("unreadable")}},
		"ocr panic":     {Fetcher: &fakeFetcher{blob: &Blob{Data: []byte("x")}}, OCR: &fakeOCR{panic: true}},
		"ocr too slow":  {Fetcher: &fakeFetcher{blob: &Blob{Data: []byte("x")}}, OCR: &fakeOCR{text: "x", delay: 300 * time.Millisecond}, Timeout: 30 * time.Millisecond},
	}
	for name, cfg := range cases {
		cfg.Logger = testLogger()
		if cfg.Timeout == 0 {
			cfg.Timeout = time.Second
		}
		res := New(cfg).ExtractImageText(context.Background(), "ref")
		if res.Success || res.Text != "" {
			t.Errorf("%s: expected failure, got %+v", name, res)
		}
	}
}

func TestExtractMediaText_DefaultFileName(t *testing.T) {
	tr := &fakeTranscriber{name: "t", text: "read chapter 3"}
	var gotName string
	e := New(Config{
		Fetcher:     &fakeFetcher{blob: &Blob{Data: []byte("audio")}},
		Transcriber: transcriberFunc(func(ctx context.Context, r io.Reader, name string) (string, error) {
			gotName = name
			return tr.Transcribe(ctx, r, name)
		}),
		Logger: testLogger(),
	})

	res := e.ExtractMediaText(context.Background(), "ref", domain.KindVideo)
	if !res.Success || res.Text != "read chapter 3" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotName != "video.mp4" {
		t.Fatalf("expected default video file name, got %q", gotName)
	}
}

func TestExtractMediaText_RejectsImageKind(t *testing.T) {
	e := New(Config{
		Fetcher:     &fakeFetcher{blob: &Blob{Data: []byte("x")}},
		Transcriber: &fakeTranscriber{name: "t", text: "x"},
		Logger:      testLogger(),
	})
	if res := e.ExtractMediaText(context.Background(), "ref", domain.KindImage); res.Success {
		t.Fatal("image kind should not be transcribed")
	}
}

type transcriberFunc func(ctx context.Context, r io.Reader, name string) (string, error)

func (f transcriberFunc) Name() string { return "func" }
func (f transcriberFunc) Transcribe(ctx context.Context, r io.Reader, name string) (string, error) {
	return f(ctx, r, name)
}

// --- FailoverTranscriber ---

func TestFailover_FallsBackOnError(t *testing.T) {
	primary := &fakeTranscriber{name: "primary", err: errors.New("quota")}
	secondary := &fakeTranscriber{name: "secondary", text: "submit homework"}
	ft := NewFailoverTranscriber([]Transcriber{primary, secondary}, testLogger())

	text, err := ft.Transcribe(context.Background(), strings.NewReader("ogg-bytes"), "voice.ogg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "submit homework" {
		t.Fatalf("expected fallback text, got %q", text)
	}
	if secondary.got != "ogg-bytes" {
		t.Fatalf("fallback did not receive full payload: %q", secondary.got)
	}
}

func TestFailover_AllFail(t *testing.T) {
	ft := NewFailoverTranscriber([]Transcriber{
		&fakeTranscriber{name: "a", err: errors.New("fail 1")},
		&fakeTranscriber{name: "b", err: errors.New("fail 2")},
	}, testLogger())
	_, err := ft.Transcribe(context.Background(), strings.NewReader("x"), "a.ogg")
	if err == nil || !strings.Contains(err.Error(), "fail 2") {
		t.Fatalf("expected last error to be wrapped, got %v", err)
	}
}

func TestFailover_StopsAfterSuccess(t *testing.T) {
	first := &fakeTranscriber{name: "first", text: "ok"}
	second := &fakeTranscriber{name: "second", text: "unused"}
	ft := NewFailoverTranscriber([]Transcriber{first, second}, testLogger())
	if _, err := ft.Transcribe(context.Background(), strings.NewReader("x"), "a.ogg"); err != nil {
		t.Fatal(err)
	}
	if second.calls.Load() != 0 {
		t.Fatal("second transcriber should not be called")
	}
	if ft.Name() != "failover(first→second)" {
		t.Fatalf("unexpected name %q", ft.Name())
	}
}

// --- OpenAI-compatible recognizers against a fake API ---

func TestWhisperTranscriber_UploadsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("model") != "whisper-1" {
			http.Error(w, "bad model", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"text": "complete exercise four"})
	}))
	defer srv.Close()

	w := NewWhisperTranscriber(WhisperConfig{APIBase: srv.URL, APIKey: "k", Model: "whisper-1", Logger: testLogger()})
	text, err := w.Transcribe(context.Background(), strings.NewReader("audio"), "voice.ogg")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "complete exercise four" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestWhisperTranscriber_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWhisperTranscriber(WhisperConfig{APIBase: srv.URL, Logger: testLogger()})
	if _, err := w.Transcribe(context.Background(), strings.NewReader("audio"), "voice.ogg"); err == nil {
		t.Fatal("expected error")
	}
}

func TestVisionOCR_ReturnsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		body, _ := json.Marshal(req)
		if !strings.Contains(string(body), "data:image/png;base64,") {
			http.Error(w, "missing image", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "Page 12 exercise 3"}},
			},
		})
	}))
	defer srv.Close()

	v := NewVisionOCR(VisionConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	text, err := v.RecognizeImage(context.Background(), &Blob{Data: []byte("x"), MimeType: "image/png"})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "Page 12 exercise 3" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestImageMIME(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	tests := []struct {
		name string
		blob Blob
		want string
	}{
		{"declared image type", Blob{Data: []byte("x"), MimeType: "image/png"}, "image/png"},
		{"octet stream sniffed", Blob{Data: jpeg, MimeType: "application/octet-stream"}, "image/jpeg"},
		{"empty sniffed", Blob{Data: jpeg}, "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := imageMIME(&tt.blob); got != tt.want {
				t.Errorf("imageMIME = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVisionOCR_SniffsNonImageContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "data:image/jpeg;base64,") {
			http.Error(w, "bad image type", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "Read chapter 4"}},
			},
		})
	}))
	defer srv.Close()

	v := NewVisionOCR(VisionConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	blob := &Blob{Data: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, MimeType: "application/octet-stream"}
	text, err := v.RecognizeImage(context.Background(), blob)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "Read chapter 4" {
		t.Fatalf("unexpected text %q", text)
	}
}
