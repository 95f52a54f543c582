package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"hwbot/internal/domain"
)

// Blob is a downloaded media payload.
type Blob struct {
	Data     []byte
	Name     string // file name including extension, e.g. "voice.ogg"
	MimeType string
}

// Fetcher resolves a payload reference into bytes.
type Fetcher interface {
	Fetch(ctx context.Context, payloadRef string) (*Blob, error)
}

// ImageRecognizer reads printed or handwritten text from an image.
type ImageRecognizer interface {
	Name() string
	RecognizeImage(ctx context.Context, image *Blob) (string, error)
}

// Transcriber converts speech in an audio or video file into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, media io.Reader, filename string) (string, error)
}

var errNoRecognizer = errors.New("no recognizer configured")

// Extractor implements domain.ImageTextExtractor and domain.MediaTextExtractor
// on top of a Fetcher and the configured recognizers.
type Extractor struct {
	fetcher     Fetcher
	ocr         ImageRecognizer
	transcriber Transcriber
	timeout     time.Duration
	logger      *slog.Logger
}

// Config configures an Extractor. OCR and Transcriber may be nil; the
// matching content kinds then always fail extraction.
type Config struct {
	Fetcher     Fetcher
	OCR         ImageRecognizer
	Transcriber Transcriber
	Timeout     time.Duration
	Logger      *slog.Logger
}

func New(cfg Config) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Extractor{
		fetcher:     cfg.Fetcher,
		ocr:         cfg.OCR,
		transcriber: cfg.Transcriber,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}
}

// ExtractImageText downloads the image and runs OCR on it.
func (e *Extractor) ExtractImageText(ctx context.Context, payloadRef string) domain.ExtractionResult {
	return Guard(ctx, e.timeout, domain.KindImage, e.logger, func(ctx context.Context) (string, error) {
		if e.ocr == nil {
			return "", errNoRecognizer
		}
		blob, err := e.fetch(ctx, payloadRef)
		if err != nil {
			return "", err
		}
		text, err := e.ocr.RecognizeImage(ctx, blob)
		if err != nil {
			return "", fmt.Errorf("%s: %w", e.ocr.Name(), err)
		}
		e.logger.Debug("image text extracted", "recognizer", e.ocr.Name(), "text_len", len(text))
		return text, nil
	})
}

// ExtractMediaText downloads the audio or video file and transcribes it.
func (e *Extractor) ExtractMediaText(ctx context.Context, payloadRef string, kind domain.ContentKind) domain.ExtractionResult {
	return Guard(ctx, e.timeout, kind, e.logger, func(ctx context.Context) (string, error) {
		if kind != domain.KindAudio && kind != domain.KindVideo {
			return "", fmt.Errorf("cannot transcribe %s content", kind)
		}
		if e.transcriber == nil {
			return "", errNoRecognizer
		}
		blob, err := e.fetch(ctx, payloadRef)
		if err != nil {
			return "", err
		}
		name := blob.Name
		if name == "" {
			name = defaultFileName(kind)
		}
		text, err := e.transcriber.Transcribe(ctx, bytes.NewReader(blob.Data), name)
		if err != nil {
			return "", fmt.Errorf("%s: %w", e.transcriber.Name(), err)
		}
		e.logger.Debug("media transcribed", "recognizer", e.transcriber.Name(), "kind", kind, "text_len", len(text))
		return text, nil
	})
}

func (e *Extractor) fetch(ctx context.Context, payloadRef string) (*Blob, error) {
	if e.fetcher == nil {
		return nil, errors.New("no payload fetcher configured")
	}
	blob, err := e.fetcher.Fetch(ctx, payloadRef)
	if err != nil {
		return nil, fmt.Errorf("fetch payload: %w", err)
	}
	if blob == nil || len(blob.Data) == 0 {
		return nil, errors.New("fetch payload: empty file")
	}
	return blob, nil
}

func defaultFileName(kind domain.ContentKind) string {
	if kind == domain.KindVideo {
		return "video.mp4"
	}
	return "voice.ogg"
}
