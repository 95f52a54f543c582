// Package triage runs each inbound message through route lookup, junk
// filtering, text extraction, homework classification, fan-out and logging.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hwbot/internal/domain"
	"hwbot/internal/metrics"
)

// State is a step of the per-message state machine.
type State string

const (
	StateReceived        State = "received"
	StateDroppedUnrouted State = "dropped_unrouted"
	StateDroppedInvalid  State = "dropped_invalid"
	StateDroppedJunk     State = "dropped_junk"
	StateExtracting      State = "extracting"
	StateExtracted       State = "extracted"
	StateNotMatched      State = "not_matched"
	StateForwarding      State = "forwarding"
	StateForwarded       State = "forwarded"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateDroppedUnrouted, StateDroppedInvalid, StateDroppedJunk, StateNotMatched, StateForwarded:
		return true
	}
	return false
}

// Result describes how one message left the pipeline.
type Result struct {
	MessageID      string
	Final          State
	Trail          []State // every state visited, Received first
	Classification domain.ClassificationResult
	Extraction     *domain.ExtractionResult // nil for text messages
	Outcomes       []domain.ForwardOutcome  // indexed like the source's destinations
}

func (r *Result) enter(s State) {
	r.Trail = append(r.Trail, s)
	r.Final = s
}

// RouteLookup resolves a source to its destinations.
type RouteLookup interface {
	Lookup(sourceID int64) ([]int64, bool)
}

// Classifier decides junk on literal text and homework on candidate text.
type Classifier interface {
	IsJunk(text string) bool
	Classify(literal, candidate string) domain.ClassificationResult
}

// FanOut delivers a message to every destination and reports each outcome.
type FanOut interface {
	Deliver(ctx context.Context, msg domain.InboundMessage, destinations []int64) []domain.ForwardOutcome
}

// Pipeline processes inbound messages. It is safe for concurrent use;
// it holds no per-message state.
type Pipeline struct {
	routes     RouteLookup
	classifier Classifier
	images     domain.ImageTextExtractor
	media      domain.MediaTextExtractor
	fanout     FanOut
	store      domain.ActivityStore
	events     domain.EventPublisher
	now        func() time.Time
	logger     *slog.Logger
}

// Config holds the collaborators of a Pipeline. Events and Now are optional.
type Config struct {
	Routes     RouteLookup
	Classifier Classifier
	Images     domain.ImageTextExtractor
	Media      domain.MediaTextExtractor
	FanOut     FanOut
	Store      domain.ActivityStore
	Events     domain.EventPublisher
	Now        func() time.Time
	Logger     *slog.Logger
}

func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Routes == nil:
		return nil, fmt.Errorf("triage: route lookup is required")
	case cfg.Classifier == nil:
		return nil, fmt.Errorf("triage: classifier is required")
	case cfg.FanOut == nil:
		return nil, fmt.Errorf("triage: fan-out engine is required")
	case cfg.Store == nil:
		return nil, fmt.Errorf("triage: activity store is required")
	case cfg.Logger == nil:
		return nil, fmt.Errorf("triage: logger is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		routes:     cfg.Routes,
		classifier: cfg.Classifier,
		images:     cfg.Images,
		media:      cfg.Media,
		fanout:     cfg.FanOut,
		store:      cfg.Store,
		events:     cfg.Events,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}, nil
}

// Process runs msg to a terminal state. It never returns an error and never
// panics: collaborator failures become dropped or not-matched results.
func (p *Pipeline) Process(ctx context.Context, msg domain.InboundMessage) (res Result) {
	metrics.MessagesReceived.Inc()
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	res = Result{MessageID: msg.ID}
	res.enter(StateReceived)

	log := p.logger.With("message_id", msg.ID, "source_id", msg.SourceID, "kind", msg.Kind)
	defer func() {
		if r := recover(); r != nil {
			log.Error("triage panic recovered", "state", res.Final, "panic", r)
			if !res.Final.Terminal() {
				res.enter(StateNotMatched)
			}
		}
		log.Debug("triage finished", "state", res.Final)
	}()

	dests, ok := p.routes.Lookup(msg.SourceID)
	if !ok || len(dests) == 0 {
		metrics.DroppedUnrouted.Inc()
		res.enter(StateDroppedUnrouted)
		return res
	}

	if err := msg.Validate(); err != nil {
		log.Warn("dropping malformed message", "err", err)
		res.enter(StateDroppedInvalid)
		return res
	}

	literal := msg.LiteralText()
	if p.classifier.IsJunk(literal) {
		metrics.DroppedJunk.Inc()
		res.Classification = domain.ClassificationResult{IsJunk: true}
		res.enter(StateDroppedJunk)
		log.Info("junk message dropped")
		return res
	}

	candidate := msg.Text
	if msg.Kind.IsMedia() {
		res.enter(StateExtracting)
		ext := p.extract(ctx, msg, log)
		res.Extraction = &ext
		res.enter(StateExtracted)
		if !ext.Success {
			log.Info("no text extracted, treating as non-homework")
		}
		candidate = ext.Text
	}

	res.Classification = p.classifier.Classify(literal, candidate)
	if !res.Classification.IsHomework {
		metrics.NotMatched.Inc()
		res.enter(StateNotMatched)
		return res
	}
	metrics.HomeworkMatched.Inc()

	res.enter(StateForwarding)
	res.Outcomes = p.deliver(ctx, msg, dests, log)

	// Logged only after every delivery attempt has finished.
	p.record(ctx, msg, res.Classification.MatchedText, log)
	p.publish(ctx, msg, res, log)

	res.enter(StateForwarded)
	log.Info("homework forwarded",
		"destinations", len(dests),
		"delivered", countDelivered(res.Outcomes),
	)
	return res
}

// extract dispatches to the recognizer for msg.Kind. A missing or panicking
// extractor yields a failed result.
func (p *Pipeline) extract(ctx context.Context, msg domain.InboundMessage, log *slog.Logger) (res domain.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("extractor panic recovered", "panic", r)
			res = domain.FailedExtraction()
		}
	}()

	switch msg.Kind {
	case domain.KindImage:
		if p.images == nil {
			return domain.FailedExtraction()
		}
		return p.images.ExtractImageText(ctx, msg.PayloadRef)
	case domain.KindAudio, domain.KindVideo:
		if p.media == nil {
			return domain.FailedExtraction()
		}
		return p.media.ExtractMediaText(ctx, msg.PayloadRef, msg.Kind)
	}
	return domain.FailedExtraction()
}

func (p *Pipeline) deliver(ctx context.Context, msg domain.InboundMessage, dests []int64, log *slog.Logger) (outcomes []domain.ForwardOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("fan-out panic recovered", "panic", r)
			outcomes = make([]domain.ForwardOutcome, len(dests))
			for i, d := range dests {
				outcomes[i] = domain.ForwardOutcome{DestinationID: d, Error: fmt.Sprintf("fan-out panic: %v", r)}
			}
		}
	}()
	return p.fanout.Deliver(ctx, msg, dests)
}

// record writes one sender activity record and one forwarded log entry.
// Store failures are logged and counted; they never change the result.
func (p *Pipeline) record(ctx context.Context, msg domain.InboundMessage, snippet string, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			metrics.StoreErrors.Inc()
			log.Error("activity store panic recovered", "panic", r)
		}
	}()

	now := p.now()
	if err := p.store.RecordSenderActivity(ctx, domain.SenderActivityRecord{
		SourceID:    msg.SourceID,
		SenderID:    msg.Sender.ID,
		DisplayName: msg.Sender.DisplayName,
		Snippet:     snippet,
		RecordedAt:  now,
	}); err != nil {
		metrics.StoreErrors.Inc()
		log.Error("failed to record sender activity", "err", err)
	}
	if err := p.store.AppendForwardedLog(ctx, domain.ForwardedLogEntry{
		SourceID:    msg.SourceID,
		Snippet:     snippet,
		ForwardedAt: now,
	}); err != nil {
		metrics.StoreErrors.Inc()
		log.Error("failed to append forwarded log", "err", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, msg domain.InboundMessage, res Result, log *slog.Logger) {
	if p.events == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("event publisher panic recovered", "panic", r)
		}
	}()
	err := p.events.PublishForwarded(ctx, domain.ForwardedEvent{
		MessageID: msg.ID,
		SourceID:  msg.SourceID,
		SenderID:  msg.Sender.ID,
		Kind:      msg.Kind,
		Snippet:   res.Classification.MatchedText,
		Outcomes:  res.Outcomes,
	})
	if err != nil {
		log.Warn("failed to publish forwarded event", "err", err)
	}
}

func countDelivered(outcomes []domain.ForwardOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Delivered {
			n++
		}
	}
	return n
}
