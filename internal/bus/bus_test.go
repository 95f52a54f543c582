package bus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"hwbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := New(4, time.Second, testLogger())
	msg := domain.InboundMessage{ID: "m1", SourceID: 100, Kind: domain.KindText, Text: "do page 5"}

	if err := q.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}

	select {
	case got := <-q.Subscribe():
		if got.ID != "m1" {
			t.Errorf("got %q, want m1", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}
}

func TestQueue_FullDropsAfterWait(t *testing.T) {
	q := New(1, 50*time.Millisecond, testLogger())
	ctx := context.Background()

	if err := q.Publish(ctx, domain.InboundMessage{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	err := q.Publish(ctx, domain.InboundMessage{ID: "b"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("Publish returned before the wait elapsed")
	}
}

func TestQueue_FullDrainsDuringWait(t *testing.T) {
	q := New(1, time.Second, testLogger())
	ctx := context.Background()
	q.Publish(ctx, domain.InboundMessage{ID: "a"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-q.Subscribe()
	}()

	if err := q.Publish(ctx, domain.InboundMessage{ID: "b"}); err != nil {
		t.Fatalf("expected enqueue after drain, got %v", err)
	}
}

func TestQueue_ContextCancelled(t *testing.T) {
	q := New(1, time.Minute, testLogger())
	q.Publish(context.Background(), domain.InboundMessage{ID: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, domain.InboundMessage{ID: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestQueue_Close(t *testing.T) {
	q := New(2, time.Second, testLogger())
	q.Close()
	q.Close()

	if err := q.Publish(context.Background(), domain.InboundMessage{ID: "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, ok := <-q.Subscribe(); ok {
		t.Error("subscribe channel should be closed")
	}
}

func TestQueue_CloseReleasesWaitingPublisher(t *testing.T) {
	q := New(1, 10*time.Second, testLogger())
	ctx := context.Background()
	q.Publish(ctx, domain.InboundMessage{ID: "a"})

	errc := make(chan error, 1)
	go func() { errc <- q.Publish(ctx, domain.InboundMessage{ID: "b"}) }()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a waiting publisher")
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher still waiting after Close")
	}
}
