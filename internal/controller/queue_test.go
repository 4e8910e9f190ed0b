package controller

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	in := []Message{Trigger{Source: SourceManual}, Poll{}, Reload{Change: ChangeModified}, Trigger{Source: SourceWebhook}}
	for _, msg := range in {
		if err := q.Send(msg); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if q.Len() != len(in) {
		t.Fatalf("expected len %d, got %d", len(in), q.Len())
	}
	for i, want := range in {
		got, err := q.Receive(context.Background())
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("message %d: expected %#v, got %#v", i, want, got)
		}
	}
}

func TestQueueReceiveWaitsForSend(t *testing.T) {
	q := NewQueue()
	got := make(chan Message, 1)
	go func() {
		msg, err := q.Receive(context.Background())
		if err != nil {
			t.Errorf("receive: %v", err)
		}
		got <- msg
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Send(Poll{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case msg := <-got:
		if _, ok := msg.(Poll); !ok {
			t.Fatalf("expected Poll, got %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("receive did not wake up")
	}
}

func TestQueueReceiveHonoursContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue()
	if err := q.Send(Poll{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	q.Close()
	q.Close()

	if err := q.Send(Poll{}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed on send, got %v", err)
	}
	if _, err := q.Receive(context.Background()); err != nil {
		t.Fatalf("expected queued message after close, got %v", err)
	}
	if _, err := q.Receive(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed once drained, got %v", err)
	}
}

func TestQueueCloseWakesReceiver(t *testing.T) {
	q := NewQueue()
	errs := make(chan error, 1)
	go func() {
		_, err := q.Receive(context.Background())
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-errs:
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("close did not wake receiver")
	}
}

func TestQueueRejectsNil(t *testing.T) {
	if err := NewQueue().Send(nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
}
