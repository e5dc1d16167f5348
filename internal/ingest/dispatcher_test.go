package ingest

import (
	"context"
	"sync"
	"testing"

	"wamsg/internal/domain"
)

func TestDispatcherProcessesEnqueued(t *testing.T) {
	var mu sync.Mutex
	var seen []domain.EventType

	d := NewDispatcher(2, 16, func(ctx context.Context, ev domain.Event) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
	})
	d.Start(context.Background())

	for i := 0; i < 10; i++ {
		if !d.Enqueue(domain.Event{Type: domain.EventMessageUpsert}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 10 {
		t.Fatalf("expected 10 handled events after Stop drained, got %d", len(seen))
	}
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	d := NewDispatcher(1, 4, func(ctx context.Context, ev domain.Event) {})
	d.Start(context.Background())
	d.Stop()

	if d.Enqueue(domain.Event{Type: domain.EventCallReceived}) {
		t.Fatalf("enqueue after Stop must be rejected")
	}
}

func TestDispatcherRejectsWhenFull(t *testing.T) {
	block := make(chan struct{})
	d := NewDispatcher(1, 1, func(ctx context.Context, ev domain.Event) {
		<-block
	})
	d.Start(context.Background())

	// first event occupies the worker, second fills the buffer
	d.Enqueue(domain.Event{Type: domain.EventMessageUpsert})
	d.Enqueue(domain.Event{Type: domain.EventMessageUpsert})

	rejected := false
	for i := 0; i < 8; i++ {
		if !d.Enqueue(domain.Event{Type: domain.EventMessageUpsert}) {
			rejected = true
			break
		}
	}
	close(block)
	d.Stop()

	if !rejected {
		t.Fatalf("expected a rejection once the buffer filled")
	}
}
