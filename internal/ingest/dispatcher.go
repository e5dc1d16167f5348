package ingest

import (
	"context"
	"log/slog"
	"sync"

	"wamsg/internal/domain"
)

type Handler func(ctx context.Context, ev domain.Event)

// Dispatcher decouples the webhook response from event processing: the HTTP
// handler enqueues the parsed event and returns, a bounded worker pool does
// the actual work. Events are handled independently; concurrent redelivery
// of the same message id stays safe because the store insert is
// dedup-on-conflict, not lock-based.
type Dispatcher struct {
	jobs    chan domain.Event
	handler Handler
	workers int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(workers, buffer int, handler Handler) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		jobs:    make(chan domain.Event, buffer),
		handler: handler,
		workers: workers,
	}
}

// Start spins up the worker pool. Workers drain whatever is buffered after
// Stop; ctx bounds the handling of each individual event.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.jobs {
				d.handler(ctx, ev)
			}
		}()
	}
}

// Enqueue hands an event to the pool without blocking. A full buffer
// rejects the event; the caller still holds it and decides where it lands.
func (d *Dispatcher) Enqueue(ev domain.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.jobs <- ev:
		return true
	default:
		slog.Error("dispatch buffer full, event rejected", "event", ev.Type)
		return false
	}
}

// Stop closes intake and waits for buffered events to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}
