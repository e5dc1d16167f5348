package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"wamsg/internal/domain"
	"wamsg/internal/observability"
	"wamsg/internal/providers/wasender"
	"wamsg/internal/store"
	"wamsg/internal/util"
)

// Dispatcher is the async hand-off: Enqueue must not block, because the
// acknowledgment below has to go out regardless of processing capacity.
type Dispatcher interface {
	Enqueue(ev domain.Event) bool
}

// FailureLedger keeps events the dispatcher could not accept. The provider
// never redelivers after a 200, so the ledger is the only remaining copy.
type FailureLedger interface {
	InsertWebhookFailure(ctx context.Context, in store.WebhookFailure) error
}

type Webhook struct {
	Dispatch Dispatcher
	Failures FailureLedger

	// Secret enables HMAC verification of X-Webhook-Signature; empty skips it.
	Secret string

	mu          sync.Mutex
	requests    int64
	lastRequest time.Time
	eventCounts map[string]int64
}

type ackResponse struct {
	Received bool   `json:"received"`
	Event    string `json:"event"`
}

type healthResponse struct {
	Status    string      `json:"status"`
	Service   string      `json:"service"`
	Timestamp string      `json:"timestamp"`
	Stats     healthStats `json:"stats"`
}

type healthStats struct {
	TotalRequests   int64            `json:"totalRequests"`
	LastRequestTime string           `json:"lastRequestTime,omitempty"`
	EventCounts     map[string]int64 `json:"eventCounts"`
}

func (h *Webhook) Register(r *mux.Router) {
	r.HandleFunc("/api/whatsapp/webhook", h.handleEvent).Methods(http.MethodPost)
	r.HandleFunc("/api/whatsapp/webhook", h.handleProbe).Methods(http.MethodGet)
	r.HandleFunc("/api/whatsapp/webhook/health", h.handleProbe).Methods(http.MethodGet)
}

// handleEvent acknowledges the provider before processing. The provider
// retries aggressively on any non-200, so the only rejection happens while
// the payload itself is still unreadable: malformed JSON. Everything after
// the acknowledgment is terminal in the dispatcher.
func (h *Webhook) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if h.Secret != "" {
		provided := r.Header.Get("X-Webhook-Signature")
		if provided == "" || !wasender.VerifySignature(h.Secret, body, provided) {
			http.Error(w, ErrInvalidSignature, http.StatusUnauthorized)
			return
		}
	}

	var envelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	ev := domain.Event{Type: domain.Classify(envelope.Event), Data: envelope.Data}
	h.recordRequest(envelope.Event)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ackResponse{Received: true, Event: envelope.Event})

	// Response is flushed from the handler's point of view; processing
	// happens on the dispatcher pool.
	if h.Dispatch.Enqueue(ev) {
		return
	}
	h.recordUndispatched(ev)
}

// recordUndispatched writes an event the dispatcher rejected to the failure
// ledger so manual replay can still find it. Runs after the acknowledgment,
// on a fresh context: the request context may already be done.
func (h *Webhook) recordUndispatched(ev domain.Event) {
	if h.Failures == nil {
		return
	}
	err := h.Failures.InsertWebhookFailure(context.Background(), store.WebhookFailure{
		EventType:    string(ev.Type),
		Payload:      ev.Data,
		ErrorMessage: "dispatch queue full",
		CreatedAt:    util.NowUTC(),
	})
	if err != nil {
		slog.Error("could not record undispatched event", "event", ev.Type, "err", err)
		return
	}
	observability.WebhookFailures.WithLabelValues(string(ev.Type)).Inc()
}

func (h *Webhook) handleProbe(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	stats := healthStats{
		TotalRequests: h.requests,
		EventCounts:   make(map[string]int64, len(h.eventCounts)),
	}
	for k, v := range h.eventCounts {
		stats.EventCounts[k] = v
	}
	if !h.lastRequest.IsZero() {
		stats.LastRequestTime = h.lastRequest.Format(time.RFC3339)
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:    "healthy",
		Service:   "whatsapp-webhook",
		Timestamp: util.NowUTC().Format(time.RFC3339),
		Stats:     stats,
	})
}

func (h *Webhook) recordRequest(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests++
	h.lastRequest = util.NowUTC()
	if h.eventCounts == nil {
		h.eventCounts = make(map[string]int64)
	}
	h.eventCounts[event]++
}
