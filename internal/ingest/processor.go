// Package ingest classifies inbound provider events and persists them.
// The HTTP acknowledgment has already been flushed by the time anything
// here runs, so failures terminate in the log and the failure ledger,
// never in the response.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"wamsg/internal/domain"
	"wamsg/internal/observability"
	"wamsg/internal/phone"
	"wamsg/internal/store"
	"wamsg/internal/util"
)

// maxMessageText bounds stored message text.
const maxMessageText = 5000

type Store interface {
	InsertIncomingMessage(ctx context.Context, in store.IncomingMessage) (bool, error)
	ApplyStatusUpdate(ctx context.Context, in store.StatusUpdate) (bool, error)
	InsertReaction(ctx context.Context, in store.Reaction) error
	InsertCall(ctx context.Context, in store.Call) error
	InsertPollResult(ctx context.Context, in store.PollResult) error
	InsertWebhookFailure(ctx context.Context, in store.WebhookFailure) error
	InsertCommunication(ctx context.Context, in store.Communication) error
	FindCustomerByPhone(ctx context.Context, variants []string) (store.Customer, bool, error)
}

type Processor struct {
	Store Store
}

// Handle dispatches one classified event. Handler errors are terminal here:
// logged, counted, and written to the failure ledger on a best-effort basis.
func (p *Processor) Handle(ctx context.Context, ev domain.Event) {
	var err error
	switch ev.Type {
	case domain.EventMessageReceived, domain.EventMessageUpsert:
		err = p.handleMessage(ctx, ev.Data)
	case domain.EventMessageUpdate:
		err = p.handleStatus(ctx, ev.Data)
	case domain.EventMessageReaction:
		err = p.handleReaction(ctx, ev.Data)
	case domain.EventCallReceived:
		err = p.handleCall(ctx, ev.Data)
	case domain.EventPollResults:
		err = p.handlePoll(ctx, ev.Data)
	default:
		slog.Info("unhandled event type dropped", "event", ev.Type)
		observability.WebhookEvents.WithLabelValues(string(ev.Type), "dropped").Inc()
		return
	}

	if err == nil {
		observability.WebhookEvents.WithLabelValues(string(ev.Type), "ok").Inc()
		return
	}

	slog.Error("event processing failed", "event", ev.Type, "err", err)
	observability.WebhookEvents.WithLabelValues(string(ev.Type), "error").Inc()

	ledgerErr := p.Store.InsertWebhookFailure(ctx, store.WebhookFailure{
		EventType:    string(ev.Type),
		Payload:      ev.Data,
		ErrorMessage: err.Error(),
		CreatedAt:    util.NowUTC(),
	})
	if ledgerErr != nil {
		// Ledger write failure is only logged; this path must never escalate.
		slog.Error("could not record webhook failure", "event", ev.Type, "err", ledgerErr)
		return
	}
	observability.WebhookFailures.WithLabelValues(string(ev.Type)).Inc()
}

func (p *Processor) handleMessage(ctx context.Context, data json.RawMessage) error {
	var msg domain.MessagePayload
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode message payload: %w", err)
	}
	if msg.From == "" || msg.ID == "" {
		slog.Warn("message event missing required fields", "has_from", msg.From != "", "has_id", msg.ID != "")
		return nil
	}

	canonical := phone.Normalize(msg.From)
	if canonical == "" {
		slog.Warn("could not extract phone number", "from", msg.From)
		return nil
	}

	customerID := ""
	customer, found, err := p.Store.FindCustomerByPhone(ctx, phone.Variants(canonical))
	if err != nil {
		// Linkage is enrichment only; a lookup error must not drop the message.
		slog.Warn("customer lookup failed", "phone", canonical, "err", err)
	} else if found {
		customerID = customer.ID
	}

	msgType := msg.Type
	if msgType == "" {
		msgType = "text"
	}
	text := util.Truncate(msg.Body(), maxMessageText)
	receivedAt := parseTimestamp(msg.Timestamp)

	inserted, err := p.Store.InsertIncomingMessage(ctx, store.IncomingMessage{
		MessageID:  msg.ID,
		FromPhone:  canonical,
		CustomerID: customerID,
		Text:       text,
		Type:       msgType,
		MediaURL:   msg.MediaURL(),
		ReceivedAt: receivedAt,
	})
	if err != nil {
		return fmt.Errorf("store incoming message: %w", err)
	}
	if !inserted {
		slog.Info("duplicate message ignored", "message_id", msg.ID)
		return nil
	}

	if customerID != "" {
		if err := p.Store.InsertCommunication(ctx, store.Communication{
			CustomerID: customerID,
			Type:       "whatsapp",
			Message:    text,
			Phone:      canonical,
			Status:     "received",
			SentAt:     receivedAt,
		}); err != nil {
			slog.Warn("could not mirror message to communications log", "customer_id", customerID, "err", err)
		}
	}
	return nil
}

func (p *Processor) handleStatus(ctx context.Context, data json.RawMessage) error {
	var upd domain.StatusPayload
	if err := json.Unmarshal(data, &upd); err != nil {
		return fmt.Errorf("decode status payload: %w", err)
	}
	if upd.ID == "" || upd.Status == "" {
		slog.Warn("status event missing required fields")
		return nil
	}
	status := domain.MessageStatus(upd.Status)
	if !status.Valid() {
		slog.Warn("unknown message status", "status", upd.Status)
		return nil
	}

	found, err := p.Store.ApplyStatusUpdate(ctx, store.StatusUpdate{
		MessageID: upd.ID,
		Status:    status,
		Now:       util.NowUTC(),
	})
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if !found {
		slog.Info("status update for unknown message", "message_id", upd.ID, "status", upd.Status)
	}
	return nil
}

func (p *Processor) handleReaction(ctx context.Context, data json.RawMessage) error {
	var re domain.ReactionPayload
	if err := json.Unmarshal(data, &re); err != nil {
		return fmt.Errorf("decode reaction payload: %w", err)
	}
	if re.MessageID == "" || re.Reaction == "" {
		slog.Warn("reaction event missing required fields")
		return nil
	}
	return p.Store.InsertReaction(ctx, store.Reaction{
		MessageID: re.MessageID,
		FromPhone: phone.Normalize(re.From),
		Emoji:     re.Reaction,
		CreatedAt: util.NowUTC(),
	})
}

func (p *Processor) handleCall(ctx context.Context, data json.RawMessage) error {
	var call domain.CallPayload
	if err := json.Unmarshal(data, &call); err != nil {
		return fmt.Errorf("decode call payload: %w", err)
	}
	if call.From == "" {
		slog.Warn("call event missing required fields")
		return nil
	}
	callType := call.CallType
	if callType == "" {
		callType = "voice"
	}
	return p.Store.InsertCall(ctx, store.Call{
		FromPhone:     phone.Normalize(call.From),
		CallType:      callType,
		CallTimestamp: call.Timestamp,
		CreatedAt:     util.NowUTC(),
	})
}

func (p *Processor) handlePoll(ctx context.Context, data json.RawMessage) error {
	var poll domain.PollPayload
	if err := json.Unmarshal(data, &poll); err != nil {
		return fmt.Errorf("decode poll payload: %w", err)
	}
	if poll.PollID == "" || poll.Voter == "" {
		slog.Warn("poll event missing required fields")
		return nil
	}
	return p.Store.InsertPollResult(ctx, store.PollResult{
		PollID:          poll.PollID,
		VoterPhone:      phone.Normalize(poll.Voter),
		SelectedOptions: poll.SelectedOptions,
		CreatedAt:       util.NowUTC(),
	})
}

func parseTimestamp(raw string) time.Time {
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
	}
	return util.NowUTC()
}
