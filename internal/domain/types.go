package domain

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventMessageReceived EventType = "messages.received"
	EventMessageUpsert   EventType = "messages.upsert"
	EventMessageUpdate   EventType = "messages.update"
	EventMessageReaction EventType = "messages.reaction"
	EventCallReceived    EventType = "call.received"
	EventPollResults     EventType = "poll.results"
	EventUnknown         EventType = "unknown"
)

// Event is the envelope every provider webhook delivers: a discriminator
// plus an opaque payload that only the matching handler may interpret.
type Event struct {
	Type EventType       `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Classify maps the raw discriminator onto a known event type.
// Anything unrecognized becomes EventUnknown; unknown events are dropped,
// not treated as errors.
func Classify(raw string) EventType {
	switch EventType(raw) {
	case EventMessageReceived, EventMessageUpsert, EventMessageUpdate,
		EventMessageReaction, EventCallReceived, EventPollResults:
		return EventType(raw)
	}
	return EventUnknown
}

type MessagePayload struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Type      string `json:"type"`
	Image     string `json:"image"`
	Video     string `json:"video"`
	Document  string `json:"document"`
	Audio     string `json:"audio"`
	Timestamp string `json:"timestamp"`
}

// MediaURL returns the first media attachment, if any.
func (m MessagePayload) MediaURL() string {
	for _, u := range []string{m.Image, m.Video, m.Document, m.Audio} {
		if u != "" {
			return u
		}
	}
	return ""
}

// Body prefers text; media messages carry their text in the caption.
func (m MessagePayload) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

type StatusPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	From      string `json:"from"`
	Reaction  string `json:"reaction"`
}

type CallPayload struct {
	From      string `json:"from"`
	CallType  string `json:"callType"`
	Timestamp string `json:"timestamp"`
}

type PollPayload struct {
	PollID          string   `json:"pollId"`
	Voter           string   `json:"voter"`
	SelectedOptions []string `json:"selectedOptions"`
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Rank orders outbound statuses so a late, lower-rank update never
// regresses a message that already advanced. failed sits below read:
// a read message stays read.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusFailed:
		return 3
	case StatusRead:
		return 4
	}
	return 0
}

func (s MessageStatus) Valid() bool { return s.Rank() > 0 }

type CampaignStatus string

const (
	CampaignPending    CampaignStatus = "pending"
	CampaignProcessing CampaignStatus = "processing"
	CampaignCompleted  CampaignStatus = "completed"
	CampaignFailed     CampaignStatus = "failed"
)

type Recipient struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

type CreateCampaignRequest struct {
	Recipients []Recipient `json:"recipients"`
	Template   string      `json:"template"`
	MediaURL   string      `json:"mediaUrl,omitempty"`
	MediaType  string      `json:"mediaType,omitempty"`
}

func (r CreateCampaignRequest) Validate() error {
	if len(r.Recipients) == 0 {
		return ErrEmptyRecipients
	}
	if r.Template == "" {
		return ErrMissingTemplate
	}
	for _, rc := range r.Recipients {
		if rc.Phone == "" {
			return ErrEmptyRecipients
		}
	}
	return nil
}

type CreateCampaignResponse struct {
	CampaignID string `json:"campaignId"`
	Status     string `json:"status"`
}

// RecipientResult is one delivery attempt outcome inside a campaign cycle.
type RecipientResult struct {
	Phone       string    `json:"phone"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}
