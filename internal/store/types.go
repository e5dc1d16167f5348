package store

import (
	"time"

	"wamsg/internal/domain"
)

type IncomingMessage struct {
	MessageID  string
	FromPhone  string
	CustomerID string
	Text       string
	Type       string
	MediaURL   string
	ReceivedAt time.Time
}

type StatusUpdate struct {
	MessageID string
	Status    domain.MessageStatus
	Now       time.Time
}

type Reaction struct {
	MessageID string
	FromPhone string
	Emoji     string
	CreatedAt time.Time
}

type Call struct {
	FromPhone     string
	CallType      string
	CallTimestamp string
	CreatedAt     time.Time
}

type PollResult struct {
	PollID          string
	VoterPhone      string
	SelectedOptions []string
	CreatedAt       time.Time
}

type WebhookFailure struct {
	EventType    string
	Payload      []byte
	ErrorMessage string
	CreatedAt    time.Time
}

type Communication struct {
	CustomerID string
	Type       string
	Message    string
	Phone      string
	Status     string
	SentAt     time.Time
}

type Customer struct {
	ID       string
	Name     string
	Phone    string
	WhatsApp string
}

type Campaign struct {
	ID           string
	Status       domain.CampaignStatus
	Recipients   []domain.Recipient
	Template     string
	MediaURL     string
	MediaType    string
	SuccessCount int
	FailedCount  int
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

type CampaignInsert struct {
	ID         string
	Recipients []domain.Recipient
	Template   string
	MediaURL   string
	MediaType  string
	Now        time.Time
}

type CampaignOutcome struct {
	CampaignID string
	Status     domain.CampaignStatus
	Results    []domain.RecipientResult
	Now        time.Time
}

type Notification struct {
	Type      string
	Title     string
	Message   string
	CreatedAt time.Time
}
