// Package campaign owns the campaign lifecycle: the queue service is the
// only mutator of campaign status, and the worker is the only caller that
// moves a campaign from pending through processing to a terminal state.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wamsg/internal/domain"
	"wamsg/internal/phone"
	"wamsg/internal/store"
	"wamsg/internal/util"
)

type Store interface {
	InsertCampaign(ctx context.Context, in store.CampaignInsert) error
	ClaimPending(ctx context.Context, now time.Time) ([]store.Campaign, error)
	RecordOutcome(ctx context.Context, in store.CampaignOutcome) error
	GetCampaign(ctx context.Context, id string) (store.Campaign, bool, error)
	RecipientResults(ctx context.Context, campaignID string) ([]domain.RecipientResult, error)
	FailedRecipientPhones(ctx context.Context, campaignID string) ([]string, error)
	InsertNotification(ctx context.Context, in store.Notification) error
}

type Service struct {
	Store Store
	IDGen func() string
}

func (s *Service) newID() string {
	if s.IDGen != nil {
		return s.IDGen()
	}
	return util.NewCampaignID()
}

// Enqueue accepts a new campaign in pending state. Recipient phones are
// canonicalized on the way in so the worker never sees provider suffixes.
func (s *Service) Enqueue(ctx context.Context, req domain.CreateCampaignRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	recipients := make([]domain.Recipient, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		canonical := phone.Normalize(r.Phone)
		if canonical == "" {
			return "", domain.ErrEmptyRecipients
		}
		recipients = append(recipients, domain.Recipient{Phone: canonical, Name: r.Name})
	}

	id := s.newID()
	if err := s.Store.InsertCampaign(ctx, store.CampaignInsert{
		ID:         id,
		Recipients: recipients,
		Template:   req.Template,
		MediaURL:   req.MediaURL,
		MediaType:  req.MediaType,
		Now:        util.NowUTC(),
	}); err != nil {
		return "", fmt.Errorf("insert campaign: %w", err)
	}
	return id, nil
}

// ClaimPending returns pending campaigns, each atomically marked processing
// before it is handed out.
func (s *Service) ClaimPending(ctx context.Context) ([]store.Campaign, error) {
	return s.Store.ClaimPending(ctx, util.NowUTC())
}

// RecordOutcome persists delivery attempt results. A campaign completes when
// every recipient was attempted, success or not; it fails only when the
// whole batch could not be attempted at all.
func (s *Service) RecordOutcome(ctx context.Context, campaignID string, results []domain.RecipientResult) error {
	status := domain.CampaignCompleted
	if len(results) == 0 {
		status = domain.CampaignFailed
	}

	now := util.NowUTC()
	if err := s.Store.RecordOutcome(ctx, store.CampaignOutcome{
		CampaignID: campaignID,
		Status:     status,
		Results:    results,
		Now:        now,
	}); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}

	success, failed := 0, 0
	for _, r := range results {
		if r.OK {
			success++
		} else {
			failed++
		}
	}
	if err := s.Store.InsertNotification(ctx, store.Notification{
		Type:      "bulk_campaign_complete",
		Title:     fmt.Sprintf("Campaign %s %s", campaignID, status),
		Message:   fmt.Sprintf("Sent %d out of %d messages. %d failed.", success, len(results), failed),
		CreatedAt: now,
	}); err != nil {
		slog.Warn("could not record completion notification", "campaign_id", campaignID, "err", err)
	}
	return nil
}

// Status is the read-only lookup the external application uses.
func (s *Service) Status(ctx context.Context, campaignID string) (store.Campaign, []domain.RecipientResult, error) {
	c, found, err := s.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return store.Campaign{}, nil, err
	}
	if !found {
		return store.Campaign{}, nil, domain.ErrCampaignNotFound
	}
	results, err := s.Store.RecipientResults(ctx, campaignID)
	if err != nil {
		return store.Campaign{}, nil, err
	}
	return c, results, nil
}

// RetryFailed builds a fresh pending campaign from the failed recipients of
// a finished one. Names are carried over from the original recipient list.
func (s *Service) RetryFailed(ctx context.Context, campaignID string) (string, error) {
	c, found, err := s.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", domain.ErrCampaignNotFound
	}

	phones, err := s.Store.FailedRecipientPhones(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if len(phones) == 0 {
		return "", domain.ErrNoFailedRecipients
	}

	failedSet := make(map[string]bool, len(phones))
	for _, p := range phones {
		failedSet[p] = true
	}
	recipients := make([]domain.Recipient, 0, len(phones))
	for _, r := range c.Recipients {
		if failedSet[r.Phone] {
			recipients = append(recipients, r)
			delete(failedSet, r.Phone)
		}
	}
	for p := range failedSet {
		recipients = append(recipients, domain.Recipient{Phone: p})
	}

	return s.Enqueue(ctx, domain.CreateCampaignRequest{
		Recipients: recipients,
		Template:   c.Template,
		MediaURL:   c.MediaURL,
		MediaType:  c.MediaType,
	})
}
