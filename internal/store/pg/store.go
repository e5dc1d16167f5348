package pg

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wamsg/internal/domain"
	"wamsg/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// InsertIncomingMessage is the dedup-on-conflict insert: redelivery of the
// same message_id is a no-op and reports inserted=false.
func (s *Store) InsertIncomingMessage(ctx context.Context, in store.IncomingMessage) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO incoming_messages (message_id, from_phone, customer_id, message_text, message_type, media_url, received_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (message_id) DO NOTHING
	`, in.MessageID, in.FromPhone, nullIfEmpty(in.CustomerID), in.Text, in.Type, nullIfEmpty(in.MediaURL), in.ReceivedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ApplyStatusUpdate advances an outbound log row. Status only moves forward
// (sent < delivered < failed < read); delivered_at and read_at stamp once and
// are never overwritten, so redelivered updates stay idempotent.
func (s *Store) ApplyStatusUpdate(ctx context.Context, in store.StatusUpdate) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE message_log SET
			status = CASE
				WHEN status = 'read' THEN status
				WHEN status = 'failed' AND $2 IN ('sent','delivered') THEN status
				WHEN status = 'delivered' AND $2 = 'sent' THEN status
				ELSE $2 END,
			delivered_at = CASE WHEN $2 = 'delivered' THEN COALESCE(delivered_at, $3) ELSE delivered_at END,
			read_at      = CASE WHEN $2 = 'read' THEN COALESCE(read_at, $3) ELSE read_at END
		WHERE message_id = $1
	`, in.MessageID, string(in.Status), in.Now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) InsertReaction(ctx context.Context, in store.Reaction) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reactions (message_id, from_phone, emoji, created_at)
		VALUES ($1,$2,$3,$4)
	`, in.MessageID, in.FromPhone, in.Emoji, in.CreatedAt)
	return err
}

func (s *Store) InsertCall(ctx context.Context, in store.Call) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO calls (from_phone, call_type, call_timestamp, created_at)
		VALUES ($1,$2,$3,$4)
	`, in.FromPhone, in.CallType, nullIfEmpty(in.CallTimestamp), in.CreatedAt)
	return err
}

func (s *Store) InsertPollResult(ctx context.Context, in store.PollResult) error {
	b, _ := json.Marshal(in.SelectedOptions)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO poll_results (poll_id, voter_phone, selected_options, created_at)
		VALUES ($1,$2,$3,$4)
	`, in.PollID, in.VoterPhone, b, in.CreatedAt)
	return err
}

func (s *Store) InsertWebhookFailure(ctx context.Context, in store.WebhookFailure) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO webhook_failures (event_type, payload, error_message, created_at)
		VALUES ($1,$2,$3,$4)
	`, in.EventType, in.Payload, in.ErrorMessage, in.CreatedAt)
	return err
}

func (s *Store) InsertCommunication(ctx context.Context, in store.Communication) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO customer_communications (customer_id, type, message, phone_number, status, sent_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, in.CustomerID, in.Type, in.Message, in.Phone, in.Status, in.SentAt)
	return err
}

func (s *Store) InsertNotification(ctx context.Context, in store.Notification) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO notifications (type, title, message, created_at)
		VALUES ($1,$2,$3,$4)
	`, in.Type, in.Title, in.Message, in.CreatedAt)
	return err
}

// FindCustomerByPhone tries every variant against both the primary phone
// field and the whatsapp handle; first match wins.
func (s *Store) FindCustomerByPhone(ctx context.Context, variants []string) (store.Customer, bool, error) {
	if len(variants) == 0 {
		return store.Customer{}, false, nil
	}
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(whatsapp,'')
		FROM customers
		WHERE phone = ANY($1) OR whatsapp = ANY($1)
		LIMIT 1
	`, variants)
	var c store.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.WhatsApp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Customer{}, false, nil
		}
		return store.Customer{}, false, err
	}
	return c, true, nil
}

func (s *Store) InsertCampaign(ctx context.Context, in store.CampaignInsert) error {
	b, _ := json.Marshal(in.Recipients)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO campaigns (id, status, recipients, template, media_url, media_type, success_count, failed_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,0,$7)
	`, in.ID, string(domain.CampaignPending), b, in.Template, nullIfEmpty(in.MediaURL), nullIfEmpty(in.MediaType), in.Now)
	return err
}

// ClaimPending atomically flips every pending campaign to processing and
// returns the claimed set. The conditional UPDATE is the concurrency-safety
// boundary: two workers racing here never claim the same campaign.
func (s *Store) ClaimPending(ctx context.Context, now time.Time) ([]store.Campaign, error) {
	rows, err := s.DB.Query(ctx, `
		UPDATE campaigns
		SET status = $1, started_at = COALESCE(started_at, $2)
		WHERE status = $3
		RETURNING id, recipients, template, COALESCE(media_url,''), COALESCE(media_type,''), success_count, failed_count, created_at
	`, string(domain.CampaignProcessing), now, string(domain.CampaignPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Campaign
	for rows.Next() {
		var (
			c             store.Campaign
			recipientsRaw []byte
		)
		if err := rows.Scan(&c.ID, &recipientsRaw, &c.Template, &c.MediaURL, &c.MediaType, &c.SuccessCount, &c.FailedCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(recipientsRaw, &c.Recipients)
		c.Status = domain.CampaignProcessing
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING has no defined order; keep oldest-first.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RecordOutcome persists per-recipient results and moves the campaign to its
// terminal state.
func (s *Store) RecordOutcome(ctx context.Context, in store.CampaignOutcome) error {
	success, failed := 0, 0
	for _, r := range in.Results {
		st := "sent"
		if r.OK {
			success++
		} else {
			st = "failed"
			failed++
		}
		if _, err := s.DB.Exec(ctx, `
			INSERT INTO campaign_recipients (campaign_id, phone, status, error, attempted_at)
			VALUES ($1,$2,$3,$4,$5)
		`, in.CampaignID, r.Phone, st, nullIfEmpty(r.Error), r.AttemptedAt); err != nil {
			return err
		}
	}

	_, err := s.DB.Exec(ctx, `
		UPDATE campaigns
		SET status = $2,
		    success_count = success_count + $3,
		    failed_count = failed_count + $4,
		    completed_at = $5
		WHERE id = $1
	`, in.CampaignID, string(in.Status), success, failed, in.Now)
	return err
}

func (s *Store) GetCampaign(ctx context.Context, id string) (store.Campaign, bool, error) {
	var (
		c             store.Campaign
		status        string
		recipientsRaw []byte
	)
	row := s.DB.QueryRow(ctx, `
		SELECT id, status, recipients, template, COALESCE(media_url,''), COALESCE(media_type,''),
		       success_count, failed_count, created_at, started_at, completed_at
		FROM campaigns WHERE id = $1
	`, id)
	err := row.Scan(&c.ID, &status, &recipientsRaw, &c.Template, &c.MediaURL, &c.MediaType,
		&c.SuccessCount, &c.FailedCount, &c.CreatedAt, &c.StartedAt, &c.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Campaign{}, false, nil
		}
		return store.Campaign{}, false, err
	}
	_ = json.Unmarshal(recipientsRaw, &c.Recipients)
	c.Status = domain.CampaignStatus(status)
	return c, true, nil
}

func (s *Store) RecipientResults(ctx context.Context, campaignID string) ([]domain.RecipientResult, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT phone, status, COALESCE(error,''), attempted_at
		FROM campaign_recipients
		WHERE campaign_id = $1
		ORDER BY attempted_at
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RecipientResult
	for rows.Next() {
		var (
			r      domain.RecipientResult
			status string
		)
		if err := rows.Scan(&r.Phone, &status, &r.Error, &r.AttemptedAt); err != nil {
			return nil, err
		}
		r.OK = status == "sent"
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) FailedRecipientPhones(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT phone FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'failed'
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
