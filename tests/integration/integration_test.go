//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wamsg/internal/campaign"
	"wamsg/internal/domain"
	"wamsg/internal/ingest"
	"wamsg/internal/store"
	"wamsg/internal/store/pg"
)

func TestIngestIdempotent(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	st := pg.New(db)
	proc := &ingest.Processor{Store: st}

	payload := `{"id":"wamid-1","from":"255700000001@s.whatsapp.net","text":"hello"}`
	ev := domain.Event{Type: domain.EventMessageReceived, Data: json.RawMessage(payload)}

	proc.Handle(ctx, ev)
	proc.Handle(ctx, ev)

	assertCount(t, db, `SELECT count(*) FROM incoming_messages WHERE message_id='wamid-1'`, 1)
	assertCount(t, db, `SELECT count(*) FROM webhook_failures`, 0)
}

func TestIngestResolvesCustomerAndMirrors(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.Exec(ctx, `
		INSERT INTO customers (id, name, phone, whatsapp)
		VALUES ('cust-1', 'Asha', '255700000001', NULL)
	`)
	if err != nil {
		t.Fatalf("insert customer: %v", err)
	}

	st := pg.New(db)
	proc := &ingest.Processor{Store: st}

	payload := `{"id":"wamid-2","from":"255700000001@s.whatsapp.net","text":"order update"}`
	proc.Handle(ctx, domain.Event{Type: domain.EventMessageReceived, Data: json.RawMessage(payload)})

	var customerID string
	err = db.QueryRow(ctx, `SELECT customer_id FROM incoming_messages WHERE message_id='wamid-2'`).Scan(&customerID)
	if err != nil {
		t.Fatalf("select customer_id: %v", err)
	}
	if customerID != "cust-1" {
		t.Fatalf("expected cust-1, got %q", customerID)
	}
	assertCount(t, db, `SELECT count(*) FROM customer_communications WHERE customer_id='cust-1' AND type='whatsapp' AND status='received'`, 1)
}

func TestStatusMonotonicProgression(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	st := pg.New(db)

	_, err := db.Exec(ctx, `INSERT INTO message_log (message_id, status) VALUES ('out-1', 'sent')`)
	if err != nil {
		t.Fatalf("insert log row: %v", err)
	}

	apply := func(status domain.MessageStatus) {
		t.Helper()
		found, err := st.ApplyStatusUpdate(ctx, store.StatusUpdate{MessageID: "out-1", Status: status, Now: time.Now()})
		if err != nil {
			t.Fatalf("apply %s: %v", status, err)
		}
		if !found {
			t.Fatalf("apply %s: row not found", status)
		}
	}

	apply(domain.StatusDelivered)
	assertStatus(t, db, "out-1", "delivered")

	// A late 'sent' must not regress the row.
	apply(domain.StatusSent)
	assertStatus(t, db, "out-1", "delivered")

	apply(domain.StatusRead)
	assertStatus(t, db, "out-1", "read")

	// 'read' is terminal.
	apply(domain.StatusDelivered)
	assertStatus(t, db, "out-1", "read")

	var deliveredAt, readAt *time.Time
	err = db.QueryRow(ctx, `SELECT delivered_at, read_at FROM message_log WHERE message_id='out-1'`).Scan(&deliveredAt, &readAt)
	if err != nil {
		t.Fatalf("select timestamps: %v", err)
	}
	if deliveredAt == nil || readAt == nil {
		t.Fatalf("delivered_at and read_at must both be stamped")
	}
}

func TestClaimPendingSingleWinner(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	st := pg.New(db)
	svc := &campaign.Service{Store: st}

	id, err := svc.Enqueue(ctx, domain.CreateCampaignRequest{
		Recipients: []domain.Recipient{{Phone: "255700000001", Name: "A"}},
		Template:   "Hi {name}",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var wg sync.WaitGroup
	claims := make([]int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := svc.ClaimPending(ctx)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			claims[n] = len(got)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, c := range claims {
		total += c
	}
	if total != 1 {
		t.Fatalf("campaign claimed %d times, want 1", total)
	}

	var status string
	if err := db.QueryRow(ctx, `SELECT status FROM campaigns WHERE id=$1`, id).Scan(&status); err != nil {
		t.Fatalf("select status: %v", err)
	}
	if status != "processing" {
		t.Fatalf("expected processing, got %s", status)
	}
}

func TestRecordOutcomePartialFailureCompletes(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	st := pg.New(db)
	svc := &campaign.Service{Store: st}

	id, err := svc.Enqueue(ctx, domain.CreateCampaignRequest{
		Recipients: []domain.Recipient{{Phone: "1"}, {Phone: "2"}, {Phone: "3"}},
		Template:   "t",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.ClaimPending(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	now := time.Now()
	err = svc.RecordOutcome(ctx, id, []domain.RecipientResult{
		{Phone: "1", OK: true, AttemptedAt: now},
		{Phone: "2", OK: false, Error: "provider rejected send", AttemptedAt: now},
		{Phone: "3", OK: true, AttemptedAt: now},
	})
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	c, _, err := svc.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if c.Status != domain.CampaignCompleted {
		t.Fatalf("partial failure must complete, got %s", c.Status)
	}
	if c.SuccessCount != 2 || c.FailedCount != 1 {
		t.Fatalf("expected counts 2/1, got %d/%d", c.SuccessCount, c.FailedCount)
	}
	assertCount(t, db, fmt.Sprintf(`SELECT count(*) FROM campaign_recipients WHERE campaign_id='%s' AND status='failed'`, id), 1)
	assertCount(t, db, `SELECT count(*) FROM notifications WHERE type='bulk_campaign_complete'`, 1)

	retryID, err := svc.RetryFailed(ctx, id)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	retry, _, err := svc.Status(ctx, retryID)
	if err != nil {
		t.Fatalf("retry status: %v", err)
	}
	if len(retry.Recipients) != 1 || retry.Recipients[0].Phone != "2" {
		t.Fatalf("retry must target only the failed recipient, got %+v", retry.Recipients)
	}
	if retry.Status != domain.CampaignPending {
		t.Fatalf("retry campaign must start pending, got %s", retry.Status)
	}
}

func assertStatus(t *testing.T, db *pgxpool.Pool, messageID, want string) {
	t.Helper()
	var got string
	err := db.QueryRow(context.Background(), `SELECT status FROM message_log WHERE message_id=$1`, messageID).Scan(&got)
	if err != nil {
		t.Fatalf("select status: %v", err)
	}
	if got != want {
		t.Fatalf("expected status %s, got %s", want, got)
	}
}

func assertCount(t *testing.T, db *pgxpool.Pool, query string, want int) {
	t.Helper()
	var got int
	if err := db.QueryRow(context.Background(), query).Scan(&got); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if got != want {
		t.Fatalf("expected %d rows, got %d (%s)", want, got, query)
	}
}

func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN not set")
	}

	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	admin, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect admin db: %v", err)
	}

	_, err = admin.Exec(context.Background(), "CREATE SCHEMA "+schema)
	if err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	dbDSN, err := withSearchPath(dsn, schema)
	if err != nil {
		admin.Close()
		t.Fatalf("build dsn: %v", err)
	}

	db, err := pgxpool.New(context.Background(), dbDSN)
	if err != nil {
		admin.Close()
		t.Fatalf("connect test db: %v", err)
	}

	sqlPath := filepath.Join("..", "..", "migrations", "001_init.sql")
	sqlBytes, err := os.ReadFile(sqlPath)
	if err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("read migrations: %v", err)
	}

	if _, err := db.Exec(context.Background(), string(sqlBytes)); err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	}

	return db, cleanup
}

func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	opts := q.Get("options")
	if opts != "" {
		opts = opts + " -c search_path=" + schema
	} else {
		opts = "-c search_path=" + schema
	}
	q.Set("options", opts)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
