package wasender

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

var errProvider = errors.New("provider rejected send")

func signFor(t *testing.T, secret string, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSendTextSuccess(t *testing.T) {
	var gotAuth string
	var gotBody SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/send-message" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(SendResponse{Success: true, MessageID: "wam_1"})
	}))
	defer srv.Close()

	c := &Client{APIKey: "k123", HTTP: srv.Client(), BaseURL: srv.URL}
	resp, status, _, err := c.SendText(context.Background(), SendRequest{To: "255700000001", Text: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if status != 200 || !resp.Success || resp.MessageID != "wam_1" {
		t.Fatalf("unexpected response: status=%d resp=%+v", status, resp)
	}
	if gotAuth != "Bearer k123" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody.To != "255700000001" || gotBody.Text != "hi" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestSendTextProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(SendResponse{Message: "invalid recipient"})
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client(), BaseURL: srv.URL}
	_, status, _, err := c.SendText(context.Background(), SendRequest{To: "bad"})
	if err == nil {
		t.Fatalf("expected error on 422")
	}
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if err.Error() != "invalid recipient" {
		t.Fatalf("expected provider message surfaced, got %q", err.Error())
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		want   bool
	}{
		{"deadline", context.DeadlineExceeded, 0, true},
		{"rate limited", nil, 429, true},
		{"request timeout", nil, 408, true},
		{"server error", nil, 503, true},
		{"server error with provider message", errProvider, 500, true},
		{"client error", nil, 400, false},
		{"client error with provider message", errProvider, 422, false},
		{"connection refused", errProvider, 0, false},
		{"success", nil, 200, false},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err, tc.status); got != tc.want {
			t.Errorf("%s: ShouldRetry=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"messages.received"}`)

	sig := signFor(t, "secret", body)
	if !VerifySignature("secret", body, sig) {
		t.Fatalf("valid signature must verify")
	}
	if VerifySignature("other", body, sig) {
		t.Fatalf("signature under a different secret must not verify")
	}
	if VerifySignature("secret", []byte("tampered"), sig) {
		t.Fatalf("tampered body must not verify")
	}
}
