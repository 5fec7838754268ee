package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
)

func TestWebhookPublisherSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := "test-secret"
	pub := NewWebhookPublisher(srv.URL, secret, 5*time.Second)

	event := domain.EventEnvelope{
		EventID:       "evt-1",
		EventType:     domain.EventSettingsUpdated,
		TenantID:      "tenant-a",
		AggregateType: domain.AggregateSettings,
		AggregateID:   "payment",
		SchemaVersion: 1,
	}

	if err := pub.Publish(context.Background(), "events.tenant-a.settings.updated", event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if topic := gotHeaders.Get("X-Adminsettings-Topic"); topic != "events.tenant-a.settings.updated" {
		t.Errorf("X-Adminsettings-Topic = %q, want events.tenant-a.settings.updated", topic)
	}
	if et := gotHeaders.Get("X-Adminsettings-Event-Type"); et != domain.EventSettingsUpdated {
		t.Errorf("X-Adminsettings-Event-Type = %q, want %s", et, domain.EventSettingsUpdated)
	}
	if ten := gotHeaders.Get("X-Adminsettings-Tenant"); ten != "tenant-a" {
		t.Errorf("X-Adminsettings-Tenant = %q, want tenant-a", ten)
	}
	if sec := gotHeaders.Get("X-Adminsettings-Section"); sec != "payment" {
		t.Errorf("X-Adminsettings-Section = %q, want payment", sec)
	}
	if id := gotHeaders.Get("X-Adminsettings-Event-Id"); id != "evt-1" {
		t.Errorf("X-Adminsettings-Event-Id = %q, want evt-1", id)
	}

	sigHeader := gotHeaders.Get("X-Hub-Signature-256")
	if !strings.HasPrefix(sigHeader, "sha256=") {
		t.Fatalf("X-Hub-Signature-256 header missing or malformed: %q", sigHeader)
	}
	gotSig := strings.TrimPrefix(sigHeader, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	wantSig := hex.EncodeToString(mac.Sum(nil))
	if gotSig != wantSig {
		t.Errorf("signature mismatch: got %q, want %q", gotSig, wantSig)
	}

	var decoded domain.EventEnvelope
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.EventID != event.EventID {
		t.Errorf("EventID = %q, want %q", decoded.EventID, event.EventID)
	}
}

func TestWebhookPublisherNon2xxReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-2", EventType: domain.EventSettingsReset, SchemaVersion: 1}

	err := pub.Publish(context.Background(), "events.t.settings.reset", event)
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention status code 500, got: %v", err)
	}
}

func TestWebhookPublisherContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-3", EventType: domain.EventSettingsUpdated, SchemaVersion: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Publish(ctx, "events.t.settings.updated", event)
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected error to wrap context.Canceled, got: %v", err)
	}
}

func TestWebhookPublisherZeroTimeoutUsesDefault(t *testing.T) {
	pub := NewWebhookPublisher("http://localhost:9", "s", 0)
	if pub.client.Timeout != defaultWebhookTimeout {
		t.Errorf("timeout = %v, want %v", pub.client.Timeout, defaultWebhookTimeout)
	}
}

type recordingPublisher struct {
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ domain.EventEnvelope) error {
	p.topics = append(p.topics, topic)
	return p.err
}

func TestMultiPublisherTriesEveryPublisher(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("webhook down")}
	ok := &recordingPublisher{}
	pub := MultiPublisher{failing, ok}

	err := pub.Publish(context.Background(), "events.t.settings.updated", domain.EventEnvelope{EventID: "evt-4"})
	if err == nil || !strings.Contains(err.Error(), "webhook down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(failing.topics) != 1 || len(ok.topics) != 1 {
		t.Fatalf("expected both publishers called, got %d and %d", len(failing.topics), len(ok.topics))
	}
}

func TestLogPublisherWritesEvent(t *testing.T) {
	var buf strings.Builder
	pub := NewLogPublisher(zerolog.New(&buf))

	if err := pub.Publish(context.Background(), "events.t.settings.reset", domain.EventEnvelope{
		EventID:     "evt-5",
		EventType:   domain.EventSettingsReset,
		TenantID:    "t",
		AggregateID: domain.AggregateAll,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(buf.String()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["event_id"] != "evt-5" || line["topic"] != "events.t.settings.reset" || line["section"] != "all" {
		t.Fatalf("unexpected log line: %v", line)
	}
}
