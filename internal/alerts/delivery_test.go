package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/guardia-project/guardia/internal/config"
)

func TestHTTPDelivererPostsDiscordPayload(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.Client())
	target := config.Alert{Name: "ops", Kind: config.AlertKindDiscord, URL: srv.URL, MentionID: "123"}
	msg := NewAlertMessage(SeverityCritical, "box1 temperature alert: triggered", "box1 is hot", target)

	if err := d.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotBody["content"], "<@123>") {
		t.Fatalf("expected mention in content, got %q", gotBody["content"])
	}
	if !strings.Contains(gotBody["content"], "box1 is hot") {
		t.Fatalf("expected body in content, got %q", gotBody["content"])
	}
}

func TestHTTPDelivererPostsWebhookPayload(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.Client())
	target := config.Alert{Name: "ops-webhook", Kind: config.AlertKindWebhook, URL: srv.URL}
	msg := NewAlertMessage(SeverityWarning, "svc alert", "svc is down", target)

	if err := d.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody["subject"] != "svc alert" || gotBody["body"] != "svc is down" {
		t.Fatalf("unexpected payload: %+v", gotBody)
	}
	if gotBody["id"] == "" {
		t.Fatalf("expected a ULID id to be set")
	}
}

func TestHTTPDelivererErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.Client())
	target := config.Alert{Name: "ops", Kind: config.AlertKindWebhook, URL: srv.URL}
	msg := NewAlertMessage(SeverityCritical, "s", "b", target)

	if err := d.Deliver(context.Background(), msg); err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
}

func TestHTTPDelivererErrorsOnUnknownKind(t *testing.T) {
	d := NewHTTPDeliverer(http.DefaultClient)
	target := config.Alert{Name: "mystery", Kind: config.AlertKind("carrier-pigeon"), URL: "http://example.invalid"}
	msg := NewAlertMessage(SeverityInfo, "s", "b", target)

	if err := d.Deliver(context.Background(), msg); err == nil {
		t.Fatalf("expected an error for an unknown target kind")
	}
}

func TestNewAlertMessageAssignsDistinctIDs(t *testing.T) {
	target := config.Alert{Name: "ops", Kind: config.AlertKindWebhook, URL: "http://example.invalid"}
	a := NewAlertMessage(SeverityInfo, "s", "b", target)
	b := NewAlertMessage(SeverityInfo, "s", "b", target)
	if a.ID == b.ID {
		t.Fatalf("expected distinct ULIDs, got the same value twice: %s", a.ID)
	}
}
