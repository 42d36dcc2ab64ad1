package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/guardia-project/guardia/internal/config"
)

// Severity classifies an AlertMessage for display purposes.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// AlertMessage is the abstract payload produced by a Trigger or
// Recovery transition, tagged with a ULID for log correlation and
// potential future dedup.
type AlertMessage struct {
	ID       string
	Severity Severity
	Subject  string
	Body     string
	Target   config.Alert
}

// NewAlertMessage builds an AlertMessage carrying a fresh ULID (from
// ulid.Make: monotonic entropy seeded from the current time).
func NewAlertMessage(severity Severity, subject, body string, target config.Alert) AlertMessage {
	return AlertMessage{
		ID:       ulid.Make().String(),
		Severity: severity,
		Subject:  subject,
		Body:     body,
		Target:   target,
	}
}

// Deliverer sends an AlertMessage to its target. Implementations must
// respect ctx's deadline and return promptly; the alert actor calls
// Deliver from a detached goroutine so a slow or hung target never
// blocks state evaluation.
type Deliverer interface {
	Deliver(ctx context.Context, msg AlertMessage) error
}

// HTTPDeliverer posts AlertMessages to Discord or generic webhook
// targets over HTTP. It is the only Deliverer Guardia ships; target
// selection is driven entirely by config.Alert.Kind.
type HTTPDeliverer struct {
	client *http.Client
}

// NewHTTPDeliverer builds a deliverer whose requests share client.
func NewHTTPDeliverer(client *http.Client) *HTTPDeliverer {
	return &HTTPDeliverer{client: client}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, msg AlertMessage) error {
	switch msg.Target.Kind {
	case config.AlertKindDiscord:
		return d.deliverDiscord(ctx, msg)
	case config.AlertKindWebhook:
		return d.deliverWebhook(ctx, msg)
	default:
		return fmt.Errorf("alerts: unknown target kind %q", msg.Target.Kind)
	}
}

type discordPayload struct {
	Content string `json:"content"`
}

func (d *HTTPDeliverer) deliverDiscord(ctx context.Context, msg AlertMessage) error {
	content := fmt.Sprintf("**%s**\n%s", msg.Subject, msg.Body)
	if msg.Target.MentionID != "" {
		content = fmt.Sprintf("<@%s>\n%s", msg.Target.MentionID, content)
	}
	return d.post(ctx, msg.Target.URL, discordPayload{Content: content})
}

type webhookPayload struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

func (d *HTTPDeliverer) deliverWebhook(ctx context.Context, msg AlertMessage) error {
	return d.post(ctx, msg.Target.URL, webhookPayload{
		ID:       msg.ID,
		Severity: string(msg.Severity),
		Subject:  msg.Subject,
		Body:     msg.Body,
	})
}

func (d *HTTPDeliverer) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alerts: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerts: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alerts: target responded with status %d", resp.StatusCode)
	}
	return nil
}

// DefaultDeliveryTimeout bounds every single delivery attempt.
const DefaultDeliveryTimeout = 10 * time.Second
