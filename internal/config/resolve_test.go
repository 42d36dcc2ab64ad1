package config

import (
	"strings"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestResolveMinimalDocument(t *testing.T) {
	doc := Document{
		Alerts: map[string]AlertSpec{
			"ops-webhook": {Webhook: &WebhookSpec{URL: "https://hooks.example.com/abc"}},
		},
		Servers: []ServerSpec{
			{IP: "10.0.0.1", Port: ptr(3000), Limits: &LimitsSpec{
				Usage: &LimitSpec{Limit: 80, Grace: ptr(3), Alert: ptr("ops-webhook")},
			}},
		},
		Services: []ServiceSpec{
			{Name: "api", URL: "https://api.example.com/health", Alert: ptr("ops-webhook")},
		},
	}

	cfg, err := Resolve(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(cfg.Servers))
	}
	server := cfg.Servers[0]
	if server.ServerID != "10.0.0.1:3000" {
		t.Fatalf("unexpected server id: %s", server.ServerID)
	}
	if server.Limits.Usage == nil || server.Limits.Usage.Threshold != 80 || server.Limits.Usage.GraceCount != 3 {
		t.Fatalf("usage limit not resolved correctly: %+v", server.Limits.Usage)
	}
	if server.Limits.Usage.Alert.Kind != AlertKindWebhook {
		t.Fatalf("expected webhook alert kind")
	}

	if len(cfg.Services) != 1 {
		t.Fatalf("expected 1 service")
	}
	svc := cfg.Services[0]
	if svc.Method != "GET" {
		t.Fatalf("expected default method GET, got %s", svc.Method)
	}
	if _, ok := svc.ExpectedStatus[200]; !ok {
		t.Fatalf("expected default 200 in expected status set")
	}
}

func TestResolveMissingAlertReference(t *testing.T) {
	doc := Document{
		Servers: []ServerSpec{
			{IP: "10.0.0.1", Limits: &LimitsSpec{
				Usage: &LimitSpec{Limit: 80, Alert: ptr("does-not-exist")},
			}},
		},
	}

	_, err := Resolve(doc)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "unknown alert") {
		t.Fatalf("expected unknown alert error, got: %v", err)
	}
}

func TestResolveAggregatesMultipleErrors(t *testing.T) {
	doc := Document{
		Servers: []ServerSpec{
			{IP: "10.0.0.1", Interval: ptr(-1)},
			{IP: "10.0.0.1"},
		},
		Services: []ServiceSpec{
			{Name: "bad-url", URL: "not-a-url"},
		},
		Storage: &StorageSpec{RetentionDays: ptr(0)},
	}

	_, err := Resolve(doc)
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	ve, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(ve) < 3 {
		t.Fatalf("expected multiple aggregated errors, got %d: %v", len(ve), ve)
	}
}

func TestResolveDuplicateServiceName(t *testing.T) {
	doc := Document{
		Alerts: map[string]AlertSpec{
			"a": {Webhook: &WebhookSpec{URL: "https://example.com/hook"}},
		},
		Services: []ServiceSpec{
			{Name: "api", URL: "https://a.example.com", Alert: ptr("a")},
			{Name: "api", URL: "https://b.example.com", Alert: ptr("a")},
		},
	}

	_, err := Resolve(doc)
	if err == nil || !strings.Contains(err.Error(), "duplicate service name") {
		t.Fatalf("expected duplicate service name error, got: %v", err)
	}
}

func TestResolveDefaultsOverlay(t *testing.T) {
	doc := Document{
		Alerts: map[string]AlertSpec{
			"default-alert": {Webhook: &WebhookSpec{URL: "https://example.com/hook"}},
		},
		Defaults: &DefaultsSpec{
			Server: &ServerDefaults{
				Interval: ptr(45),
				Limits: &LimitsSpec{
					Usage: &LimitSpec{Limit: 90, Alert: ptr("default-alert")},
				},
			},
		},
		Servers: []ServerSpec{
			{IP: "10.0.0.2"}, // inherits defaults entirely
			{IP: "10.0.0.3", Interval: ptr(10)}, // overrides interval only
		},
	}

	cfg, err := Resolve(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byIP := map[string]ServerRecord{}
	for _, s := range cfg.Servers {
		byIP[s.IP] = s
	}

	if byIP["10.0.0.2"].PollInterval.Seconds() != 45 {
		t.Fatalf("expected inherited interval 45s, got %v", byIP["10.0.0.2"].PollInterval)
	}
	if byIP["10.0.0.2"].Limits.Usage == nil || byIP["10.0.0.2"].Limits.Usage.Threshold != 90 {
		t.Fatalf("expected inherited usage limit")
	}
	if byIP["10.0.0.3"].PollInterval.Seconds() != 10 {
		t.Fatalf("expected overridden interval 10s, got %v", byIP["10.0.0.3"].PollInterval)
	}
}
