package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/guardia-project/guardia/internal/models"
)

const (
	defaultServerInterval  = 30 * time.Second
	defaultServicePort     = 3000
	defaultServiceInterval = 60 * time.Second
	defaultServiceTimeout  = 10 * time.Second
	defaultStoragePath     = "guardia.db"
	defaultRetentionDays   = 30
	defaultCleanupHours    = 24
	defaultAPIBind         = "0.0.0.0"
	defaultAPIPort         = 8080
)

// Resolve turns a raw Document into an immutable ResolvedConfig,
// collecting every validation problem rather than stopping at the
// first one.
func Resolve(doc Document) (ResolvedConfig, error) {
	var errs ValidationErrors

	alerts, alertErrs := resolveAlerts(doc.Alerts)
	errs = append(errs, alertErrs...)

	servers, serverErrs := resolveServers(doc, alerts)
	errs = append(errs, serverErrs...)

	services, serviceErrs := resolveServices(doc, alerts)
	errs = append(errs, serviceErrs...)

	storage, storageErrs := resolveStorage(doc.Storage)
	errs = append(errs, storageErrs...)

	api := resolveAPI(doc.API)

	tuning, tuningErrs := resolveTuning(doc.Tuning)
	errs = append(errs, tuningErrs...)

	if errs.HasErrors() {
		return ResolvedConfig{}, errs
	}

	return ResolvedConfig{
		Alerts:   alerts,
		Servers:  servers,
		Services: services,
		Storage:  storage,
		API:      api,
		Tuning:   tuning,
	}, nil
}

func resolveAlerts(specs map[string]AlertSpec) (map[string]Alert, ValidationErrors) {
	var errs ValidationErrors
	out := make(map[string]Alert, len(specs))

	for name, spec := range specs {
		switch {
		case spec.Discord != nil:
			if strings.TrimSpace(spec.Discord.URL) == "" {
				errs = append(errs, fmt.Sprintf("alert %q: discord url is empty", name))
				continue
			}
			a := Alert{Name: name, Kind: AlertKindDiscord, URL: spec.Discord.URL}
			if spec.Discord.UserID != nil {
				a.MentionID = *spec.Discord.UserID
			}
			out[name] = a
		case spec.Webhook != nil:
			if strings.TrimSpace(spec.Webhook.URL) == "" {
				errs = append(errs, fmt.Sprintf("alert %q: webhook url is empty", name))
				continue
			}
			out[name] = Alert{Name: name, Kind: AlertKindWebhook, URL: spec.Webhook.URL}
		default:
			errs = append(errs, fmt.Sprintf("alert %q: neither discord nor webhook target configured", name))
		}
	}

	return out, errs
}

func resolveLimitSpec(name string, spec *LimitSpec, alerts map[string]Alert, context string) (*Limit, ValidationErrors) {
	if spec == nil {
		return nil, nil
	}
	var errs ValidationErrors

	grace := 0
	if spec.Grace != nil {
		grace = *spec.Grace
	}
	if grace < 0 {
		errs = append(errs, fmt.Sprintf("%s: %s grace count must be >= 0", context, name))
	}

	if spec.Alert == nil || strings.TrimSpace(*spec.Alert) == "" {
		errs = append(errs, fmt.Sprintf("%s: %s limit has no alert reference", context, name))
		return nil, errs
	}
	alert, ok := alerts[*spec.Alert]
	if !ok {
		errs = append(errs, fmt.Sprintf("%s: %s limit references unknown alert %q", context, name, *spec.Alert))
		return nil, errs
	}

	return &Limit{
		Threshold:  spec.Limit,
		GraceCount: grace,
		AlertName:  *spec.Alert,
		Alert:      alert,
	}, errs
}

func mergeLimits(defaults, override *LimitsSpec) *LimitsSpec {
	if defaults == nil && override == nil {
		return nil
	}
	merged := &LimitsSpec{}
	if defaults != nil {
		merged.Temperature = defaults.Temperature
		merged.Usage = defaults.Usage
	}
	if override != nil {
		if override.Temperature != nil {
			merged.Temperature = override.Temperature
		}
		if override.Usage != nil {
			merged.Usage = override.Usage
		}
	}
	return merged
}

func resolveServers(doc Document, alerts map[string]Alert) ([]ServerRecord, ValidationErrors) {
	var errs ValidationErrors
	seen := make(map[models.ServerID]struct{})
	out := make([]ServerRecord, 0, len(doc.Servers))

	var defaultInterval *int
	var defaultLimits *LimitsSpec
	if doc.Defaults != nil && doc.Defaults.Server != nil {
		defaultInterval = doc.Defaults.Server.Interval
		defaultLimits = doc.Defaults.Server.Limits
	}

	for _, spec := range doc.Servers {
		ip := strings.TrimSpace(spec.IP)
		if ip == "" {
			errs = append(errs, "server entry missing ip")
			continue
		}

		port := defaultServicePort
		if spec.Port != nil {
			port = *spec.Port
		}

		intervalSeconds := 0
		if spec.Interval != nil {
			intervalSeconds = *spec.Interval
		} else if defaultInterval != nil {
			intervalSeconds = *defaultInterval
		}
		interval := defaultServerInterval
		if intervalSeconds != 0 {
			interval = time.Duration(intervalSeconds) * time.Second
		}
		if interval <= 0 {
			errs = append(errs, fmt.Sprintf("server %s:%d: interval must be > 0", ip, port))
		}

		serverID := models.ServerID(fmt.Sprintf("%s:%d", ip, port))
		if _, dup := seen[serverID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate server_id %q", serverID))
			continue
		}
		seen[serverID] = struct{}{}

		display := string(serverID)
		if spec.Display != nil && strings.TrimSpace(*spec.Display) != "" {
			display = *spec.Display
		}

		token := ""
		if spec.Token != nil {
			token = *spec.Token
		}

		merged := mergeLimits(defaultLimits, spec.Limits)
		var limits Limits
		if merged != nil {
			temp, tErrs := resolveLimitSpec("temperature", merged.Temperature, alerts, fmt.Sprintf("server %s", serverID))
			errs = append(errs, tErrs...)
			limits.Temperature = temp

			usage, uErrs := resolveLimitSpec("usage", merged.Usage, alerts, fmt.Sprintf("server %s", serverID))
			errs = append(errs, uErrs...)
			limits.Usage = usage
		}

		out = append(out, ServerRecord{
			ServerID:     serverID,
			IP:           ip,
			Port:         port,
			DisplayName:  display,
			PollInterval: interval,
			Token:        token,
			Limits:       limits,
		})
	}

	return out, errs
}

func mergeServiceDefaults(defaults *ServiceDefaults, spec ServiceSpec) (method string, intervalSec, timeoutSec, retries, grace int, expected []int, alert *string) {
	method = "GET"
	intervalSec = int(defaultServiceInterval / time.Second)
	timeoutSec = int(defaultServiceTimeout / time.Second)
	expected = []int{200}

	if defaults != nil {
		if defaults.Method != nil {
			method = *defaults.Method
		}
		if defaults.Interval != nil {
			intervalSec = *defaults.Interval
		}
		if defaults.Timeout != nil {
			timeoutSec = *defaults.Timeout
		}
		if defaults.Retries != nil {
			retries = *defaults.Retries
		}
		if defaults.Grace != nil {
			grace = *defaults.Grace
		}
		if len(defaults.ExpectedStatus) > 0 {
			expected = defaults.ExpectedStatus
		}
		alert = defaults.Alert
	}

	if spec.Method != nil {
		method = *spec.Method
	}
	if spec.Interval != nil {
		intervalSec = *spec.Interval
	}
	if spec.Timeout != nil {
		timeoutSec = *spec.Timeout
	}
	if spec.Retries != nil {
		retries = *spec.Retries
	}
	if spec.Grace != nil {
		grace = *spec.Grace
	}
	if len(spec.ExpectedStatus) > 0 {
		expected = spec.ExpectedStatus
	}
	if spec.Alert != nil {
		alert = spec.Alert
	}

	return method, intervalSec, timeoutSec, retries, grace, expected, alert
}

func resolveServices(doc Document, alerts map[string]Alert) ([]ServiceRecord, ValidationErrors) {
	var errs ValidationErrors
	seen := make(map[string]struct{})
	out := make([]ServiceRecord, 0, len(doc.Services))

	var defaults *ServiceDefaults
	if doc.Defaults != nil {
		defaults = doc.Defaults.Service
	}

	for _, spec := range doc.Services {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			errs = append(errs, "service entry missing name")
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate service name %q", name))
			continue
		}
		seen[name] = struct{}{}

		parsed, parseErr := url.Parse(spec.URL)
		if parseErr != nil || parsed.Scheme == "" {
			errs = append(errs, fmt.Sprintf("service %q: url missing scheme", name))
		}

		method, intervalSec, timeoutSec, retries, grace, expectedList, alertName := mergeServiceDefaults(defaults, spec)

		if intervalSec <= 0 {
			errs = append(errs, fmt.Sprintf("service %q: interval must be > 0", name))
		}
		if grace < 0 {
			errs = append(errs, fmt.Sprintf("service %q: grace count must be >= 0", name))
		}
		if retries < 0 {
			errs = append(errs, fmt.Sprintf("service %q: retries must be >= 0", name))
		}

		var resolvedAlert Alert
		if alertName == nil || strings.TrimSpace(*alertName) == "" {
			errs = append(errs, fmt.Sprintf("service %q: missing alert reference", name))
		} else if a, ok := alerts[*alertName]; !ok {
			errs = append(errs, fmt.Sprintf("service %q: references unknown alert %q", name, *alertName))
		} else {
			resolvedAlert = a
		}

		expected := make(map[int]struct{}, len(expectedList))
		for _, code := range expectedList {
			expected[code] = struct{}{}
		}

		bodyContains := ""
		if spec.BodyContains != nil {
			bodyContains = *spec.BodyContains
		}

		var alertNameStr string
		if alertName != nil {
			alertNameStr = *alertName
		}

		out = append(out, ServiceRecord{
			Name:                 name,
			URL:                  spec.URL,
			Method:               strings.ToUpper(method),
			Interval:             time.Duration(intervalSec) * time.Second,
			Timeout:              time.Duration(timeoutSec) * time.Second,
			Retries:              retries,
			GraceCount:           grace,
			ExpectedStatus:       expected,
			BodyContains:         bodyContains,
			Headers:              spec.Headers,
			AlertName:            alertNameStr,
			Alert:                resolvedAlert,
			DegradedCountsAsDown: true,
		})
	}

	return out, errs
}

func resolveStorage(spec *StorageSpec) (StorageConfig, ValidationErrors) {
	var errs ValidationErrors

	cfg := StorageConfig{
		Backend:              "sqlite",
		Path:                 defaultStoragePath,
		RetentionDays:        defaultRetentionDays,
		CleanupIntervalHours: defaultCleanupHours,
	}

	if spec == nil {
		return cfg, errs
	}

	if spec.Backend != "" {
		cfg.Backend = spec.Backend
	}
	if spec.Path != "" {
		cfg.Path = spec.Path
	}
	if spec.RetentionDays != nil {
		cfg.RetentionDays = *spec.RetentionDays
	}
	if spec.CleanupIntervalHours != nil {
		cfg.CleanupIntervalHours = *spec.CleanupIntervalHours
	}

	if cfg.Backend != "sqlite" && cfg.Backend != "none" {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q", cfg.Backend))
	}
	if cfg.RetentionDays < 1 || cfg.RetentionDays > 3650 {
		errs = append(errs, "storage: retention_days must be in [1, 3650]")
	}
	if cfg.CleanupIntervalHours < 1 || cfg.CleanupIntervalHours > 720 {
		errs = append(errs, "storage: cleanup_interval_hours must be in [1, 720]")
	}

	return cfg, errs
}

func resolveAPI(spec *APISpec) APIConfig {
	cfg := APIConfig{
		Bind: defaultAPIBind,
		Port: defaultAPIPort,
	}
	if spec == nil {
		return cfg
	}
	if spec.Bind != "" {
		cfg.Bind = spec.Bind
	}
	if spec.Port != 0 {
		cfg.Port = spec.Port
	}
	if spec.AuthToken != nil {
		cfg.AuthToken = *spec.AuthToken
	}
	cfg.EnableCORS = spec.EnableCORS
	cfg.AllowedOrigins = spec.AllowedOrigins
	return cfg
}

func resolveTuning(spec *TuningSpec) (Tuning, ValidationErrors) {
	var errs ValidationErrors
	t := DefaultTuning()
	if spec == nil {
		return t, errs
	}

	if spec.BroadcastCapacity != nil {
		if *spec.BroadcastCapacity <= 0 {
			errs = append(errs, "tuning: broadcast_capacity must be > 0")
		} else {
			t.BroadcastCapacity = *spec.BroadcastCapacity
		}
	}
	if spec.WriteBatchSize != nil {
		if *spec.WriteBatchSize <= 0 {
			errs = append(errs, "tuning: write_batch_size must be > 0")
		} else {
			t.WriteBatchSize = *spec.WriteBatchSize
		}
	}
	if spec.WriteBatchIntervalSeconds != nil {
		if *spec.WriteBatchIntervalSeconds <= 0 {
			errs = append(errs, "tuning: write_batch_interval_seconds must be > 0")
		} else {
			t.WriteBatchInterval = time.Duration(*spec.WriteBatchIntervalSeconds) * time.Second
		}
	}
	if spec.StalenessThresholdSeconds != nil {
		if *spec.StalenessThresholdSeconds <= 0 {
			errs = append(errs, "tuning: staleness_threshold_seconds must be > 0")
		} else {
			t.StalenessThreshold = time.Duration(*spec.StalenessThresholdSeconds) * time.Second
		}
	}

	return t, errs
}
