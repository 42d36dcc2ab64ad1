// Package config resolves the user-facing JSON configuration document
// into an immutable ResolvedConfig consumed by every hub actor at
// spawn time.
package config

// Document is the raw, user-facing configuration as loaded from disk.
// All fields are optional except Servers/Services' required keys,
// enforced during Resolve rather than via JSON-level required-ness so
// that every problem in a document is reported together.
type Document struct {
	Alerts   map[string]AlertSpec `json:"alerts"`
	Defaults *DefaultsSpec        `json:"defaults"`
	Servers  []ServerSpec         `json:"servers"`
	Services []ServiceSpec        `json:"services"`
	Storage  *StorageSpec         `json:"storage"`
	API      *APISpec             `json:"api"`
	Tuning   *TuningSpec          `json:"tuning"`
}

// AlertSpec is a named alert target: exactly one of Discord or Webhook
// should be set.
type AlertSpec struct {
	Discord *DiscordSpec `json:"discord"`
	Webhook *WebhookSpec `json:"webhook"`
}

type DiscordSpec struct {
	URL    string  `json:"url"`
	UserID *string `json:"user_id"`
}

type WebhookSpec struct {
	URL string `json:"url"`
}

// LimitSpec configures one metric dimension's threshold and grace.
type LimitSpec struct {
	Limit float64 `json:"limit"`
	Grace *int    `json:"grace"`
	Alert *string `json:"alert"`
}

// LimitsSpec groups the two metric dimensions a server can alert on.
type LimitsSpec struct {
	Temperature *LimitSpec `json:"temperature"`
	Usage       *LimitSpec `json:"usage"`
}

// ServerDefaults supplies fallback values for server entries.
type ServerDefaults struct {
	Interval *int        `json:"interval"`
	Limits   *LimitsSpec `json:"limits"`
}

// ServiceDefaults supplies fallback values for service entries.
type ServiceDefaults struct {
	Method         *string `json:"method"`
	Interval       *int    `json:"interval"`
	Timeout        *int    `json:"timeout"`
	Retries        *int    `json:"retries"`
	Grace          *int    `json:"grace"`
	ExpectedStatus []int   `json:"expected_status"`
	Alert          *string `json:"alert"`
}

type DefaultsSpec struct {
	Server  *ServerDefaults  `json:"server"`
	Service *ServiceDefaults `json:"service"`
}

// ServerSpec is a single monitored server entry.
type ServerSpec struct {
	IP       string      `json:"ip"`
	Display  *string     `json:"display"`
	Port     *int        `json:"port"`
	Interval *int        `json:"interval"`
	Token    *string     `json:"token"`
	Limits   *LimitsSpec `json:"limits"`
}

// ServiceSpec is a single monitored HTTP(S) service entry.
type ServiceSpec struct {
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Method         *string           `json:"method"`
	Interval       *int              `json:"interval"`
	Timeout        *int              `json:"timeout"`
	Retries        *int              `json:"retries"`
	Grace          *int              `json:"grace"`
	ExpectedStatus []int             `json:"expected_status"`
	BodyContains   *string           `json:"body_contains"`
	Headers        map[string]string `json:"headers"`
	Alert          *string           `json:"alert"`
}

// StorageSpec configures the storage backend.
type StorageSpec struct {
	Backend              string `json:"backend"` // "sqlite" or "none"
	Path                 string `json:"path"`
	RetentionDays        *int   `json:"retention_days"`
	CleanupIntervalHours *int   `json:"cleanup_interval_hours"`
}

// APISpec configures the REST+WebSocket server.
type APISpec struct {
	Bind           string   `json:"bind"`
	Port           int      `json:"port"`
	AuthToken      *string  `json:"auth_token"`
	EnableCORS     bool     `json:"enable_cors"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// TuningSpec overrides the documented default tuning constants.
type TuningSpec struct {
	BroadcastCapacity         *int `json:"broadcast_capacity"`
	WriteBatchSize            *int `json:"write_batch_size"`
	WriteBatchIntervalSeconds *int `json:"write_batch_interval_seconds"`
	StalenessThresholdSeconds *int `json:"staleness_threshold_seconds"`
}
