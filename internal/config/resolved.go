package config

import (
	"time"

	"github.com/guardia-project/guardia/internal/models"
)

// AlertKind selects the delivery target for a resolved Alert.
type AlertKind string

const (
	AlertKindDiscord AlertKind = "discord"
	AlertKindWebhook AlertKind = "webhook"
)

// Alert is a fully resolved named alert target.
type Alert struct {
	Name       string
	Kind       AlertKind
	URL        string
	MentionID  string // Discord only; empty otherwise
}

// Limit is the resolved threshold+grace+target for one metric
// dimension of a server.
type Limit struct {
	Threshold  float64
	GraceCount int
	AlertName  string
	Alert      Alert
}

// Limits groups the two independently-tracked metric dimensions.
type Limits struct {
	Temperature *Limit
	Usage       *Limit
}

// ServerRecord is a fully resolved, immutable monitored-server entry.
type ServerRecord struct {
	ServerID     models.ServerID
	IP           string
	Port         int
	DisplayName  string
	PollInterval time.Duration
	Token        string
	Limits       Limits
}

// ServiceRecord is a fully resolved, immutable monitored-service entry.
type ServiceRecord struct {
	Name                 string
	URL                  string
	Method               string
	Interval             time.Duration
	Timeout              time.Duration
	Retries              int
	GraceCount           int
	ExpectedStatus       map[int]struct{}
	BodyContains         string
	Headers              map[string]string
	AlertName            string
	Alert                Alert
	DegradedCountsAsDown bool
}

// StorageConfig is the resolved storage backend selection.
type StorageConfig struct {
	Backend              string // "sqlite" or "none"
	Path                 string
	RetentionDays        int
	CleanupIntervalHours int
}

// APIConfig is the resolved API server configuration.
type APIConfig struct {
	Bind           string
	Port           int
	AuthToken      string
	EnableCORS     bool
	AllowedOrigins []string
}

// Tuning holds the documented default tuning constants, each
// overridable within its documented range.
type Tuning struct {
	BroadcastCapacity         int
	WriteBatchSize            int
	WriteBatchInterval        time.Duration
	StalenessThreshold        time.Duration
}

// DefaultTuning returns the documented default tuning values.
func DefaultTuning() Tuning {
	return Tuning{
		BroadcastCapacity:  256,
		WriteBatchSize:     100,
		WriteBatchInterval: 5 * time.Second,
		StalenessThreshold: 5 * time.Minute,
	}
}

// ResolvedConfig is the immutable value every actor is constructed
// from. It is never mutated after Resolve returns.
type ResolvedConfig struct {
	Alerts   map[string]Alert
	Servers  []ServerRecord
	Services []ServiceRecord
	Storage  StorageConfig
	API      APIConfig
	Tuning   Tuning
}
