package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sarthak-Sama/CodeHours/internal/auth"
	"github.com/Sarthak-Sama/CodeHours/internal/envconfig"
)

// Config encapsulates the runtime configuration for the CodeHours service.
type Config struct {
	Port         string `validate:"required"`
	GCPProjectID string
	DataStore    DataStore `validate:"required,oneof=memory firestore"`
	Auth         AuthConfig
	Firestore    FirestoreConfig
	Webhook      WebhookConfig
	Tracker      TrackerConfig
}

// DataStore enumerates supported persistence backends.
type DataStore string

const (
	// DataStoreMemory stores user aggregates in-memory (useful for local development/testing).
	DataStoreMemory DataStore = "memory"
	// DataStoreFirestore stores aggregates in Google Cloud Firestore.
	DataStoreFirestore DataStore = "firestore"
)

// AuthConfig stores authentication middleware setup.
type AuthConfig struct {
	Mode     auth.Mode `validate:"required,oneof=clerk noop"`
	JWKSURL  string
	Audience string
	Issuer   string
}

// FirestoreConfig tailors Firestore client behavior.
type FirestoreConfig struct {
	EmulatorHost string
}

// WebhookConfig holds the Clerk webhook signing secret.
type WebhookConfig struct {
	ClerkSecret string
}

// TrackerConfig tunes the interval ingestion engine.
type TrackerConfig struct {
	SessionGap      time.Duration `validate:"min=1"`
	LogRetention    time.Duration `validate:"min=1"`
	FutureSkew      time.Duration `validate:"min=0"`
	MaxAttempts     int           `validate:"min=1"`
	DayLocation     *time.Location
	BucketRetention time.Duration
}

// Load reads environment variables into Config with validation.
func Load() (Config, error) {
	sessionGap, err := envconfig.Duration("SESSION_GAP", 3*time.Minute)
	if err != nil {
		return Config{}, err
	}
	logRetention, err := envconfig.Duration("LOG_RETENTION", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	futureSkew, err := envconfig.Duration("FUTURE_SKEW", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	bucketRetention, err := envconfig.Duration("BUCKET_RETENTION", 366*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	maxAttempts, err := envconfig.Int("UPDATE_MAX_ATTEMPTS", 5)
	if err != nil {
		return Config{}, err
	}

	dayTZ := envconfig.Get("DAY_TZ", "UTC")
	loc, err := time.LoadLocation(dayTZ)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DAY_TZ %q: %w", dayTZ, err)
	}

	cfg := Config{
		Port:         envconfig.Get("PORT", "8080"),
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", ""),
		DataStore:    DataStore(strings.ToLower(envconfig.Get("DATASTORE", string(DataStoreMemory)))),
		Auth: AuthConfig{
			Mode:    auth.Mode(strings.ToLower(envconfig.Get("AUTH_MODE", string(auth.ModeNoop)))),
			JWKSURL: envconfig.Get("CLERK_JWKS_URL", ""),
			Issuer:  envconfig.Get("CLERK_ISSUER", ""),
		},
		Firestore: FirestoreConfig{
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
		},
		Webhook: WebhookConfig{
			ClerkSecret: envconfig.Get("CLERK_WEBHOOK_SECRET", ""),
		},
		Tracker: TrackerConfig{
			SessionGap:      sessionGap,
			LogRetention:    logRetention,
			FutureSkew:      futureSkew,
			MaxAttempts:     maxAttempts,
			DayLocation:     loc,
			BucketRetention: bucketRetention,
		},
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// validate runs the tag-level checks first, then the cross-field requirements
// tags cannot express.
func validate(cfg Config) error {
	if err := envconfig.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.DataStore == DataStoreFirestore && cfg.GCPProjectID == "" {
		return fmt.Errorf("gcp project id required when datastore=firestore")
	}
	if cfg.Auth.Mode == auth.ModeClerk && cfg.Auth.JWKSURL == "" {
		return fmt.Errorf("CLERK_JWKS_URL is required when AUTH_MODE=clerk")
	}

	return nil
}
