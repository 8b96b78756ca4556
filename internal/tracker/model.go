package tracker

import (
	"context"
	"errors"
	"time"
)

// User is the persisted per-user aggregate document. All durations are in
// milliseconds; XP values are in minutes (one minute coded equals one XP).
type User struct {
	UserID   string `json:"userId" firestore:"user_id"`
	Token    string `json:"token" firestore:"token"`
	Username string `json:"username" firestore:"username"`
	Fullname string `json:"fullname" firestore:"fullname"`
	PfpURL   string `json:"pfpUrl" firestore:"pfp_url"`
	About    string `json:"about" firestore:"about"`

	Level Level `json:"level" firestore:"level"`

	TotalTime int64 `json:"total_time" firestore:"total_time"`
	DailyTime int64 `json:"daily_time" firestore:"daily_time"`
	// WeeklyTime is derived on read from the daily buckets and never persisted;
	// stored weekly counters drifted in every earlier iteration of this logic.
	WeeklyTime int64 `json:"weekly_time" firestore:"-"`

	LanguageTime map[string]LanguageStats `json:"language_time" firestore:"language_time"`

	CurrentSessionStart time.Time `json:"current_session_start" firestore:"current_session_start"`
	LongestSession      int64     `json:"longest_coding_session" firestore:"longest_coding_session"`

	TimeLogs []LogEntry `json:"time_logs" firestore:"time_logs"`

	LastUpdated time.Time `json:"last_updated" firestore:"last_updated"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`
}

// LogEntry is one effective (deduplicated) interval kept in the 24h log.
type LogEntry struct {
	InstanceID string    `json:"instanceId" firestore:"instance_id"`
	StartTime  time.Time `json:"startTime" firestore:"start_time"`
	EndTime    time.Time `json:"endTime" firestore:"end_time"`
	Duration   int64     `json:"duration" firestore:"duration"`
	Language   string    `json:"language" firestore:"language"`
}

// LanguageStats accumulates per-language coding time.
type LanguageStats struct {
	DailyTime   int64     `json:"daily_time" firestore:"daily_time"`
	WeeklyTime  int64     `json:"weekly_time" firestore:"weekly_time"`
	TotalTime   int64     `json:"total_time" firestore:"total_time"`
	LastUpdated time.Time `json:"last_updated" firestore:"last_updated"`
}

// Level describes progression derived from cumulative coding time.
type Level struct {
	Current          int     `json:"current" firestore:"current"`
	XPAtCurrentLevel float64 `json:"xpAtCurrentLevel" firestore:"xp_at_current_level"`
	XPForNextLevel   float64 `json:"xpForNextLevel" firestore:"xp_for_next_level"`
}

// Submission is one reported coding span from one editor instance.
type Submission struct {
	InstanceID string
	Language   string
	Start      time.Time
	End        time.Time
}

// NewUserInput carries identity fields received from the user provisioning webhook.
type NewUserInput struct {
	UserID   string
	Username string
	Fullname string
	PfpURL   string
}

// IdentityPatch describes identity metadata updates; nil fields are left untouched.
type IdentityPatch struct {
	Username *string
	Fullname *string
	PfpURL   *string
}

// Period selects the aggregation window for stats queries.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
	PeriodTotal   Period = "total"
)

// ParsePeriod validates a raw period string.
func ParsePeriod(raw string) (Period, error) {
	switch Period(raw) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly, PeriodTotal:
		return Period(raw), nil
	default:
		return "", ErrInvalidPeriod
	}
}

// ErrUserNotFound indicates the referenced user does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidInterval indicates a malformed or non-positive submitted interval.
var ErrInvalidInterval = errors.New("invalid interval")

// ErrInvalidPeriod indicates an unsupported stats period.
var ErrInvalidPeriod = errors.New("invalid period")

// ErrConflict indicates a concurrent-update conflict or identifier collision.
var ErrConflict = errors.New("conflicting update")

// ErrTransient indicates a storage failure that persisted through bounded retries.
var ErrTransient = errors.New("transient storage error")

// Config carries the tunable policies of the aggregation engine. Zero values
// are replaced with defaults so a Config{} behaves like production settings.
type Config struct {
	// SessionGap is the largest silence between submissions that still counts
	// as the same coding session. 1.5x the extension's 2-minute heartbeat,
	// tolerating one missed beat.
	SessionGap time.Duration
	// LogRetention bounds the raw interval log, measured back from each
	// submission's end time.
	LogRetention time.Duration
	// FutureSkew is how far past "now" a submitted end time may lie before the
	// interval is rejected.
	FutureSkew time.Duration
	// MaxAttempts bounds retries of the per-user read-modify-write on
	// transient conflicts.
	MaxAttempts int
}

const (
	defaultSessionGap   = 3 * time.Minute
	defaultLogRetention = 24 * time.Hour
	defaultFutureSkew   = 10 * time.Minute
	defaultMaxAttempts  = 5
)

func (c Config) withDefaults() Config {
	if c.SessionGap <= 0 {
		c.SessionGap = defaultSessionGap
	}
	if c.LogRetention <= 0 {
		c.LogRetention = defaultLogRetention
	}
	if c.FutureSkew <= 0 {
		c.FutureSkew = defaultFutureSkew
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// Repository encapsulates persistence for user aggregates.
//
// Update runs mutate against the current document and persists the result as a
// single atomically-visible write; when mutate reports no change the document
// is left untouched and returned as-is. Implementations must guarantee that
// concurrent Updates for the same user cannot lose writes.
type Repository interface {
	GetByToken(ctx context.Context, token string) (User, error)
	GetByUserID(ctx context.Context, userID string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, user User) error
	Delete(ctx context.Context, userID string) error
	// UpdateIdentity must not touch LastUpdated: that field anchors interval
	// clipping and the live-activity signal, and profile edits are not coding.
	UpdateIdentity(ctx context.Context, userID string, patch IdentityPatch) error
	UpdateAbout(ctx context.Context, userID, about string) (User, error)
	Update(ctx context.Context, token string, mutate func(*User) (bool, error)) (User, error)
	TopByDailyTime(ctx context.Context, limit int) ([]User, error)
}

// Clock delivers the current time; extracted for deterministic testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces identifiers for submissions that arrive without one.
type IDGenerator interface {
	NewID() string
}

// TokenGenerator mints the opaque capability tokens handed to editor extensions.
type TokenGenerator interface {
	NewToken() string
}
