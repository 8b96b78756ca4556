package dailystats

import (
	"context"
	"time"
)

// Bucket accumulates one user's coding time for one calendar day. Buckets are
// created lazily on the first contribution of a day, grow by additive
// increments for the rest of it, and are immutable history afterward.
type Bucket struct {
	UserID    string    `json:"userId" firestore:"user_id"`
	Date      time.Time `json:"date" firestore:"date"`
	TotalTime int64     `json:"totalTime" firestore:"total_time"`
	UpdatedAt time.Time `json:"-" firestore:"updated_at"`
}

// Store persists per-user-per-day accumulators. Increment must be an atomic
// additive upsert: concurrent increments for the same day commute and none
// may be lost. Purging old buckets never affects the user aggregates, which
// carry their own cumulative totals.
type Store interface {
	Increment(ctx context.Context, userID string, at time.Time, amount int64) error
	Query(ctx context.Context, userID string, from, to time.Time) ([]Bucket, error)
	All(ctx context.Context, userID string) ([]Bucket, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
	Location() *time.Location
}

// DayStart truncates t to midnight of its calendar day in loc. Every day-key
// computation in the service goes through this single policy; the day
// boundary location is configured once and never read ad hoc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
