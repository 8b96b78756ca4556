package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sarthak-Sama/CodeHours/internal/dailystats"
)

const (
	leaderboardSize = 100
	// activeThreshold is how recent the last accepted submission must be for
	// the widget to report the user as currently coding.
	activeThreshold = 2 * time.Minute
)

// Service orchestrates interval ingestion and the read-side stats queries.
type Service struct {
	repo    Repository
	buckets dailystats.Store
	clock   Clock
	ids     IDGenerator
	tokens  TokenGenerator
	cfg     Config
}

// NewService constructs a Service instance with the provided collaborators.
func NewService(repo Repository, buckets dailystats.Store, clock Clock, ids IDGenerator, tokens TokenGenerator, cfg Config) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repo is required")
	}
	if buckets == nil {
		return nil, errors.New("bucket store is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if tokens == nil {
		return nil, errors.New("token generator is required")
	}
	return &Service{
		repo:    repo,
		buckets: buckets,
		clock:   clock,
		ids:     ids,
		tokens:  tokens,
		cfg:     cfg.withDefaults(),
	}, nil
}

// SubmitInterval ingests one reported coding span. Overlapping or already
// covered spans succeed as no-ops; only the effective remainder is counted.
// The whole per-user update is applied as one atomically-visible write and
// retried on transient conflicts before surfacing ErrTransient.
func (s *Service) SubmitInterval(ctx context.Context, token, language string, start, end time.Time, instanceID string) (User, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		return User{}, fmt.Errorf("%w: language is required", ErrInvalidInterval)
	}
	if start.IsZero() || end.IsZero() {
		return User{}, fmt.Errorf("%w: startTime and endTime are required", ErrInvalidInterval)
	}
	if !end.After(start) {
		return User{}, fmt.Errorf("%w: endTime must be greater than startTime", ErrInvalidInterval)
	}
	if end.After(s.clock.Now().Add(s.cfg.FutureSkew)) {
		return User{}, fmt.Errorf("%w: endTime is in the future", ErrInvalidInterval)
	}
	if instanceID == "" {
		instanceID = s.ids.NewID()
	}

	sub := Submission{
		InstanceID: instanceID,
		Language:   language,
		Start:      start.UTC(),
		End:        end.UTC(),
	}

	var contrib contribution
	var applied bool

	mutate := func(u *User) (bool, error) {
		applied = false
		c, ok := processInterval(u, sub, s.cfg)
		if !ok {
			return false, nil
		}
		applied = true
		contrib = c

		cutoff := sub.End.Add(-s.cfg.LogRetention)
		logs := pruneLogs(u.TimeLogs, cutoff)
		logs = append(logs, LogEntry{
			InstanceID: sub.InstanceID,
			StartTime:  c.Start,
			EndTime:    c.End,
			Duration:   c.Duration,
			Language:   sub.Language,
		})
		u.TimeLogs = logs

		total, byLanguage := dailyTotals(logs)
		u.DailyTime = total
		u.TotalTime += c.Duration

		if u.LanguageTime == nil {
			u.LanguageTime = make(map[string]LanguageStats)
		}
		stats, exists := u.LanguageTime[sub.Language]
		if exists {
			stats.TotalTime += c.Duration
			stats.WeeklyTime += c.Duration
		} else {
			stats = LanguageStats{
				DailyTime:  c.Duration,
				WeeklyTime: c.Duration,
				TotalTime:  c.Duration,
			}
		}
		stats.LastUpdated = sub.End
		u.LanguageTime[sub.Language] = stats

		// Rolling per-language daily figures share the log as source of truth,
		// so pruning retires them in lockstep with the user-level DailyTime.
		for lang, ls := range u.LanguageTime {
			ls.DailyTime = byLanguage[lang]
			u.LanguageTime[lang] = ls
		}

		u.CurrentSessionStart = c.SessionStart
		u.LongestSession = c.LongestSession

		if lvl := levelFromTotalTime(u.TotalTime); lvl.Current >= u.Level.Current {
			u.Level = lvl
		}

		u.LastUpdated = sub.End
		return true, nil
	}

	var updated User
	err := withRetry(ctx, s.cfg.MaxAttempts, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.Update(ctx, token, mutate)
		return err
	})
	if err != nil {
		return User{}, err
	}

	if applied {
		err := withRetry(ctx, s.cfg.MaxAttempts, func(ctx context.Context) error {
			return s.buckets.Increment(ctx, updated.UserID, sub.End, contrib.Duration)
		})
		if err != nil {
			return User{}, err
		}
	}

	return updated, nil
}

// GetStats answers "how much time in the given period" for the token's user.
// Daily and total come straight from the aggregate; weekly, monthly and
// yearly are summed from the calendar-day buckets so they cannot drift.
func (s *Service) GetStats(ctx context.Context, token, rawPeriod string) (int64, error) {
	period, err := ParsePeriod(rawPeriod)
	if err != nil {
		return 0, err
	}

	user, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	loc := s.buckets.Location()

	switch period {
	case PeriodDaily:
		return user.DailyTime, nil
	case PeriodTotal:
		return user.TotalTime, nil
	case PeriodWeekly:
		return s.weeklyTotal(ctx, user.UserID, now)
	case PeriodMonthly:
		today := dailystats.DayStart(now, loc)
		from := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		return s.sumBuckets(ctx, user.UserID, from, today.AddDate(0, 0, 1))
	case PeriodYearly:
		today := dailystats.DayStart(now, loc)
		from := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return s.sumBuckets(ctx, user.UserID, from, today.AddDate(0, 0, 1))
	default:
		return 0, ErrInvalidPeriod
	}
}

// weeklyTotal sums the trailing 7 calendar days, inclusive of today.
func (s *Service) weeklyTotal(ctx context.Context, userID string, now time.Time) (int64, error) {
	today := dailystats.DayStart(now, s.buckets.Location())
	return s.sumBuckets(ctx, userID, today.AddDate(0, 0, -6), today.AddDate(0, 0, 1))
}

func (s *Service) sumBuckets(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	buckets, err := s.buckets.Query(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, bucket := range buckets {
		total += bucket.TotalTime
	}
	return total, nil
}

// Leaderboard returns the top users ranked by daily time, descending. Ties
// break on user ID ascending so the ordering is deterministic.
func (s *Service) Leaderboard(ctx context.Context) ([]User, error) {
	return s.repo.TopByDailyTime(ctx, leaderboardSize)
}

// ActivityHistory returns every daily bucket for the user, oldest first,
// feeding the activity heatmap.
func (s *Service) ActivityHistory(ctx context.Context, userID string) ([]dailystats.Bucket, error) {
	var buckets []dailystats.Bucket

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.repo.GetByUserID(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		buckets, err = s.buckets.All(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buckets, nil
}

// FetchUser loads a user document with its derived weekly total attached.
func (s *Service) FetchUser(ctx context.Context, userID string) (User, error) {
	var (
		user   User
		weekly int64
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.repo.GetByUserID(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		weekly, err = s.weeklyTotal(ctx, userID, s.clock.Now())
		return err
	})
	if err := g.Wait(); err != nil {
		return User{}, err
	}

	user.WeeklyTime = weekly
	return user, nil
}

// WidgetStats is the payload served to the embeddable live counter.
type WidgetStats struct {
	TotalTime   int64     `json:"totalTime"`
	IsCoding    bool      `json:"isCoding"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// CodingActivity resolves the widget counter for a public username. Unknown
// timespans fall back to the cumulative total, matching the widget's default.
func (s *Service) CodingActivity(ctx context.Context, username, timespan string) (WidgetStats, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return WidgetStats{}, err
	}

	now := s.clock.Now()

	var total int64
	switch timespan {
	case string(PeriodDaily):
		total = user.DailyTime
	case string(PeriodWeekly):
		total, err = s.weeklyTotal(ctx, user.UserID, now)
		if err != nil {
			return WidgetStats{}, err
		}
	default:
		total = user.TotalTime
	}

	return WidgetStats{
		TotalTime:   total,
		IsCoding:    !user.LastUpdated.IsZero() && now.Sub(user.LastUpdated) <= activeThreshold,
		LastUpdated: user.LastUpdated,
	}, nil
}

// DailyTotal serves the extension's status-bar poll.
func (s *Service) DailyTotal(ctx context.Context, token string) (int64, error) {
	user, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return 0, err
	}
	return user.DailyTime, nil
}

// UpdateAbout replaces the user's profile about text.
func (s *Service) UpdateAbout(ctx context.Context, userID, content string) (string, error) {
	user, err := s.repo.UpdateAbout(ctx, userID, content)
	if err != nil {
		return "", err
	}
	return user.About, nil
}

// CreateUser provisions a zeroed aggregate with a freshly minted capability
// token. Replayed provisioning events return the existing record unchanged.
func (s *Service) CreateUser(ctx context.Context, input NewUserInput) (User, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return User{}, errors.New("user id is required")
	}

	existing, err := s.repo.GetByUserID(ctx, input.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	user := User{
		UserID:       input.UserID,
		Token:        s.tokens.NewToken(),
		Username:     input.Username,
		Fullname:     input.Fullname,
		PfpURL:       input.PfpURL,
		Level:        LevelFor(0),
		LanguageTime: make(map[string]LanguageStats),
		CreatedAt:    s.clock.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return s.repo.GetByUserID(ctx, input.UserID)
		}
		return User{}, err
	}
	return user, nil
}

// DeleteUser removes the aggregate for a deprovisioned user.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	return s.repo.Delete(ctx, userID)
}

// UpdateUserIdentity patches identity metadata owned by the identity provider.
// LastUpdated is left alone so a profile edit cannot clip the next heartbeat
// or make the widget report phantom activity.
func (s *Service) UpdateUserIdentity(ctx context.Context, userID string, patch IdentityPatch) error {
	return s.repo.UpdateIdentity(ctx, userID, patch)
}
