package dailystats

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu    sync.RWMutex
	loc   *time.Location
	store map[string]map[string]Bucket // userID -> dayKey -> Bucket
}

// NewMemoryStore returns an in-memory bucket store intended for local development and tests.
func NewMemoryStore(loc *time.Location) Store {
	if loc == nil {
		loc = time.UTC
	}
	return &memoryStore{
		loc:   loc,
		store: make(map[string]map[string]Bucket),
	}
}

func (s *memoryStore) Location() *time.Location {
	return s.loc
}

func (s *memoryStore) Increment(_ context.Context, userID string, at time.Time, amount int64) error {
	if amount <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userStore, ok := s.store[userID]
	if !ok {
		userStore = make(map[string]Bucket)
		s.store[userID] = userStore
	}

	day := DayStart(at, s.loc)
	key := day.Format("2006-01-02")
	bucket, ok := userStore[key]
	if !ok {
		bucket = Bucket{UserID: userID, Date: day}
	}
	bucket.TotalTime += amount
	bucket.UpdatedAt = time.Now().UTC()
	userStore[key] = bucket
	return nil
}

func (s *memoryStore) Query(_ context.Context, userID string, from, to time.Time) ([]Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make([]Bucket, 0)
	for _, bucket := range s.store[userID] {
		if !bucket.Date.Before(from) && bucket.Date.Before(to) {
			buckets = append(buckets, bucket)
		}
	}
	sortByDate(buckets)
	return buckets, nil
}

func (s *memoryStore) All(_ context.Context, userID string) ([]Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make([]Bucket, 0, len(s.store[userID]))
	for _, bucket := range s.store[userID] {
		buckets = append(buckets, bucket)
	}
	sortByDate(buckets)
	return buckets, nil
}

func (s *memoryStore) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	boundary := DayStart(cutoff, s.loc)
	purged := 0
	for userID, userStore := range s.store {
		for key, bucket := range userStore {
			if bucket.Date.Before(boundary) {
				delete(userStore, key)
				purged++
			}
		}
		if len(userStore) == 0 {
			delete(s.store, userID)
		}
	}
	return purged, nil
}

func sortByDate(buckets []Bucket) {
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date.Before(buckets[j].Date)
	})
}
