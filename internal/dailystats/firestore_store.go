package dailystats

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

const dailyTimesCollection = "daily_times"

type firestoreStore struct {
	client *firestore.Client
	loc    *time.Location
}

// NewFirestoreStore instantiates a Firestore-backed bucket store keyed by
// (userID, calendar day in loc).
func NewFirestoreStore(client *firestore.Client, loc *time.Location) Store {
	if loc == nil {
		loc = time.UTC
	}
	return &firestoreStore{client: client, loc: loc}
}

func (s *firestoreStore) Location() *time.Location {
	return s.loc
}

func (s *firestoreStore) buckets() *firestore.CollectionRef {
	return s.client.Collection(dailyTimesCollection)
}

// Deterministic document IDs make the upsert idempotent per (user, day) and
// spare a lookup query on the write path.
func (s *firestoreStore) docID(userID string, day time.Time) string {
	return userID + "_" + day.Format("2006-01-02")
}

func (s *firestoreStore) Increment(ctx context.Context, userID string, at time.Time, amount int64) error {
	if amount <= 0 {
		return nil
	}
	day := DayStart(at, s.loc)
	_, err := s.buckets().Doc(s.docID(userID, day)).Set(ctx, map[string]any{
		"user_id":    userID,
		"date":       day,
		"total_time": firestore.Increment(amount),
		"updated_at": time.Now().UTC(),
	}, firestore.MergeAll)
	return err
}

func (s *firestoreStore) Query(ctx context.Context, userID string, from, to time.Time) ([]Bucket, error) {
	query := s.buckets().
		Where("user_id", "==", userID).
		Where("date", ">=", from).
		Where("date", "<", to).
		OrderBy("date", firestore.Asc)
	return s.collect(ctx, query)
}

func (s *firestoreStore) All(ctx context.Context, userID string) ([]Bucket, error) {
	query := s.buckets().
		Where("user_id", "==", userID).
		OrderBy("date", firestore.Asc)
	return s.collect(ctx, query)
}

func (s *firestoreStore) collect(ctx context.Context, query firestore.Query) ([]Bucket, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	buckets := make([]Bucket, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var bucket Bucket
		if err := doc.DataTo(&bucket); err != nil {
			return nil, fmt.Errorf("unmarshal daily bucket: %w", err)
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

func (s *firestoreStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	iter := s.buckets().
		Where("date", "<", DayStart(cutoff, s.loc)).
		Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return purged, err
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
