package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func seedUser(t *testing.T, repo Repository, userID, token, username string) {
	t.Helper()
	err := repo.Create(context.Background(), User{
		UserID:   userID,
		Token:    token,
		Username: username,
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", userID, err)
	}
}

func TestMemoryRepositoryLookups(t *testing.T) {
	repo := NewMemoryRepository()
	seedUser(t, repo, "user-1", "tok-1", "alice")

	byToken, err := repo.GetByToken(context.Background(), "tok-1")
	if err != nil || byToken.UserID != "user-1" {
		t.Fatalf("GetByToken = %+v (%v)", byToken, err)
	}
	byName, err := repo.GetByUsername(context.Background(), "alice")
	if err != nil || byName.UserID != "user-1" {
		t.Fatalf("GetByUsername = %+v (%v)", byName, err)
	}

	if _, err := repo.GetByToken(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryRepositoryCreateConflicts(t *testing.T) {
	repo := NewMemoryRepository()
	seedUser(t, repo, "user-1", "tok-1", "alice")

	if err := repo.Create(context.Background(), User{UserID: "user-1", Token: "other", Username: "bob"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate user id should conflict, got %v", err)
	}
	if err := repo.Create(context.Background(), User{UserID: "user-2", Token: "tok-1", Username: "bob"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate token should conflict, got %v", err)
	}
	if err := repo.Create(context.Background(), User{UserID: "user-2", Token: "tok-2", Username: "alice"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate username should conflict, got %v", err)
	}
}

func TestMemoryRepositoryUpdateIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	seedUser(t, repo, "user-1", "tok-1", "alice")

	// Mutations on the returned copy must not leak into the store.
	updated, err := repo.Update(context.Background(), "tok-1", func(u *User) (bool, error) {
		u.TimeLogs = append(u.TimeLogs, LogEntry{Language: "go", Duration: 1})
		return true, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated.TimeLogs[0].Duration = 999

	stored, err := repo.GetByToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if stored.TimeLogs[0].Duration != 1 {
		t.Fatalf("external mutation leaked into the store: %+v", stored.TimeLogs)
	}
}

func TestMemoryRepositoryUpdateNoChange(t *testing.T) {
	repo := NewMemoryRepository()
	seedUser(t, repo, "user-1", "tok-1", "alice")

	_, err := repo.Update(context.Background(), "tok-1", func(u *User) (bool, error) {
		u.TotalTime = 42
		return false, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	stored, _ := repo.GetByToken(context.Background(), "tok-1")
	if stored.TotalTime != 0 {
		t.Fatalf("no-change update must not persist, got TotalTime=%d", stored.TotalTime)
	}
}

func TestMemoryRepositoryConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	repo := NewMemoryRepository()
	seedUser(t, repo, "user-1", "tok-1", "alice")

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := repo.Update(context.Background(), "tok-1", func(u *User) (bool, error) {
					u.TotalTime += 1
					return true, nil
				})
				if err != nil {
					t.Errorf("Update: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	stored, err := repo.GetByToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if stored.TotalTime != workers*perWorker {
		t.Fatalf("TotalTime = %d, want %d", stored.TotalTime, workers*perWorker)
	}
}

func TestMemoryRepositoryUpdateIdentity(t *testing.T) {
	repo := NewMemoryRepository()
	seedUser(t, repo, "user-1", "tok-1", "alice")
	seedUser(t, repo, "user-2", "tok-2", "bob")

	taken := "bob"
	err := repo.UpdateIdentity(context.Background(), "user-1", IdentityPatch{Username: &taken})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("renaming onto a taken username should conflict, got %v", err)
	}

	fresh := "alice-v2"
	if err := repo.UpdateIdentity(context.Background(), "user-1", IdentityPatch{Username: &fresh}); err != nil {
		t.Fatalf("UpdateIdentity: %v", err)
	}

	if _, err := repo.GetByUsername(context.Background(), "alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("old username should be released, got %v", err)
	}
	renamed, err := repo.GetByUsername(context.Background(), "alice-v2")
	if err != nil {
		t.Fatalf("renamed lookup: %v", err)
	}
	if !renamed.LastUpdated.IsZero() {
		t.Fatalf("identity patch must not touch LastUpdated, got %v", renamed.LastUpdated)
	}
}

func TestMemoryRepositoryTopByDailyTime(t *testing.T) {
	repo := NewMemoryRepository()
	users := []User{
		{UserID: "a", Token: "t-a", Username: "a", DailyTime: 100},
		{UserID: "b", Token: "t-b", Username: "b", DailyTime: 300},
		{UserID: "c", Token: "t-c", Username: "c", DailyTime: 300},
		{UserID: "d", Token: "t-d", Username: "d", DailyTime: 200},
	}
	for _, u := range users {
		if err := repo.Create(context.Background(), u); err != nil {
			t.Fatalf("Create(%s): %v", u.UserID, err)
		}
	}

	top, err := repo.TopByDailyTime(context.Background(), 3)
	if err != nil {
		t.Fatalf("TopByDailyTime: %v", err)
	}

	wantOrder := []string{"b", "c", "d"}
	if len(top) != len(wantOrder) {
		t.Fatalf("got %d entries, want %d", len(top), len(wantOrder))
	}
	for i, want := range wantOrder {
		if top[i].UserID != want {
			t.Fatalf("top[%d] = %s, want %s", i, top[i].UserID, want)
		}
	}
}
