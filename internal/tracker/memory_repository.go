package tracker

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu        sync.RWMutex
	users     map[string]User   // userID -> User
	tokens    map[string]string // token -> userID
	usernames map[string]string // username -> userID
}

// NewMemoryRepository returns an in-memory repository intended for local
// development and tests. The single mutex serializes read-modify-writes,
// which is the same lost-update guarantee the Firestore transaction gives.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		users:     make(map[string]User),
		tokens:    make(map[string]string),
		usernames: make(map[string]string),
	}
}

func (r *memoryRepository) GetByToken(_ context.Context, token string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.tokens[token]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return cloneUser(r.users[userID]), nil
}

func (r *memoryRepository) GetByUserID(_ context.Context, userID string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *memoryRepository) GetByUsername(_ context.Context, username string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.usernames[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return cloneUser(r.users[userID]), nil
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.UserID]; exists {
		return ErrConflict
	}
	if _, exists := r.tokens[user.Token]; exists {
		return ErrConflict
	}
	if _, exists := r.usernames[user.Username]; exists {
		return ErrConflict
	}

	r.users[user.UserID] = cloneUser(user)
	r.tokens[user.Token] = user.UserID
	r.usernames[user.Username] = user.UserID
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	delete(r.users, userID)
	delete(r.tokens, user.Token)
	delete(r.usernames, user.Username)
	return nil
}

func (r *memoryRepository) UpdateIdentity(_ context.Context, userID string, patch IdentityPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	if patch.Username != nil && *patch.Username != user.Username {
		if _, taken := r.usernames[*patch.Username]; taken {
			return ErrConflict
		}
		delete(r.usernames, user.Username)
		user.Username = *patch.Username
		r.usernames[user.Username] = userID
	}
	if patch.Fullname != nil {
		user.Fullname = *patch.Fullname
	}
	if patch.PfpURL != nil {
		user.PfpURL = *patch.PfpURL
	}

	r.users[userID] = user
	return nil
}

func (r *memoryRepository) UpdateAbout(_ context.Context, userID, about string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	user.About = about
	r.users[userID] = user
	return cloneUser(user), nil
}

func (r *memoryRepository) Update(_ context.Context, token string, mutate func(*User) (bool, error)) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.tokens[token]
	if !ok {
		return User{}, ErrUserNotFound
	}

	user := cloneUser(r.users[userID])
	changed, err := mutate(&user)
	if err != nil {
		return User{}, err
	}
	if changed {
		r.users[userID] = cloneUser(user)
	}
	return user, nil
}

func (r *memoryRepository) TopByDailyTime(_ context.Context, limit int) ([]User, error) {
	r.mu.RLock()
	snapshot := make([]User, 0, len(r.users))
	for _, user := range r.users {
		snapshot = append(snapshot, cloneUser(user))
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].DailyTime != snapshot[j].DailyTime {
			return snapshot[i].DailyTime > snapshot[j].DailyTime
		}
		return snapshot[i].UserID < snapshot[j].UserID
	})

	if len(snapshot) > limit {
		snapshot = snapshot[:limit]
	}
	return snapshot, nil
}

func cloneUser(u User) User {
	clone := u
	clone.TimeLogs = make([]LogEntry, len(u.TimeLogs))
	copy(clone.TimeLogs, u.TimeLogs)
	if u.LanguageTime != nil {
		clone.LanguageTime = make(map[string]LanguageStats, len(u.LanguageTime))
		for lang, stats := range u.LanguageTime {
			clone.LanguageTime[lang] = stats
		}
	}
	return clone
}
