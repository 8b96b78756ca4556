package tracker

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const userTimesCollection = "user_times"

type firestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository instantiates a Firestore-backed user repository.
// Documents are keyed by userID; token and username lookups go through
// single-result queries (both fields are immutable or provider-owned).
func NewFirestoreRepository(client *firestore.Client) Repository {
	return &firestoreRepository{client: client}
}

func (r *firestoreRepository) users() *firestore.CollectionRef {
	return r.client.Collection(userTimesCollection)
}

func (r *firestoreRepository) GetByToken(ctx context.Context, token string) (User, error) {
	return r.findOne(ctx, r.users().Where("token", "==", token).Limit(1))
}

func (r *firestoreRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	return r.findOne(ctx, r.users().Where("username", "==", username).Limit(1))
}

func (r *firestoreRepository) GetByUserID(ctx context.Context, userID string) (User, error) {
	doc, err := r.users().Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return snapshotToUser(doc)
}

func (r *firestoreRepository) Create(ctx context.Context, user User) error {
	_, err := r.users().Doc(user.UserID).Create(ctx, user)
	if status.Code(err) == codes.AlreadyExists {
		return ErrConflict
	}
	return err
}

func (r *firestoreRepository) Delete(ctx context.Context, userID string) error {
	ref := r.users().Doc(userID)
	if _, err := ref.Get(ctx); status.Code(err) == codes.NotFound {
		return ErrUserNotFound
	} else if err != nil {
		return err
	}
	_, err := ref.Delete(ctx)
	return err
}

func (r *firestoreRepository) UpdateIdentity(ctx context.Context, userID string, patch IdentityPatch) error {
	var updates []firestore.Update
	if patch.Username != nil {
		updates = append(updates, firestore.Update{Path: "username", Value: *patch.Username})
	}
	if patch.Fullname != nil {
		updates = append(updates, firestore.Update{Path: "fullname", Value: *patch.Fullname})
	}
	if patch.PfpURL != nil {
		updates = append(updates, firestore.Update{Path: "pfp_url", Value: *patch.PfpURL})
	}
	if len(updates) == 0 {
		_, err := r.GetByUserID(ctx, userID)
		return err
	}

	_, err := r.users().Doc(userID).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrUserNotFound
	}
	return err
}

func (r *firestoreRepository) UpdateAbout(ctx context.Context, userID, about string) (User, error) {
	ref := r.users().Doc(userID)
	_, err := ref.Update(ctx, []firestore.Update{{Path: "about", Value: about}})
	if status.Code(err) == codes.NotFound {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return r.GetByUserID(ctx, userID)
}

// Update runs the read-modify-write inside a Firestore transaction: the
// snapshot read is revalidated at commit, so concurrent submissions for the
// same user abort and get re-run rather than losing writes. The whole
// document is written back in one Set, making the multi-field update
// atomically visible.
func (r *firestoreRepository) Update(ctx context.Context, token string, mutate func(*User) (bool, error)) (User, error) {
	ref, err := r.resolveToken(ctx, token)
	if err != nil {
		return User{}, err
	}

	var out User
	err = r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		user, err := snapshotToUser(doc)
		if err != nil {
			return err
		}

		changed, err := mutate(&user)
		if err != nil {
			return err
		}
		out = user

		if !changed {
			return nil
		}
		return tx.Set(ref, user)
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

// resolveToken maps a capability token to its document ref with a keys-only
// query. Tokens are immutable, so resolving outside the transaction is safe.
func (r *firestoreRepository) resolveToken(ctx context.Context, token string) (*firestore.DocumentRef, error) {
	iter := r.users().Where("token", "==", token).Select().Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Ref, nil
}

func (r *firestoreRepository) TopByDailyTime(ctx context.Context, limit int) ([]User, error) {
	iter := r.users().
		OrderBy("daily_time", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	users := make([]User, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		user, err := snapshotToUser(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (r *firestoreRepository) findOne(ctx context.Context, query firestore.Query) (User, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return snapshotToUser(doc)
}

func snapshotToUser(doc *firestore.DocumentSnapshot) (User, error) {
	var user User
	if err := doc.DataTo(&user); err != nil {
		return User{}, fmt.Errorf("unmarshal user %s: %w", doc.Ref.ID, err)
	}
	return user, nil
}
