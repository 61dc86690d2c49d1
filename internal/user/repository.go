package user

import (
	"context"
	"errors"
	"fmt"

	"admin-chat/internal/tree"
)

var ErrInvalidUID = errors.New("invalid user id")

type Repository struct {
	store tree.Store
}

func NewRepository(store tree.Store) *Repository {
	return &Repository{store: store}
}

// GetProfile reads users/{uid}. A missing record is not an error: the
// profile comes back empty and DisplayName falls through to the default.
func (r *Repository) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	if uid == "" {
		return nil, ErrInvalidUID
	}
	snap, err := r.store.Get(ctx, tree.Join("users", uid))
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}

	return &Profile{
		UID:          uid,
		FirstName:    snap.Child("firstName").StringValue(),
		LastName:     snap.Child("lastName").StringValue(),
		Email:        snap.Child("email").StringValue(),
		ProfileImage: snap.Child("profileImage").StringValue(),
	}, nil
}
