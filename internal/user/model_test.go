package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"admin-chat/internal/tree"

	"go.uber.org/zap/zaptest"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		profile *Profile
		want    string
	}{
		{"full name", &Profile{FirstName: "Ann", LastName: "Lee", Email: "a@b.c"}, "Ann Lee"},
		{"first only", &Profile{FirstName: "Ann", Email: "a@b.c"}, "Ann"},
		{"last only falls to email", &Profile{LastName: "Lee", Email: "a@b.c"}, "a@b.c"},
		{"email", &Profile{Email: " a@b.c "}, "a@b.c"},
		{"nothing", &Profile{}, DefaultDisplayName},
		{"nil", nil, DefaultDisplayName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepositoryGetProfile(t *testing.T) {
	ctx := context.Background()
	store := tree.NewMemory(zaptest.NewLogger(t))
	defer store.Close()
	store.Set(ctx, "users/u1", map[string]any{
		"firstName":    "Ann",
		"lastName":     "Lee",
		"email":        "ann@shop.io",
		"profileImage": "http://img/ann.png",
		"phone":        12345,
	})
	repo := NewRepository(store)

	p, err := repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := Profile{UID: "u1", FirstName: "Ann", LastName: "Lee", Email: "ann@shop.io", ProfileImage: "http://img/ann.png"}
	if *p != want {
		t.Errorf("profile = %+v", p)
	}
	if s := p.Summary(); s.DisplayName != "Ann Lee" || s.AvatarURL != want.ProfileImage {
		t.Errorf("summary = %+v", s)
	}

	missing, err := repo.GetProfile(ctx, "ghost")
	if err != nil || missing.DisplayName() != DefaultDisplayName {
		t.Errorf("missing profile = %+v, %v", missing, err)
	}

	if _, err := repo.GetProfile(ctx, ""); !errors.Is(err, ErrInvalidUID) {
		t.Errorf("empty uid err = %v", err)
	}
}

func TestTokens(t *testing.T) {
	s := NewService(nil, "test-secret")

	token, err := s.IssueToken("u42", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	uid, err := s.ValidateToken(token)
	if err != nil || uid != "u42" {
		t.Errorf("ValidateToken = %q, %v", uid, err)
	}

	expired, _ := s.IssueToken("u42", -time.Minute)
	if _, err := s.ValidateToken(expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token err = %v", err)
	}

	other := NewService(nil, "other-secret")
	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token err = %v", err)
	}
}
