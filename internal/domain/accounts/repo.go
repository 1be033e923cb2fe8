package accounts

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params url.Values, limit, offset int) ([]*User, int, error)
}

// ProfileLoader resolves the patient or doctor profile of a user. It is
// implemented outside this package; nil means users carry no profile.
type ProfileLoader interface {
	LoadProfile(ctx context.Context, userID uuid.UUID, detail bool) (*Profile, error)
}
