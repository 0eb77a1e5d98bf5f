package repository

import (
	"context"
	"errors"
	"time"

	"github.com/heishia/ppop-auth/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row, and by
// conditional writes that affected nothing. Callers branch on it with
// errors.Is rather than inspecting driver errors.
var ErrNotFound = errors.New("repository: not found")

// UserRepository exposes persistence for user accounts.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	GetByPhone(ctx context.Context, phone string) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
}

// RefreshTokenRepository stores hashes of live refresh tokens. Rotation
// and logout remove rows; there is no update path.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]domain.RefreshToken, error)
	Delete(ctx context.Context, tokenID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CodeRepository manages authorization codes.
type CodeRepository interface {
	Create(ctx context.Context, code domain.AuthorizationCode) error
	GetByCode(ctx context.Context, code string) (domain.AuthorizationCode, error)
	// MarkUsed flips used to true only if it is still false, returning
	// ErrNotFound otherwise. Concurrent redeemers race on this write and
	// exactly one wins.
	MarkUsed(ctx context.Context, code string) error
}

// ClientRepository exposes registered OAuth client metadata.
type ClientRepository interface {
	GetByClientID(ctx context.Context, clientID string) (domain.OAuthClient, error)
	Create(ctx context.Context, client domain.OAuthClient) error
}

// SocialAccountRepository links external identities to local users.
type SocialAccountRepository interface {
	GetByProviderUser(ctx context.Context, provider, providerUserID string) (domain.SocialAccount, error)
	Create(ctx context.Context, account domain.SocialAccount) error
}

// StateStore holds short-lived social login state, keyed by the state
// value itself. GetState returns (nil, nil) when the key is absent or
// already expired.
type StateStore interface {
	SaveState(ctx context.Context, state domain.OAuthState, ttl time.Duration) error
	GetState(ctx context.Context, state string) (*domain.OAuthState, error)
	DeleteState(ctx context.Context, state string) error
}

// SubscriptionRepository stores per-service billing state.
type SubscriptionRepository interface {
	GetByUserAndService(ctx context.Context, userID int64, serviceCode string) (domain.Subscription, error)
	Upsert(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
}
