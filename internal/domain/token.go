package domain

import "time"

// RefreshToken persists the hash of an issued refresh token. The raw
// token string is never stored; rotation deletes the row and issues a
// replacement, so at most one row exists per live token.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// AuthorizationCode is a single-use, short-lived code issued during the
// authorization-code grant. Used flips false→true exactly once.
type AuthorizationCode struct {
	ID          int64
	Code        string
	UserID      int64
	ClientID    string
	RedirectURI string
	State       string
	ExpiresAt   time.Time
	Used        bool
	CreatedAt   time.Time
}

// OAuthClient is a registered downstream client application. RedirectURIs
// is an exact-match allow-list.
type OAuthClient struct {
	ID               int64
	ClientID         string
	ClientSecretHash string
	Name             string
	RedirectURIs     []string
	CreatedAt        time.Time
}
