package domain

import "time"

// SocialAccount links a (provider, providerUserId) pair to a local user.
// A given pair maps to at most one user.
type SocialAccount struct {
	ID             int64
	UserID         int64
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// SocialProfile is the normalized profile returned by an external
// identity provider.
type SocialProfile struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
}

// OAuthState is the anti-forgery payload persisted between the social
// login start redirect and the provider callback.
type OAuthState struct {
	State     string    `json:"state"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"createdAt"`
}
