package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/heishia/ppop-auth/internal/keys"
)

// Token types carried in the "type" claim. A refresh token is never
// accepted where an access token is required, and vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Verification failures, checked with errors.Is.
var (
	ErrBadSignature = errors.New("jwt: signature verification failed")
	ErrExpired      = errors.New("jwt: token expired")
	ErrWrongType    = errors.New("jwt: wrong token type")
)

// Claims is the validated payload of a verified token. Fields are
// enforced at parse time so a token missing "type" can never slip
// through as either kind.
type Claims struct {
	UserID    int64
	Email     string
	Type      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type customClaims struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

// TokenPair bundles a freshly issued access/refresh pair. ExpiresIn is
// the access token lifetime in whole seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Issuer signs and validates RS256 tokens using the process keypair.
type Issuer struct {
	material   *keys.Material
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer constructs a token issuer. TTLs are whole seconds.
func NewIssuer(material *keys.Material, accessSeconds, refreshSeconds int) *Issuer {
	return &Issuer{
		material:   material,
		accessTTL:  time.Duration(accessSeconds) * time.Second,
		refreshTTL: time.Duration(refreshSeconds) * time.Second,
	}
}

// Issue mints a signed access/refresh pair for the user. The caller is
// responsible for persisting the refresh token's hash.
func (i *Issuer) Issue(userID int64, email string) (TokenPair, error) {
	access, err := i.sign(userID, email, TypeAccess, i.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := i.sign(userID, email, TypeRefresh, i.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(i.accessTTL.Seconds()),
	}, nil
}

// RefreshExpiresAt returns the expiry for a refresh token issued now.
func (i *Issuer) RefreshExpiresAt(now time.Time) time.Time {
	return now.Add(i.refreshTTL)
}

func (i *Issuer) sign(userID int64, email, typ string, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.RS256, Key: i.material.Private()},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", i.material.KID()),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:  strconv.FormatInt(userID, 10),
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(ttl)),
	}
	custom := customClaims{Email: email, Type: typ}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Verify checks the signature against the public key, then expiry, then
// the type claim. Type is only trusted after the signature holds.
func (i *Issuer) Verify(token, expectedType string) (*Claims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.RS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(i.material.Public(), &std, &custom); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	now := time.Now()
	if std.Expiry == nil || std.Expiry.Time().Before(now) {
		return nil, ErrExpired
	}
	if custom.Type != expectedType {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongType, custom.Type, expectedType)
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: invalid subject", ErrBadSignature)
	}

	claims := &Claims{
		UserID:    userID,
		Email:     custom.Email,
		Type:      custom.Type,
		ExpiresAt: std.Expiry.Time(),
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	return claims, nil
}
