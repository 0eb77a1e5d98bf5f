package service_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/domain"
	"github.com/heishia/ppop-auth/internal/password"
	"github.com/heishia/ppop-auth/internal/service"
)

const (
	testClientID     = "ppop_auth_client"
	testClientSecret = "s3cret"
	testRedirectURI  = "https://app.example.com/callback"
)

type oauthFixture struct {
	svc     *service.OAuthService
	users   *memoryUserRepo
	codes   *memoryCodeRepo
	clients *memoryClientRepo
	tokens  *memoryTokenRepo
}

func newOAuthFixture(t *testing.T) *oauthFixture {
	t.Helper()

	secretHash, err := password.Hash(testClientSecret)
	require.NoError(t, err)

	users := newMemoryUserRepo(domain.User{ID: 1, Email: "user@example.com", Status: domain.UserStatusActive})
	tokens := newMemoryTokenRepo()
	codes := newMemoryCodeRepo()
	clients := newMemoryClientRepo(domain.OAuthClient{
		ID:               100,
		ClientID:         testClientID,
		ClientSecretHash: secretHash,
		Name:             "PPOP Auth Client",
		RedirectURIs:     []string{testRedirectURI},
	})

	auth := newTestAuthService(t, users, tokens)
	svc := service.NewOAuthService(clients, codes, users, auth, newTestNode(t), zap.NewNop())
	return &oauthFixture{svc: svc, users: users, codes: codes, clients: clients, tokens: tokens}
}

func authorizeCode(t *testing.T, f *oauthFixture) string {
	t.Helper()
	target, err := f.svc.Authorize(context.Background(), 1, testClientID, testRedirectURI, "xyz")
	require.NoError(t, err)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	code := parsed.Query().Get("code")
	require.NotEmpty(t, code)
	require.Equal(t, "xyz", parsed.Query().Get("state"))
	return code
}

func TestAuthorizeAndExchange(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t)
	code := authorizeCode(t, f)

	resp, err := f.svc.ExchangeCode(ctx, testClientID, testClientSecret, code, testRedirectURI)
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, int64(1), resp.User.ID)
	require.Len(t, f.tokens.rows, 1)
}

func TestExchangeSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t)
	code := authorizeCode(t, f)

	_, err := f.svc.ExchangeCode(ctx, testClientID, testClientSecret, code, testRedirectURI)
	require.NoError(t, err)

	_, err = f.svc.ExchangeCode(ctx, testClientID, testClientSecret, code, testRedirectURI)
	requireOAuthError(t, err, "invalid_grant", 400)
}

func TestExchangeClientAuthentication(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t)
	code := authorizeCode(t, f)

	_, badSecret := f.svc.ExchangeCode(ctx, testClientID, "wrong", code, testRedirectURI)
	requireOAuthError(t, badSecret, "invalid_client", 401)

	_, badClient := f.svc.ExchangeCode(ctx, "ghost", testClientSecret, code, testRedirectURI)
	requireOAuthError(t, badClient, "invalid_client", 401)

	// A failed authentication must not tell the caller which half was
	// wrong, and must not consume the code.
	require.Equal(t, badSecret.Error(), badClient.Error())
	_, err := f.svc.ExchangeCode(ctx, testClientID, testClientSecret, code, testRedirectURI)
	require.NoError(t, err)
}

func TestExchangeExpiredCode(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t)

	require.NoError(t, f.codes.Create(ctx, domain.AuthorizationCode{
		ID:          1,
		Code:        "stale",
		UserID:      1,
		ClientID:    testClientID,
		RedirectURI: testRedirectURI,
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))

	_, err := f.svc.ExchangeCode(ctx, testClientID, testClientSecret, "stale", testRedirectURI)
	requireOAuthError(t, err, "invalid_grant", 400)
}

func TestExchangeRedirectMismatch(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t)
	code := authorizeCode(t, f)

	_, err := f.svc.ExchangeCode(ctx, testClientID, testClientSecret, code, "https://evil.example.com/callback")
	requireOAuthError(t, err, "invalid_grant", 400)
}

func TestExchangeForeignClientCode(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t)

	otherHash, err := password.Hash("other-secret")
	require.NoError(t, err)
	require.NoError(t, f.clients.Create(ctx, domain.OAuthClient{
		ID:               101,
		ClientID:         "other_client",
		ClientSecretHash: otherHash,
		RedirectURIs:     []string{testRedirectURI},
	}))

	code := authorizeCode(t, f)
	_, err = f.svc.ExchangeCode(ctx, "other_client", "other-secret", code, testRedirectURI)
	requireOAuthError(t, err, "invalid_grant", 400)
}

func TestValidateClient(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t)

	_, err := f.svc.ValidateClient(ctx, testClientID, testRedirectURI)
	require.NoError(t, err)

	_, err = f.svc.ValidateClient(ctx, testClientID, "https://evil.example.com/callback")
	requireOAuthError(t, err, "invalid_request", 400)

	_, err = f.svc.ValidateClient(ctx, "ghost", testRedirectURI)
	requireOAuthError(t, err, "invalid_client", 400)

	_, err = f.svc.ValidateClient(ctx, "", "")
	requireOAuthError(t, err, "invalid_request", 400)

	// Prefix matches are not registrations.
	_, err = f.svc.ValidateClient(ctx, testClientID, testRedirectURI+"/extra")
	requireOAuthError(t, err, "invalid_request", 400)
}
