package handler_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/domain"
	httpHandler "github.com/heishia/ppop-auth/internal/http/handler"
	httpmiddleware "github.com/heishia/ppop-auth/internal/http/middleware"
	"github.com/heishia/ppop-auth/internal/jwt"
	"github.com/heishia/ppop-auth/internal/keys"
	"github.com/heishia/ppop-auth/internal/repository"
	"github.com/heishia/ppop-auth/internal/service"
)

func newTestMaterial(t *testing.T) *keys.Material {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	material, err := keys.Load(string(privPEM), "", string(pubPEM), "")
	require.NoError(t, err)
	return material
}

func TestJWKSHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	material := newTestMaterial(t)
	issuer := jwt.NewIssuer(material, 900, 3600)
	h := httpHandler.NewOAuthHandler(nil, issuer, material, "https://app.example.com/login", zap.NewNop())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "https://auth.example.com/.well-known/jwks.json", nil)

	h.JWKS(c)

	res := w.Result()
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), `"keys"`)
	require.Contains(t, string(body), material.KID())
	// The private exponent must never appear in the published set.
	require.NotContains(t, string(body), `"d"`)
}

type staticClientRepo struct {
	client domain.OAuthClient
}

func (r *staticClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.OAuthClient, error) {
	if clientID == r.client.ClientID {
		return r.client, nil
	}
	return domain.OAuthClient{}, repository.ErrNotFound
}

func (r *staticClientRepo) Create(context.Context, domain.OAuthClient) error { return nil }

func TestAuthorizeRejectsUnregisteredRedirectURI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clients := &staticClientRepo{client: domain.OAuthClient{
		ID:           1,
		ClientID:     "ppop_auth_client",
		RedirectURIs: []string{"https://app.example.com/cb"},
	}}
	oauth := service.NewOAuthService(clients, nil, nil, nil, nil, zap.NewNop())
	material := newTestMaterial(t)
	issuer := jwt.NewIssuer(material, 900, 3600)
	h := httpHandler.NewOAuthHandler(oauth, issuer, material, "https://app.example.com/login", zap.NewNop())

	q := url.Values{}
	q.Set("client_id", "ppop_auth_client")
	q.Set("redirect_uri", "https://evil.example/cb")
	q.Set("response_type", "code")
	q.Set("state", "s1")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "https://auth.example.com/oauth/authorize?"+q.Encode(), nil)

	h.Authorize(c)

	res := w.Result()
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()

	// An unregistered URI gets a direct error, never a redirect that
	// would carry a code or error to it.
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Empty(t, res.Header.Get("Location"))
	require.Contains(t, string(body), "invalid_request")
}

func TestTokenHandlerUnsupportedGrant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	material := newTestMaterial(t)
	issuer := jwt.NewIssuer(material, 900, 3600)
	h := httpHandler.NewOAuthHandler(nil, issuer, material, "https://app.example.com/login", zap.NewNop())

	form := url.Values{}
	form.Set("grant_type", "password")
	req := httptest.NewRequest(http.MethodPost, "https://auth.example.com/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Token(c)

	res := w.Result()
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()

	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Contains(t, string(body), "unsupported_grant_type")
}

func TestValidateJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := jwt.NewIssuer(newTestMaterial(t), 900, 3600)
	auth := &httpmiddleware.Auth{Issuer: issuer}

	r := gin.New()
	r.GET("/protected", auth.ValidateJWT, func(c *gin.Context) {
		claims, ok := httpmiddleware.GetClaims(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})

	pair, err := issuer.Issue(42, "user@example.com")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid access token", "Bearer " + pair.AccessToken, http.StatusOK},
		{"refresh token rejected", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, tc.status, w.Code, tc.name)
	}
}
