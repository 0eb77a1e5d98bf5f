package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/domain"
	"github.com/heishia/ppop-auth/internal/jwt"
	"github.com/heishia/ppop-auth/internal/keys"
	"github.com/heishia/ppop-auth/internal/repository"
	"github.com/heishia/ppop-auth/internal/service"
)

func newTestIssuer(t *testing.T) *jwt.Issuer {
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
	return jwt.NewIssuer(material, 900, 3600)
}

func newTestNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func newTestAuthService(t *testing.T, users *memoryUserRepo, tokens *memoryTokenRepo) *service.AuthService {
	t.Helper()
	return service.NewAuthService(users, tokens, newTestNode(t), newTestIssuer(t), zap.NewNop())
}

func requireOAuthError(t *testing.T, err error, code string, status int) {
	t.Helper()
	var oe *service.OAuthError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, code, oe.Code)
	require.Equal(t, status, oe.Status)
}

// In-memory repository fakes. They return repository.ErrNotFound the
// way the Postgres implementations do.

type memoryUserRepo struct {
	users map[int64]domain.User
}

func newMemoryUserRepo(seed ...domain.User) *memoryUserRepo {
	m := &memoryUserRepo{users: map[int64]domain.User{}}
	for _, u := range seed {
		m.users[u.ID] = u
	}
	return m
}

func (m *memoryUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *memoryUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *memoryUserRepo) GetByPhone(ctx context.Context, phone string) (domain.User, error) {
	for _, u := range m.users {
		if u.Phone != "" && u.Phone == phone {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *memoryUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

type memoryTokenRepo struct {
	rows map[int64]domain.RefreshToken
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{rows: map[int64]domain.RefreshToken{}}
}

func (m *memoryTokenRepo) Create(ctx context.Context, token domain.RefreshToken) error {
	token.CreatedAt = time.Now()
	m.rows[token.ID] = token
	return nil
}

func (m *memoryTokenRepo) ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]domain.RefreshToken, error) {
	var out []domain.RefreshToken
	for _, row := range m.rows {
		if row.UserID == userID && row.ExpiresAt.After(now) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryTokenRepo) Delete(ctx context.Context, tokenID int64) error {
	if _, ok := m.rows[tokenID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rows, tokenID)
	return nil
}

func (m *memoryTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, row := range m.rows {
		if !row.ExpiresAt.After(now) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

type memoryCodeRepo struct {
	codes map[string]domain.AuthorizationCode
}

func newMemoryCodeRepo() *memoryCodeRepo {
	return &memoryCodeRepo{codes: map[string]domain.AuthorizationCode{}}
}

func (m *memoryCodeRepo) Create(ctx context.Context, code domain.AuthorizationCode) error {
	code.CreatedAt = time.Now()
	m.codes[code.Code] = code
	return nil
}

func (m *memoryCodeRepo) GetByCode(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	if c, ok := m.codes[code]; ok {
		return c, nil
	}
	return domain.AuthorizationCode{}, repository.ErrNotFound
}

func (m *memoryCodeRepo) MarkUsed(ctx context.Context, code string) error {
	c, ok := m.codes[code]
	if !ok || c.Used {
		return repository.ErrNotFound
	}
	c.Used = true
	m.codes[code] = c
	return nil
}

type memoryClientRepo struct {
	clients map[string]domain.OAuthClient
}

func newMemoryClientRepo(seed ...domain.OAuthClient) *memoryClientRepo {
	m := &memoryClientRepo{clients: map[string]domain.OAuthClient{}}
	for _, c := range seed {
		m.clients[c.ClientID] = c
	}
	return m
}

func (m *memoryClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.OAuthClient, error) {
	if c, ok := m.clients[clientID]; ok {
		return c, nil
	}
	return domain.OAuthClient{}, repository.ErrNotFound
}

func (m *memoryClientRepo) Create(ctx context.Context, client domain.OAuthClient) error {
	m.clients[client.ClientID] = client
	return nil
}

type memorySocialRepo struct {
	accounts []domain.SocialAccount
}

func (m *memorySocialRepo) GetByProviderUser(ctx context.Context, provider, providerUserID string) (domain.SocialAccount, error) {
	for _, a := range m.accounts {
		if a.Provider == provider && a.ProviderUserID == providerUserID {
			return a, nil
		}
	}
	return domain.SocialAccount{}, repository.ErrNotFound
}

func (m *memorySocialRepo) Create(ctx context.Context, account domain.SocialAccount) error {
	m.accounts = append(m.accounts, account)
	return nil
}

type memoryStateStore struct {
	states map[string]domain.OAuthState
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: map[string]domain.OAuthState{}}
}

func (m *memoryStateStore) SaveState(ctx context.Context, state domain.OAuthState, ttl time.Duration) error {
	m.states[state.State] = state
	return nil
}

func (m *memoryStateStore) GetState(ctx context.Context, state string) (*domain.OAuthState, error) {
	if s, ok := m.states[state]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memoryStateStore) DeleteState(ctx context.Context, state string) error {
	delete(m.states, state)
	return nil
}

type memorySubscriptionRepo struct {
	subs map[string]domain.Subscription
}

func newMemorySubscriptionRepo() *memorySubscriptionRepo {
	return &memorySubscriptionRepo{subs: map[string]domain.Subscription{}}
}

func subKey(userID int64, serviceCode string) string {
	return fmt.Sprintf("%d/%s", userID, serviceCode)
}

func (m *memorySubscriptionRepo) GetByUserAndService(ctx context.Context, userID int64, serviceCode string) (domain.Subscription, error) {
	if s, ok := m.subs[subKey(userID, serviceCode)]; ok {
		return s, nil
	}
	return domain.Subscription{}, repository.ErrNotFound
}

func (m *memorySubscriptionRepo) Upsert(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	key := subKey(sub.UserID, sub.ServiceCode)
	if existing, ok := m.subs[key]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		sub.CreatedAt = time.Now()
	}
	sub.UpdatedAt = time.Now()
	m.subs[key] = sub
	return sub, nil
}
