package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/domain"
	pw "github.com/heishia/ppop-auth/internal/password"
	"github.com/heishia/ppop-auth/internal/repository"
)

const authorizationCodeTTL = 5 * time.Minute

// OAuthService implements the authorization-code grant for downstream
// client applications.
type OAuthService struct {
	clients repository.ClientRepository
	codes   repository.CodeRepository
	users   repository.UserRepository
	auth    *AuthService
	node    *snowflake.Node
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewOAuthService wires dependencies.
func NewOAuthService(clients repository.ClientRepository, codes repository.CodeRepository, users repository.UserRepository, auth *AuthService, node *snowflake.Node, logger *zap.Logger) *OAuthService {
	return &OAuthService{
		clients: clients,
		codes:   codes,
		users:   users,
		auth:    auth,
		node:    node,
		logger:  logger,
		tracer:  otel.Tracer("github.com/heishia/ppop-auth/internal/service"),
	}
}

// ValidateClient checks the client exists and registered the exact
// redirect URI. It runs before any redirect is emitted, so failures
// here are surfaced to the caller directly rather than sent to the
// unverified URI.
func (s *OAuthService) ValidateClient(ctx context.Context, clientID, redirectURI string) (domain.OAuthClient, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.ValidateClient")
	defer span.End()

	cleanClient := strings.TrimSpace(clientID)
	cleanRedirect := strings.TrimSpace(redirectURI)
	if cleanClient == "" || cleanRedirect == "" {
		return domain.OAuthClient{}, newOAuthError("invalid_request", "client_id and redirect_uri are required.", 400)
	}

	client, err := s.clients.GetByClientID(ctx, cleanClient)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			span.RecordError(err)
		}
		return domain.OAuthClient{}, newOAuthError("invalid_client", "Unknown client.", 400)
	}

	for _, allowed := range client.RedirectURIs {
		if allowed == cleanRedirect {
			return client, nil
		}
	}
	return domain.OAuthClient{}, newOAuthError("invalid_request", "redirect_uri is not registered for this client.", 400)
}

// Authorize issues an authorization code for an authenticated user and
// returns the full redirect target.
func (s *OAuthService) Authorize(ctx context.Context, userID int64, clientID, redirectURI, state string) (string, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.Authorize")
	defer span.End()

	client, err := s.ValidateClient(ctx, clientID, redirectURI)
	if err != nil {
		return "", err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return "", newOAuthError("invalid_request", "Unknown user.", 400)
	}

	record := domain.AuthorizationCode{
		ID:          s.node.Generate().Int64(),
		Code:        randomString(32),
		UserID:      user.ID,
		ClientID:    client.ClientID,
		RedirectURI: strings.TrimSpace(redirectURI),
		State:       state,
		ExpiresAt:   time.Now().Add(authorizationCodeTTL),
	}
	if err := s.codes.Create(ctx, record); err != nil {
		span.RecordError(err)
		return "", err
	}

	q := url.Values{}
	q.Set("code", record.Code)
	if state != "" {
		q.Set("state", state)
	}
	target := record.RedirectURI
	if strings.Contains(target, "?") {
		target += "&" + q.Encode()
	} else {
		target += "?" + q.Encode()
	}

	s.audit("authorization_code.issued", "user_id", user.ID, "client_id", client.ClientID)
	return target, nil
}

// ExchangeCode redeems an authorization code for a token pair. Client
// authentication failures never reveal whether the client id or the
// secret was wrong.
func (s *OAuthService) ExchangeCode(ctx context.Context, clientID, clientSecret, code, redirectURI string) (*AuthResponse, error) {
	ctx, span := s.startSpan(ctx, "OAuthService.ExchangeCode")
	defer span.End()

	client, err := s.clients.GetByClientID(ctx, strings.TrimSpace(clientID))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			span.RecordError(err)
		}
		return nil, newOAuthError("invalid_client", "Client authentication failed.", 401)
	}

	valid, err := pw.Verify(clientSecret, client.ClientSecretHash)
	if err != nil || !valid {
		s.log().Warn("client secret mismatch", zap.String("client_id", client.ClientID))
		return nil, newOAuthError("invalid_client", "Client authentication failed.", 401)
	}

	stored, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			span.RecordError(err)
		}
		return nil, newOAuthError("invalid_grant", "Invalid authorization code.", 400)
	}
	if stored.Used {
		s.audit("authorization_code.replayed", "client_id", client.ClientID)
		return nil, newOAuthError("invalid_grant", "Authorization code already used.", 400)
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, newOAuthError("invalid_grant", "Authorization code expired.", 400)
	}
	if stored.ClientID != client.ClientID {
		return nil, newOAuthError("invalid_grant", "Authorization code was issued to another client.", 400)
	}
	if stored.RedirectURI != strings.TrimSpace(redirectURI) {
		return nil, newOAuthError("invalid_grant", "Mismatched redirect_uri.", 400)
	}

	// The conditional flip is the commit point: of two concurrent
	// redemptions, the loser sees zero rows updated.
	if err := s.codes.MarkUsed(ctx, stored.Code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.audit("authorization_code.replayed", "client_id", client.ClientID)
			return nil, newOAuthError("invalid_grant", "Authorization code already used.", 400)
		}
		span.RecordError(err)
		return nil, err
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError("invalid_grant", "Invalid authorization code.", 400)
	}

	resp, err := s.auth.issueTokens(ctx, user)
	if err == nil {
		s.audit("code_exchange.success", "user_id", user.ID, "client_id", client.ClientID)
	}
	return resp, err
}

func (s *OAuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *OAuthService) audit(event string, attrs ...any) {
	auditLog(s.log(), event, attrs...)
}

func (s *OAuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
