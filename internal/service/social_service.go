package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/adapter/social"
	"github.com/heishia/ppop-auth/internal/domain"
	pw "github.com/heishia/ppop-auth/internal/password"
	"github.com/heishia/ppop-auth/internal/repository"
)

const socialStateTTL = 10 * time.Minute

// SocialService brokers login against external identity providers and
// maps provider identities onto local accounts.
type SocialService struct {
	users     repository.UserRepository
	socials   repository.SocialAccountRepository
	states    repository.StateStore
	providers social.ProviderClient
	auth      *AuthService
	node      *snowflake.Node
	serverURL string
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewSocialService wires dependencies. serverURL is this server's
// external base URL; provider callback URIs are derived from it.
func NewSocialService(users repository.UserRepository, socials repository.SocialAccountRepository, states repository.StateStore, providers social.ProviderClient, auth *AuthService, node *snowflake.Node, serverURL string, logger *zap.Logger) *SocialService {
	return &SocialService{
		users:     users,
		socials:   socials,
		states:    states,
		providers: providers,
		auth:      auth,
		node:      node,
		serverURL: serverURL,
		logger:    logger,
		tracer:    otel.Tracer("github.com/heishia/ppop-auth/internal/service"),
	}
}

func (s *SocialService) callbackURI(provider string) string {
	return s.serverURL + "/auth/social/" + provider + "/callback"
}

// StartLogin creates an anti-forgery state and returns the provider
// authorization URL to redirect the browser to.
func (s *SocialService) StartLogin(ctx context.Context, provider string) (authorizeURL, state string, err error) {
	ctx, span := s.startSpan(ctx, "SocialService.StartLogin")
	defer span.End()

	state = randomString(16)
	target, err := s.providers.AuthorizeURL(provider, s.callbackURI(provider), state)
	if err != nil {
		if errors.Is(err, social.ErrUnknownProvider) {
			return "", "", newOAuthError("invalid_request", "Unsupported provider.", 400)
		}
		span.RecordError(err)
		return "", "", err
	}

	record := domain.OAuthState{State: state, Provider: provider, CreatedAt: time.Now().UTC()}
	if err := s.states.SaveState(ctx, record, socialStateTTL); err != nil {
		span.RecordError(err)
		return "", "", err
	}

	s.audit("social.login.start", "provider", provider)
	return target, state, nil
}

// HandleCallback completes a provider round-trip: it validates state,
// exchanges the code, resolves the local account and signs the user in.
func (s *SocialService) HandleCallback(ctx context.Context, provider, code, state, providerErr string) (*AuthResponse, error) {
	ctx, span := s.startSpan(ctx, "SocialService.HandleCallback")
	defer span.End()

	if providerErr != "" {
		return nil, newOAuthError("access_denied", "Provider reported: "+providerErr, 401)
	}
	if code == "" {
		return nil, newOAuthError("invalid_request", "Authorization code missing.", 400)
	}

	stored, err := s.states.GetState(ctx, state)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if stored == nil || stored.State != state || stored.Provider != provider {
		s.audit("social.state.mismatch", "provider", provider)
		return nil, newOAuthError("invalid_state", "Login state is invalid or expired.", 401)
	}

	accessToken, err := s.providers.ExchangeCode(ctx, provider, code, s.callbackURI(provider))
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError("invalid_grant", "Provider code exchange failed.", 401)
	}

	profile, err := s.providers.FetchProfile(ctx, provider, accessToken)
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError("invalid_grant", "Provider profile lookup failed.", 401)
	}
	if profile.Email == "" {
		return nil, newOAuthError("email_required", "Provider account has no email.", 400)
	}

	user, err := s.findOrCreateUser(ctx, profile)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if user.Status == domain.UserStatusBanned {
		return nil, newOAuthError("account_banned", "This account is suspended.", 403)
	}

	if err := s.states.DeleteState(ctx, state); err != nil {
		s.log().Warn("delete social state failed", zap.Error(err))
	}

	resp, err := s.auth.issueTokens(ctx, user)
	if err == nil {
		s.audit("social.login.success", "provider", provider, "user_id", user.ID)
	}
	return resp, err
}

// findOrCreateUser resolves the provider identity in order: an existing
// link wins, then an account with the same email gets linked, then a
// fresh account is created. Accounts created here carry a random
// password hash that is never disclosed.
func (s *SocialService) findOrCreateUser(ctx context.Context, profile domain.SocialProfile) (domain.User, error) {
	link, err := s.socials.GetByProviderUser(ctx, profile.Provider, profile.ProviderUserID)
	if err == nil {
		return s.users.GetByID(ctx, link.UserID)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, err
	}

	email := normalizeEmail(profile.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		if err := s.createLink(ctx, user.ID, profile); err != nil {
			return domain.User{}, err
		}
		s.audit("social.account.linked", "provider", profile.Provider, "user_id", user.ID)
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, err
	}

	placeholder, err := pw.Hash(randomString(32))
	if err != nil {
		return domain.User{}, err
	}
	user, err = s.users.Create(ctx, domain.User{
		ID:            s.node.Generate().Int64(),
		Email:         email,
		EmailVerified: true,
		PasswordHash:  placeholder,
		Name:          profile.Name,
		Status:        domain.UserStatusActive,
	})
	if err != nil {
		return domain.User{}, err
	}
	if err := s.createLink(ctx, user.ID, profile); err != nil {
		return domain.User{}, err
	}
	s.audit("social.account.created", "provider", profile.Provider, "user_id", user.ID)
	return user, nil
}

func (s *SocialService) createLink(ctx context.Context, userID int64, profile domain.SocialProfile) error {
	return s.socials.Create(ctx, domain.SocialAccount{
		ID:             s.node.Generate().Int64(),
		UserID:         userID,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
	})
}

func (s *SocialService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *SocialService) audit(event string, attrs ...any) {
	auditLog(s.log(), event, attrs...)
}

func (s *SocialService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
