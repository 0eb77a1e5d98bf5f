package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/domain"
	"github.com/heishia/ppop-auth/internal/jwt"
	pw "github.com/heishia/ppop-auth/internal/password"
	"github.com/heishia/ppop-auth/internal/repository"
)

// RegisterInput carries the fields accepted at signup. Email and
// Password are required; the rest are optional profile data.
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Birthdate string
	Phone     string
}

// AuthService implements credential authentication and the refresh
// token lifecycle.
type AuthService struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	node   *snowflake.Node
	issuer *jwt.Issuer
	logger *zap.Logger
	tracer trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(users repository.UserRepository, tokens repository.RefreshTokenRepository, node *snowflake.Node, issuer *jwt.Issuer, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		node:   node,
		issuer: issuer,
		logger: logger,
		tracer: otel.Tracer("github.com/heishia/ppop-auth/internal/service"),
	}
}

// Register creates a user with a password credential and signs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, newOAuthError("invalid_request", "Email and password are required.", 400)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, newOAuthError("email_exists", "Email already registered.", 409)
	} else if !errors.Is(err, repository.ErrNotFound) {
		span.RecordError(err)
		return nil, err
	}

	phone := strings.TrimSpace(in.Phone)
	if phone != "" {
		if _, err := s.users.GetByPhone(ctx, phone); err == nil {
			return nil, newOAuthError("phone_exists", "Phone number already registered.", 409)
		} else if !errors.Is(err, repository.ErrNotFound) {
			span.RecordError(err)
			return nil, err
		}
	}

	hash, err := pw.Hash(in.Password)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	user, err := s.users.Create(ctx, domain.User{
		ID:           s.node.Generate().Int64(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Birthdate:    strings.TrimSpace(in.Birthdate),
		Phone:        phone,
		Status:       domain.UserStatusActive,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp, err := s.issueTokens(ctx, user)
	if err == nil {
		s.audit("register.success", "user_id", user.ID)
	}
	return resp, err
}

// Login authenticates with email and password. A missing account and a
// wrong password produce the same error. Suspension is reported before
// the password is checked.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError("invalid_grant", "Wrong email or password.", 401)
	}

	if user.Status == domain.UserStatusBanned {
		return nil, newOAuthError("account_banned", "This account is suspended.", 403)
	}

	valid, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		return nil, newOAuthError("invalid_grant", "Wrong email or password.", 401)
	}

	resp, err := s.issueTokens(ctx, user)
	if err == nil {
		s.audit("login.success", "user_id", user.ID)
	}
	return resp, err
}

// Refresh rotates the presented refresh token. A token whose hash no
// longer matches a stored row was already rotated or revoked, which
// also covers replay of a stolen predecessor.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	claims, err := s.issuer.Verify(refreshToken, jwt.TypeRefresh)
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError("invalid_grant", "Invalid refresh token.", 401)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError("invalid_grant", "Invalid refresh token.", 401)
	}
	if user.Status == domain.UserStatusBanned {
		return nil, newOAuthError("account_banned", "This account is suspended.", 403)
	}

	matched, err := s.matchStoredToken(ctx, user.ID, refreshToken)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if matched == nil {
		s.audit("refresh.reuse_detected", "user_id", user.ID)
		return nil, newOAuthError("invalid_grant", "Invalid refresh token.", 401)
	}

	// The single-row delete is the rotation point. Zero rows deleted
	// means a concurrent rotation consumed this row first; the loser is
	// treated the same as a replayed token.
	if err := s.tokens.Delete(ctx, matched.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.audit("refresh.reuse_detected", "user_id", user.ID)
			return nil, newOAuthError("invalid_grant", "Invalid refresh token.", 401)
		}
		span.RecordError(err)
		return nil, err
	}

	if n, err := s.tokens.DeleteExpired(ctx, time.Now()); err != nil {
		s.log().Warn("expired refresh token cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.log().Debug("expired refresh tokens removed", zap.Int64("count", n))
	}

	resp, err := s.issueTokens(ctx, user)
	if err == nil {
		s.audit("refresh.success", "user_id", user.ID)
	}
	return resp, err
}

// Logout revokes the presented refresh token. Revoking a token that is
// already gone succeeds, so repeated logouts are harmless.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	claims, err := s.issuer.Verify(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return newOAuthError("invalid_grant", "Invalid refresh token.", 401)
	}

	matched, err := s.matchStoredToken(ctx, claims.UserID, refreshToken)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if matched == nil {
		return nil
	}
	if err := s.tokens.Delete(ctx, matched.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		span.RecordError(err)
		return err
	}
	s.audit("logout.success", "user_id", claims.UserID)
	return nil
}

// GetUser loads the profile behind an access token subject.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (domain.SafeUser, error) {
	ctx, span := s.startSpan(ctx, "AuthService.GetUser")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.SafeUser{}, newOAuthError("not_found", "User not found.", 404)
		}
		span.RecordError(err)
		return domain.SafeUser{}, err
	}
	return user.Safe(), nil
}

// matchStoredToken scans the user's live rows for the hash of the
// presented token. Hash rows cannot be looked up by value, only
// verified, hence the scan.
func (s *AuthService) matchStoredToken(ctx context.Context, userID int64, refreshToken string) (*domain.RefreshToken, error) {
	rows, err := s.tokens.ListActiveByUser(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}
	for i := range rows {
		ok, err := pw.Verify(refreshToken, rows[i].TokenHash)
		if err == nil && ok {
			return &rows[i], nil
		}
	}
	return nil, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user domain.User) (*AuthResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.issueTokens")
	defer span.End()

	pair, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	hash, err := pw.Hash(pair.RefreshToken)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	record := domain.RefreshToken{
		ID:        s.node.Generate().Int64(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: s.issuer.RefreshExpiresAt(time.Now()),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &AuthResponse{
		TokenResponse: TokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    pair.ExpiresIn,
		},
		User: user.Safe(),
	}, nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	auditLog(s.log(), event, attrs...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func auditLog(logger *zap.Logger, event string, attrs ...any) {
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
