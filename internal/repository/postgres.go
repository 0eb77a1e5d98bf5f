package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heishia/ppop-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository          = (*PostgresUserRepo)(nil)
	_ RefreshTokenRepository  = (*PostgresRefreshTokenRepo)(nil)
	_ CodeRepository          = (*PostgresCodeRepo)(nil)
	_ ClientRepository        = (*PostgresClientRepo)(nil)
	_ SocialAccountRepository = (*PostgresSocialAccountRepo)(nil)
	_ SubscriptionRepository  = (*PostgresSubscriptionRepo)(nil)
)

func wrapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, email, email_verified, password_hash, name, birthdate, phone, phone_verified, status, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.EmailVerified,
		&u.PasswordHash,
		&u.Name,
		&u.Birthdate,
		&u.Phone,
		&u.PhoneVerified,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return domain.User{}, wrapErr("get user by email", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return domain.User{}, wrapErr("get user by id", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByPhone(ctx context.Context, phone string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1 LIMIT 1`
	user, err := scanUser(r.db.QueryRow(ctx, query, phone))
	if err != nil {
		return domain.User{}, wrapErr("get user by phone", err)
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users (id, email, email_verified, password_hash, name, birthdate, phone, phone_verified, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + userColumns

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	inserted, err := scanUser(r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.Email,
		user.EmailVerified,
		user.PasswordHash,
		user.Name,
		user.Birthdate,
		user.Phone,
		user.PhoneVerified,
		user.Status,
	))
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return inserted, nil
}

// PostgresRefreshTokenRepo implements RefreshTokenRepository.
type PostgresRefreshTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRefreshTokenRepo(pool *pgxpool.Pool) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: pool}
}

func (r *PostgresRefreshTokenRepo) Create(ctx context.Context, token domain.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, query, token.ID, token.UserID, token.TokenHash, token.ExpiresAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRefreshTokenRepo) ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]domain.RefreshToken, error) {
	const query = `SELECT id, user_id, token_hash, expires_at, created_at
FROM refresh_tokens
WHERE user_id = $1 AND expires_at > $2
ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		var t domain.RefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return tokens, nil
}

func (r *PostgresRefreshTokenRepo) Delete(ctx context.Context, tokenID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, tokenID)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete refresh token: %w", ErrNotFound)
	}
	return nil
}

func (r *PostgresRefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresCodeRepo implements CodeRepository.
type PostgresCodeRepo struct {
	db *pgxpool.Pool
}

func NewPostgresCodeRepo(pool *pgxpool.Pool) *PostgresCodeRepo {
	return &PostgresCodeRepo{db: pool}
}

func (r *PostgresCodeRepo) Create(ctx context.Context, code domain.AuthorizationCode) error {
	const query = `INSERT INTO authorization_codes (id, code, user_id, client_id, redirect_uri, state, expires_at, used)
VALUES ($1, $2, $3, $4, $5, $6, $7, false)`
	if _, err := r.db.Exec(ctx, query,
		code.ID, code.Code, code.UserID, code.ClientID, code.RedirectURI, code.State, code.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

func (r *PostgresCodeRepo) GetByCode(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	const query = `SELECT id, code, user_id, client_id, redirect_uri, state, expires_at, used, created_at
FROM authorization_codes
WHERE code = $1
LIMIT 1`

	var c domain.AuthorizationCode
	if err := r.db.QueryRow(ctx, query, code).Scan(
		&c.ID, &c.Code, &c.UserID, &c.ClientID, &c.RedirectURI, &c.State, &c.ExpiresAt, &c.Used, &c.CreatedAt,
	); err != nil {
		return domain.AuthorizationCode{}, wrapErr("get code", err)
	}
	return c, nil
}

func (r *PostgresCodeRepo) MarkUsed(ctx context.Context, code string) error {
	tag, err := r.db.Exec(ctx, `UPDATE authorization_codes SET used = true WHERE code = $1 AND used = false`, code)
	if err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark code used: %w", ErrNotFound)
	}
	return nil
}

// PostgresClientRepo implements ClientRepository.
type PostgresClientRepo struct {
	db *pgxpool.Pool
}

func NewPostgresClientRepo(pool *pgxpool.Pool) *PostgresClientRepo {
	return &PostgresClientRepo{db: pool}
}

func (r *PostgresClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.OAuthClient, error) {
	const query = `SELECT id, client_id, client_secret_hash, name, redirect_uris, created_at
FROM oauth_clients
WHERE client_id = $1
LIMIT 1`

	var c domain.OAuthClient
	if err := r.db.QueryRow(ctx, query, clientID).Scan(
		&c.ID, &c.ClientID, &c.ClientSecretHash, &c.Name, &c.RedirectURIs, &c.CreatedAt,
	); err != nil {
		return domain.OAuthClient{}, wrapErr("get oauth client", err)
	}
	return c, nil
}

func (r *PostgresClientRepo) Create(ctx context.Context, client domain.OAuthClient) error {
	const query = `INSERT INTO oauth_clients (id, client_id, client_secret_hash, name, redirect_uris)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Exec(ctx, query,
		client.ID, client.ClientID, client.ClientSecretHash, client.Name, client.RedirectURIs,
	); err != nil {
		return fmt.Errorf("insert oauth client: %w", err)
	}
	return nil
}

// PostgresSocialAccountRepo implements SocialAccountRepository.
type PostgresSocialAccountRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSocialAccountRepo(pool *pgxpool.Pool) *PostgresSocialAccountRepo {
	return &PostgresSocialAccountRepo{db: pool}
}

func (r *PostgresSocialAccountRepo) GetByProviderUser(ctx context.Context, provider, providerUserID string) (domain.SocialAccount, error) {
	const query = `SELECT id, user_id, provider, provider_user_id, created_at
FROM social_accounts
WHERE provider = $1 AND provider_user_id = $2
LIMIT 1`

	var a domain.SocialAccount
	if err := r.db.QueryRow(ctx, query, provider, providerUserID).Scan(
		&a.ID, &a.UserID, &a.Provider, &a.ProviderUserID, &a.CreatedAt,
	); err != nil {
		return domain.SocialAccount{}, wrapErr("get social account", err)
	}
	return a, nil
}

func (r *PostgresSocialAccountRepo) Create(ctx context.Context, account domain.SocialAccount) error {
	const query = `INSERT INTO social_accounts (id, user_id, provider, provider_user_id)
VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, query,
		account.ID, account.UserID, account.Provider, account.ProviderUserID,
	); err != nil {
		return fmt.Errorf("insert social account: %w", err)
	}
	return nil
}

// PostgresSubscriptionRepo implements SubscriptionRepository.
type PostgresSubscriptionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSubscriptionRepo(pool *pgxpool.Pool) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: pool}
}

const subscriptionColumns = `id, user_id, service_code, plan, status, expires_at, created_at, updated_at`

func (r *PostgresSubscriptionRepo) GetByUserAndService(ctx context.Context, userID int64, serviceCode string) (domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 AND service_code = $2 LIMIT 1`

	var s domain.Subscription
	if err := r.db.QueryRow(ctx, query, userID, serviceCode).Scan(
		&s.ID, &s.UserID, &s.ServiceCode, &s.Plan, &s.Status, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return domain.Subscription{}, wrapErr("get subscription", err)
	}
	return s, nil
}

const upsertSubscriptionSQL = `INSERT INTO subscriptions (id, user_id, service_code, plan, status, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, service_code) DO UPDATE
SET plan = EXCLUDED.plan, status = EXCLUDED.status, expires_at = EXCLUDED.expires_at, updated_at = now()
RETURNING ` + subscriptionColumns

func (r *PostgresSubscriptionRepo) Upsert(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	var s domain.Subscription
	if err := r.db.QueryRow(ctx, upsertSubscriptionSQL,
		sub.ID, sub.UserID, sub.ServiceCode, sub.Plan, sub.Status, sub.ExpiresAt,
	).Scan(
		&s.ID, &s.UserID, &s.ServiceCode, &s.Plan, &s.Status, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return domain.Subscription{}, fmt.Errorf("upsert subscription: %w", err)
	}
	return s, nil
}
