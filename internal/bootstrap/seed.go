package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/config"
	"github.com/heishia/ppop-auth/internal/domain"
	"github.com/heishia/ppop-auth/internal/password"
	"github.com/heishia/ppop-auth/internal/repository"
)

// EnsureClient registers the configured first-party OAuth client at
// startup if it does not exist yet. Without it the authorization-code
// flow has no redeemer.
func EnsureClient(lc fx.Lifecycle, cfg config.Config, clients repository.ClientRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureClient(ctx, cfg, clients, node, logger)
		},
	})
}

func ensureClient(ctx context.Context, cfg config.Config, clients repository.ClientRepository, node *snowflake.Node, logger *zap.Logger) error {
	clientID := strings.TrimSpace(cfg.SeedClientID)
	if clientID == "" {
		if logger != nil {
			logger.Info("client seeding skipped, SEED_CLIENT_ID not set")
		}
		return nil
	}
	if strings.TrimSpace(cfg.SeedClientSecret) == "" || len(cfg.SeedRedirectURIs) == 0 {
		return fmt.Errorf("client seeding requires SEED_CLIENT_SECRET and SEED_CLIENT_REDIRECT_URIS")
	}

	if _, err := clients.GetByClientID(ctx, clientID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("seed lookup client: %w", err)
	}

	hashed, err := password.Hash(cfg.SeedClientSecret)
	if err != nil {
		return fmt.Errorf("seed hash client secret: %w", err)
	}

	client := domain.OAuthClient{
		ID:               node.Generate().Int64(),
		ClientID:         clientID,
		ClientSecretHash: hashed,
		Name:             cfg.SeedClientName,
		RedirectURIs:     cfg.SeedRedirectURIs,
	}
	if err := clients.Create(ctx, client); err != nil {
		return fmt.Errorf("seed create client: %w", err)
	}

	if logger != nil {
		logger.Info("seeded oauth client", zap.String("client_id", clientID))
	}
	return nil
}
