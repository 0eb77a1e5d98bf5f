package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/heishia/ppop-auth/internal/adapter/cache"
	socialadapter "github.com/heishia/ppop-auth/internal/adapter/social"
	"github.com/heishia/ppop-auth/internal/bootstrap"
	"github.com/heishia/ppop-auth/internal/config"
	httptransport "github.com/heishia/ppop-auth/internal/http"
	"github.com/heishia/ppop-auth/internal/http/handler"
	httpmiddleware "github.com/heishia/ppop-auth/internal/http/middleware"
	"github.com/heishia/ppop-auth/internal/jwt"
	"github.com/heishia/ppop-auth/internal/keys"
	apimiddleware "github.com/heishia/ppop-auth/internal/middleware"
	"github.com/heishia/ppop-auth/internal/repository"
	"github.com/heishia/ppop-auth/internal/server"
	"github.com/heishia/ppop-auth/internal/service"
	"github.com/heishia/ppop-auth/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newUserRepository,
			newRefreshTokenRepository,
			newCodeRepository,
			newClientRepository,
			newSocialAccountRepository,
			newSubscriptionRepository,
			newStateStore,
			newProviderClient,
			newKeyMaterial,
			newTokenIssuer,
			service.NewAuthService,
			service.NewOAuthService,
			newSocialService,
			service.NewSubscriptionService,
			handler.NewAuthHandler,
			newOAuthHandler,
			newSocialHandler,
			handler.NewSubscriptionHandler,
			newAuthMiddleware,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureClient, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newRefreshTokenRepository(pool *pgxpool.Pool) repository.RefreshTokenRepository {
	return repository.NewPostgresRefreshTokenRepo(pool)
}

func newCodeRepository(pool *pgxpool.Pool) repository.CodeRepository {
	return repository.NewPostgresCodeRepo(pool)
}

func newClientRepository(pool *pgxpool.Pool) repository.ClientRepository {
	return repository.NewPostgresClientRepo(pool)
}

func newSocialAccountRepository(pool *pgxpool.Pool) repository.SocialAccountRepository {
	return repository.NewPostgresSocialAccountRepo(pool)
}

func newSubscriptionRepository(pool *pgxpool.Pool) repository.SubscriptionRepository {
	return repository.NewPostgresSubscriptionRepo(pool)
}

func newStateStore(client redis.UniversalClient) repository.StateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newProviderClient(cfg config.Config) socialadapter.ProviderClient {
	creds := map[string]socialadapter.Credentials{}
	if cfg.GoogleClientID != "" {
		creds[socialadapter.ProviderGoogle] = socialadapter.Credentials{ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret}
	}
	if cfg.KakaoClientID != "" {
		creds[socialadapter.ProviderKakao] = socialadapter.Credentials{ClientID: cfg.KakaoClientID, ClientSecret: cfg.KakaoClientSecret}
	}
	if cfg.NaverClientID != "" {
		creds[socialadapter.ProviderNaver] = socialadapter.Credentials{ClientID: cfg.NaverClientID, ClientSecret: cfg.NaverClientSecret}
	}
	return socialadapter.NewHTTPProviderClient(creds, &http.Client{Timeout: cfg.ProviderTimeout})
}

func newKeyMaterial(cfg config.Config) (*keys.Material, error) {
	material, err := keys.Load(cfg.JWTPrivateKey, cfg.JWTPrivateKeyPath, cfg.JWTPublicKey, cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load signing keys: %w", err)
	}
	return material, nil
}

func newTokenIssuer(material *keys.Material, cfg config.Config) *jwt.Issuer {
	return jwt.NewIssuer(material, cfg.AccessTokenSeconds, cfg.RefreshTokenSeconds)
}

func newSocialService(
	users repository.UserRepository,
	socials repository.SocialAccountRepository,
	states repository.StateStore,
	providers socialadapter.ProviderClient,
	auth *service.AuthService,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) *service.SocialService {
	return service.NewSocialService(users, socials, states, providers, auth, node, cfg.AuthServerURL, logger)
}

func newOAuthHandler(oauth *service.OAuthService, issuer *jwt.Issuer, material *keys.Material, cfg config.Config, logger *zap.Logger) *handler.OAuthHandler {
	return handler.NewOAuthHandler(oauth, issuer, material, cfg.AuthClientURL+"/login", logger)
}

func newSocialHandler(social *service.SocialService, cfg config.Config, logger *zap.Logger) *handler.SocialHandler {
	return handler.NewSocialHandler(social, cfg.AuthClientURL, logger)
}

func newAuthMiddleware(issuer *jwt.Issuer) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Issuer: issuer}
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			logger.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
