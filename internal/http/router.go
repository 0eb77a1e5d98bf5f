package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/heishia/ppop-auth/internal/config"
	"github.com/heishia/ppop-auth/internal/http/handler"
	httpmiddleware "github.com/heishia/ppop-auth/internal/http/middleware"
	"github.com/heishia/ppop-auth/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	oauthHandler *handler.OAuthHandler,
	socialHandler *handler.SocialHandler,
	subHandler *handler.SubscriptionHandler,
	authMiddleware *httpmiddleware.Auth,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", authMiddleware.ValidateJWT, authHandler.Me)

		// Social login round-trips, e.g. /auth/social/google and
		// /auth/social/google/callback.
		auth.GET("/social/:provider", socialHandler.Start)
		auth.GET("/social/:provider/callback", socialHandler.Callback)
	}

	oauth := r.Group("/oauth")
	{
		oauth.GET("/authorize", oauthHandler.Authorize)
		oauth.GET("/authorize/callback", oauthHandler.AuthorizeCallback)
		oauth.POST("/token", oauthHandler.Token)
	}

	r.GET("/.well-known/jwks.json", oauthHandler.JWKS)

	r.GET("/subscriptions/status", authMiddleware.ValidateJWT, subHandler.Status)

	admin := r.Group("/admin", httpmiddleware.RequireAPIKey(cfg.AdminAPIKey))
	{
		admin.POST("/subscriptions/activate", subHandler.Activate)
	}

	return r
}
