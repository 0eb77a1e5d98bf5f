package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/http/middleware"
	"github.com/heishia/ppop-auth/internal/service"
)

// SubscriptionHandler exposes gating queries for end users and the
// activation hook for the billing backend.
type SubscriptionHandler struct {
	Subs   *service.SubscriptionService
	Logger *zap.Logger
}

// NewSubscriptionHandler creates the handler set.
func NewSubscriptionHandler(subs *service.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{Subs: subs, Logger: logger}
}

// Status answers whether the caller holds an active subscription for
// the queried service.
func (h *SubscriptionHandler) Status(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authentication required."})
		return
	}

	status, err := h.Subs.Status(c.Request.Context(), claims.UserID, c.Query("service"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Activate upserts an active subscription. Guarded by the admin API
// key, not user authentication.
func (h *SubscriptionHandler) Activate(c *gin.Context) {
	var req struct {
		Email     string `json:"email" binding:"required"`
		Service   string `json:"service" binding:"required"`
		Plan      string `json:"plan" binding:"required"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email, service and plan are required."})
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "expires_at must be RFC 3339."})
			return
		}
		expiresAt = &parsed
	}

	sub, err := h.Subs.Activate(c.Request.Context(), req.Email, req.Service, req.Plan, expiresAt)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    sub.UserID,
		"service":    sub.ServiceCode,
		"plan":       sub.Plan,
		"status":     sub.Status,
		"expires_at": sub.ExpiresAt,
	})
}
