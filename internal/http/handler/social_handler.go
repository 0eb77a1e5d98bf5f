package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/service"
)

const stateCookieName = "oauth_state"

// SocialHandler drives browser round-trips to external identity
// providers. Outcomes, success or failure, land on the front-end
// callback page so the user never sees a bare JSON error.
type SocialHandler struct {
	Social *service.SocialService
	// ClientURL is the front-end base URL that receives tokens.
	ClientURL string
	Logger    *zap.Logger
}

// NewSocialHandler creates the handler set.
func NewSocialHandler(social *service.SocialService, clientURL string, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{Social: social, ClientURL: clientURL, Logger: logger}
}

// Start redirects the browser to the provider's authorization page.
func (h *SocialHandler) Start(c *gin.Context) {
	provider := c.Param("provider")

	target, state, err := h.Social.StartLogin(c.Request.Context(), provider)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.SetCookie(stateCookieName, state, 600, "/", "", false, true)
	c.Redirect(http.StatusFound, target)
}

// Callback completes the provider round-trip and hands tokens to the
// front-end via redirect.
func (h *SocialHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	code := c.Query("code")
	state := c.Query("state")
	providerErr := c.Query("error")

	cookieState, cookieErr := c.Cookie(stateCookieName)
	c.SetCookie(stateCookieName, "", -1, "/", "", false, true)

	// The state must come back through the browser that started the
	// login, so the cookie has to match the query value as well as the
	// server-side record.
	if providerErr == "" && (cookieErr != nil || cookieState == "" || cookieState != state) {
		h.redirectWithError(c, &service.OAuthError{Code: "invalid_state", Description: "Login state is invalid or expired.", Status: http.StatusUnauthorized})
		return
	}

	resp, err := h.Social.HandleCallback(c.Request.Context(), provider, code, state, providerErr)
	if err != nil {
		h.redirectWithError(c, err)
		return
	}

	q := url.Values{}
	q.Set("access_token", resp.AccessToken)
	q.Set("refresh_token", resp.RefreshToken)
	c.Redirect(http.StatusFound, h.ClientURL+"/auth/callback?"+q.Encode())
}

func (h *SocialHandler) redirectWithError(c *gin.Context, err error) {
	code, message := "server_error", "Login failed."
	var oe *service.OAuthError
	if errors.As(err, &oe) {
		code, message = oe.Code, oe.Description
	} else if h.Logger != nil {
		h.Logger.Error("social callback failed", zap.Error(err))
	}

	q := url.Values{}
	q.Set("error", code)
	q.Set("message", message)
	c.Redirect(http.StatusFound, h.ClientURL+"/auth/callback?"+q.Encode())
}
