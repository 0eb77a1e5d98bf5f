package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/jwt"
	"github.com/heishia/ppop-auth/internal/keys"
	"github.com/heishia/ppop-auth/internal/service"
)

// OAuthHandler exposes the authorization-code grant endpoints and key
// publication.
type OAuthHandler struct {
	OAuth    *service.OAuthService
	Issuer   *jwt.Issuer
	Material *keys.Material
	// LoginURL is the front-end page that collects credentials before
	// the browser returns to /oauth/authorize.
	LoginURL string
	Logger   *zap.Logger
}

// NewOAuthHandler creates the handler set.
func NewOAuthHandler(oauth *service.OAuthService, issuer *jwt.Issuer, material *keys.Material, loginURL string, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{OAuth: oauth, Issuer: issuer, Material: material, LoginURL: loginURL, Logger: logger}
}

// Authorize starts the authorization-code grant. The client and
// redirect URI are validated before anything else; failures are
// answered directly instead of redirecting to an unverified URI.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	state := c.Query("state")
	responseType := c.Query("response_type")

	if _, err := h.OAuth.ValidateClient(c.Request.Context(), clientID, redirectURI); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if responseType != "code" {
		h.redirectOAuthError(c, redirectURI, state, "invalid_request", "response_type must be code")
		return
	}

	claims, ok := h.authenticate(c)
	if !ok {
		target := h.LoginURL
		if query := c.Request.URL.RawQuery; query != "" {
			target += "?" + query
		}
		c.Redirect(http.StatusFound, target)
		return
	}

	h.issueCodeRedirect(c, claims.UserID, clientID, redirectURI, state)
}

// AuthorizeCallback completes the grant after the front-end login page
// sends the browser back with a fresh access token.
func (h *OAuthHandler) AuthorizeCallback(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	state := c.Query("state")

	if _, err := h.OAuth.ValidateClient(c.Request.Context(), clientID, redirectURI); err != nil {
		respondError(c, h.Logger, err)
		return
	}

	claims, ok := h.authenticate(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authentication required."})
		return
	}

	h.issueCodeRedirect(c, claims.UserID, clientID, redirectURI, state)
}

// issueCodeRedirect asks the engine for a code and sends the browser
// to the (already validated) redirect URI. Post-validation failures are
// reported on that URI as error parameters, never swallowed.
func (h *OAuthHandler) issueCodeRedirect(c *gin.Context, userID int64, clientID, redirectURI, state string) {
	target, err := h.OAuth.Authorize(c.Request.Context(), userID, clientID, redirectURI, state)
	if err != nil {
		var oerr *service.OAuthError
		if errors.As(err, &oerr) {
			h.redirectOAuthError(c, redirectURI, state, oerr.Code, oerr.Description)
			return
		}
		h.Logger.Error("authorize failed", zap.Error(err))
		h.redirectOAuthError(c, redirectURI, state, "server_error", "Authorization failed.")
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (h *OAuthHandler) redirectOAuthError(c *gin.Context, redirectURI, state, code, description string) {
	params := url.Values{}
	params.Set("error", code)
	params.Set("error_description", description)
	if state != "" {
		params.Set("state", state)
	}
	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	c.Redirect(http.StatusFound, redirectURI+sep+params.Encode())
}

// authenticate resolves the signed-in user from a bearer header or the
// access_token cookie the front-end sets after login.
func (h *OAuthHandler) authenticate(c *gin.Context) (*jwt.Claims, bool) {
	token := ""
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = parts[1]
		}
	}
	if token == "" {
		if cookie, err := c.Cookie("access_token"); err == nil {
			token = cookie
		}
	}
	if token == "" {
		return nil, false
	}
	claims, err := h.Issuer.Verify(token, jwt.TypeAccess)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// Token redeems an authorization code. Client credentials arrive as
// form fields or HTTP Basic.
func (h *OAuthHandler) Token(c *gin.Context) {
	var req struct {
		GrantType    string `form:"grant_type" binding:"required"`
		Code         string `form:"code"`
		RedirectURI  string `form:"redirect_uri"`
		ClientID     string `form:"client_id"`
		ClientSecret string `form:"client_secret"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid token request."})
		return
	}
	if req.ClientID == "" {
		if user, pass, ok := c.Request.BasicAuth(); ok {
			req.ClientID, req.ClientSecret = user, pass
		}
	}

	if strings.ToLower(req.GrantType) != "authorization_code" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type", "error_description": "Unsupported grant type."})
		return
	}

	resp, err := h.OAuth.ExchangeCode(c.Request.Context(), req.ClientID, req.ClientSecret, req.Code, req.RedirectURI)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// JWKS publishes the verification key set.
func (h *OAuthHandler) JWKS(c *gin.Context) {
	c.JSON(http.StatusOK, h.Material.JWKS())
}
