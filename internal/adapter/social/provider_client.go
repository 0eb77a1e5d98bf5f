package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/heishia/ppop-auth/internal/domain"
)

// Supported identity providers.
const (
	ProviderGoogle = "google"
	ProviderKakao  = "kakao"
	ProviderNaver  = "naver"
)

// ErrUnknownProvider is returned for a provider name outside the
// supported set.
var ErrUnknownProvider = errors.New("social: unknown provider")

type endpoints struct {
	authURL    string
	tokenURL   string
	profileURL string
	scope      string
}

var providerEndpoints = map[string]endpoints{
	ProviderGoogle: {
		authURL:    "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL:   "https://oauth2.googleapis.com/token",
		profileURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		scope:      "email profile",
	},
	ProviderKakao: {
		authURL:    "https://kauth.kakao.com/oauth/authorize",
		tokenURL:   "https://kauth.kakao.com/oauth/token",
		profileURL: "https://kapi.kakao.com/v2/user/me",
	},
	ProviderNaver: {
		authURL:    "https://nid.naver.com/oauth2.0/authorize",
		tokenURL:   "https://nid.naver.com/oauth2.0/token",
		profileURL: "https://openapi.naver.com/v1/nid/me",
	},
}

// Credentials is the client id/secret pair registered with a provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// ProviderClient encapsulates outbound HTTP calls to external IdPs.
type ProviderClient interface {
	AuthorizeURL(provider, redirectURI, state string) (string, error)
	ExchangeCode(ctx context.Context, provider, code, redirectURI string) (string, error)
	FetchProfile(ctx context.Context, provider, accessToken string) (domain.SocialProfile, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	creds      map[string]Credentials
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient. Only
// providers present in creds are enabled.
func NewHTTPProviderClient(creds map[string]Credentials, client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{creds: creds, httpClient: client}
}

func (c *HTTPProviderClient) lookup(provider string) (endpoints, Credentials, error) {
	ep, ok := providerEndpoints[provider]
	if !ok {
		return endpoints{}, Credentials{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	cred, ok := c.creds[provider]
	if !ok || cred.ClientID == "" {
		return endpoints{}, Credentials{}, fmt.Errorf("%w: %q is not configured", ErrUnknownProvider, provider)
	}
	return ep, cred, nil
}

// AuthorizeURL builds the provider's authorization redirect target.
func (c *HTTPProviderClient) AuthorizeURL(provider, redirectURI, state string) (string, error) {
	ep, cred, err := c.lookup(provider)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", cred.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	if ep.scope != "" {
		q.Set("scope", ep.scope)
	}
	return ep.authURL + "?" + q.Encode(), nil
}

// ExchangeCode swaps the callback code for the provider's access token.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, provider, code, redirectURI string) (string, error) {
	ep, cred, err := c.lookup(provider)
	if err != nil {
		return "", err
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	data.Set("client_id", cred.ClientID)
	if cred.ClientSecret != "" {
		data.Set("client_secret", cred.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("token exchange failed: status=%d", resp.StatusCode)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned no access token")
	}
	return parsed.AccessToken, nil
}

// FetchProfile loads the provider profile and normalizes it. The email
// may be empty when the provider withheld it; callers decide whether
// that is fatal.
func (c *HTTPProviderClient) FetchProfile(ctx context.Context, provider, accessToken string) (domain.SocialProfile, error) {
	ep, _, err := c.lookup(provider)
	if err != nil {
		return domain.SocialProfile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.profileURL, nil)
	if err != nil {
		return domain.SocialProfile{}, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.SocialProfile{}, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.SocialProfile{}, fmt.Errorf("read profile: %w", err)
	}
	if resp.StatusCode >= 300 {
		return domain.SocialProfile{}, fmt.Errorf("profile fetch failed: status=%d", resp.StatusCode)
	}

	switch provider {
	case ProviderGoogle:
		return parseGoogleProfile(body)
	case ProviderKakao:
		return parseKakaoProfile(body)
	case ProviderNaver:
		return parseNaverProfile(body)
	}
	return domain.SocialProfile{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
}

func parseGoogleProfile(body []byte) (domain.SocialProfile, error) {
	var raw struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.SocialProfile{}, fmt.Errorf("decode google profile: %w", err)
	}
	if raw.ID == "" {
		return domain.SocialProfile{}, fmt.Errorf("google profile missing id")
	}
	return domain.SocialProfile{
		Provider:       ProviderGoogle,
		ProviderUserID: raw.ID,
		Email:          raw.Email,
		Name:           raw.Name,
	}, nil
}

func parseKakaoProfile(body []byte) (domain.SocialProfile, error) {
	var raw struct {
		ID      int64 `json:"id"`
		Account struct {
			Email   string `json:"email"`
			Profile struct {
				Nickname string `json:"nickname"`
			} `json:"profile"`
		} `json:"kakao_account"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.SocialProfile{}, fmt.Errorf("decode kakao profile: %w", err)
	}
	if raw.ID == 0 {
		return domain.SocialProfile{}, fmt.Errorf("kakao profile missing id")
	}
	return domain.SocialProfile{
		Provider:       ProviderKakao,
		ProviderUserID: strconv.FormatInt(raw.ID, 10),
		Email:          raw.Account.Email,
		Name:           raw.Account.Profile.Nickname,
	}, nil
}

func parseNaverProfile(body []byte) (domain.SocialProfile, error) {
	var raw struct {
		ResultCode string `json:"resultcode"`
		Response   struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.SocialProfile{}, fmt.Errorf("decode naver profile: %w", err)
	}
	if raw.ResultCode != "00" || raw.Response.ID == "" {
		return domain.SocialProfile{}, fmt.Errorf("naver profile lookup failed: resultcode=%q", raw.ResultCode)
	}
	return domain.SocialProfile{
		Provider:       ProviderNaver,
		ProviderUserID: raw.Response.ID,
		Email:          raw.Response.Email,
		Name:           raw.Response.Name,
	}, nil
}
