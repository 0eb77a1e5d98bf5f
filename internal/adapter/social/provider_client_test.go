package social

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func testClient() *HTTPProviderClient {
	return NewHTTPProviderClient(map[string]Credentials{
		ProviderGoogle: {ClientID: "google-id", ClientSecret: "google-secret"},
		ProviderKakao:  {ClientID: "kakao-id"},
	}, nil)
}

func TestAuthorizeURL(t *testing.T) {
	c := testClient()

	raw, err := c.AuthorizeURL(ProviderGoogle, "https://auth.example.com/auth/google/callback", "state-1")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", parsed.Host)
	q := parsed.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "google-id", q.Get("client_id"))
	require.Equal(t, "https://auth.example.com/auth/google/callback", q.Get("redirect_uri"))
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "email profile", q.Get("scope"))
}

func TestAuthorizeURLRejectsUnconfigured(t *testing.T) {
	c := testClient()

	// Known provider without credentials.
	_, err := c.AuthorizeURL(ProviderNaver, "https://auth.example.com/cb", "s")
	require.ErrorIs(t, err, ErrUnknownProvider)

	_, err = c.AuthorizeURL("facebook", "https://auth.example.com/cb", "s")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestParseGoogleProfile(t *testing.T) {
	profile, err := parseGoogleProfile([]byte(`{"id":"g-123","email":"user@gmail.com","name":"User"}`))
	require.NoError(t, err)
	require.Equal(t, ProviderGoogle, profile.Provider)
	require.Equal(t, "g-123", profile.ProviderUserID)
	require.Equal(t, "user@gmail.com", profile.Email)
	require.Equal(t, "User", profile.Name)

	_, err = parseGoogleProfile([]byte(`{"email":"user@gmail.com"}`))
	require.Error(t, err)
}

func TestParseKakaoProfile(t *testing.T) {
	body := []byte(`{"id":98765,"kakao_account":{"email":"user@kakao.com","profile":{"nickname":"Nick"}}}`)
	profile, err := parseKakaoProfile(body)
	require.NoError(t, err)
	require.Equal(t, "98765", profile.ProviderUserID)
	require.Equal(t, "user@kakao.com", profile.Email)
	require.Equal(t, "Nick", profile.Name)

	// Kakao may withhold the email; that is the caller's problem.
	profile, err = parseKakaoProfile([]byte(`{"id":5}`))
	require.NoError(t, err)
	require.Empty(t, profile.Email)

	_, err = parseKakaoProfile([]byte(`{}`))
	require.Error(t, err)
}

func TestParseNaverProfile(t *testing.T) {
	body := []byte(`{"resultcode":"00","response":{"id":"n-1","email":"user@naver.com","name":"User"}}`)
	profile, err := parseNaverProfile(body)
	require.NoError(t, err)
	require.Equal(t, "n-1", profile.ProviderUserID)
	require.Equal(t, "user@naver.com", profile.Email)

	_, err = parseNaverProfile([]byte(`{"resultcode":"024","response":{}}`))
	require.Error(t, err)
}
