package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
	"github.com/naotama2002/platform-auth-refresh/internal/httpclient"
)

func testProviderConfig(tokenURL string) ProviderConfig {
	return ProviderConfig{
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		AuthURL:      "https://idp.example.com/authorize",
		TokenURL:     tokenURL,
		Scopes:       []string{"scope.a", "scope.b"},
	}
}

func newProviderFlow(t *testing.T, provider Provider) *Flow {
	t.Helper()
	flow, err := NewFlow(provider, testAccount, time.Minute)
	require.NoError(t, err)
	flow.RedirectURI = "http://localhost:8080/callback"
	return flow
}

func TestProviderConfigValidate(t *testing.T) {
	valid := testProviderConfig("https://idp.example.com/token")
	assert.NoError(t, valid.Validate(TikTok))

	tests := []struct {
		name   string
		mutate func(*ProviderConfig)
	}{
		{name: "missing client id", mutate: func(c *ProviderConfig) { c.ClientID = "" }},
		{name: "missing client secret", mutate: func(c *ProviderConfig) { c.ClientSecret = "" }},
		{name: "missing token url", mutate: func(c *ProviderConfig) { c.TokenURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := config.Validate(YouTube)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ConfigurationError))
		})
	}
}

func TestParsePlatform(t *testing.T) {
	platform, err := ParsePlatform("YouTube")
	require.NoError(t, err)
	assert.Equal(t, YouTube, platform)

	platform, err = ParsePlatform(" tiktok ")
	require.NoError(t, err)
	assert.Equal(t, TikTok, platform)

	_, err = ParsePlatform("myspace")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.InvalidArgument))
}

func TestTikTokAuthorizationURL(t *testing.T) {
	provider := NewTikTokProvider(testProviderConfig("https://idp.example.com/token"), nil)
	flow := newProviderFlow(t, provider)

	parsed, err := url.Parse(provider.AuthorizationURL(flow))
	require.NoError(t, err)
	query := parsed.Query()

	assert.Equal(t, "idp.example.com", parsed.Host)
	assert.Equal(t, "client-123", query.Get("client_key"))
	assert.Equal(t, "scope.a,scope.b", query.Get("scope"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, flow.RedirectURI, query.Get("redirect_uri"))
	assert.Equal(t, flow.State, query.Get("state"))
	assert.Equal(t, flow.CodeChallenge, query.Get("code_challenge"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.Equal(t, "1", query.Get("disable_auto_auth"))
	assert.Equal(t, testAccount, query.Get("prefill_username"))
}

func TestTikTokExchange(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"act.123","refresh_token":"rft.456","expires_in":86400,"open_id":"oid-789","scope":"user.info.basic","token_type":"Bearer"}`))
	}))
	defer server.Close()

	provider := NewTikTokProvider(testProviderConfig(server.URL), httpclient.New(nil))
	flow := newProviderFlow(t, provider)

	result, err := provider.Exchange(context.Background(), flow, "code*with/special chars")
	require.NoError(t, err)

	assert.Equal(t, "act.123", result.AccessToken)
	assert.Equal(t, "rft.456", result.RefreshToken)
	assert.Equal(t, int64(86400), result.ExpiresIn)
	assert.Equal(t, "oid-789", result.OpenID)
	assert.True(t, result.Complete())

	assert.Equal(t, "client-123", form.Get("client_key"))
	assert.Equal(t, "secret-456", form.Get("client_secret"))
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, flow.RedirectURI, form.Get("redirect_uri"))
	assert.Equal(t, flow.CodeVerifier, form.Get("code_verifier"))
	assert.Equal(t, "code%2Awith%2Fspecial%20chars", form.Get("code"))
}

func TestTikTokExchangeFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "error status", status: http.StatusBadRequest, body: `{"error":"invalid_grant"}`},
		{name: "error body with 200", status: http.StatusOK, body: `{"error":"invalid_request","error_description":"code expired"}`},
		{name: "malformed json", status: http.StatusOK, body: `not json`},
		{name: "non-200 success status", status: http.StatusAccepted, body: `{"access_token":"act"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider := NewTikTokProvider(testProviderConfig(server.URL), nil)
			result, err := provider.Exchange(context.Background(), newProviderFlow(t, provider), "ABC")

			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, apperrors.IsType(err, apperrors.ExchangeError))

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Equal(t, tt.body, appErr.Details)
		})
	}
}

func TestTikTokExchangeTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	tokenURL := server.URL
	server.Close()

	provider := NewTikTokProvider(testProviderConfig(tokenURL), nil)
	_, err := provider.Exchange(context.Background(), newProviderFlow(t, provider), "ABC")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ExchangeError))
}

func TestYouTubeAuthorizationURL(t *testing.T) {
	provider := NewYouTubeProvider(testProviderConfig("https://idp.example.com/token"), nil)
	flow := newProviderFlow(t, provider)

	parsed, err := url.Parse(provider.AuthorizationURL(flow))
	require.NoError(t, err)
	query := parsed.Query()

	assert.Equal(t, "client-123", query.Get("client_id"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, flow.RedirectURI, query.Get("redirect_uri"))
	assert.Equal(t, "scope.a scope.b", query.Get("scope"))
	assert.Equal(t, flow.State, query.Get("state"))
	assert.Equal(t, "offline", query.Get("access_type"))
	assert.Equal(t, "consent", query.Get("prompt"))
	assert.Equal(t, testAccount, query.Get("login_hint"))
	assert.Empty(t, query.Get("code_challenge"))
}

func TestYouTubeExchange(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.access","refresh_token":"1//refresh","expires_in":3599,"token_type":"Bearer","scope":"scope.a"}`))
	}))
	defer server.Close()

	provider := NewYouTubeProvider(testProviderConfig(server.URL), server.Client())
	flow := newProviderFlow(t, provider)

	result, err := provider.Exchange(context.Background(), flow, "4/ABC")
	require.NoError(t, err)

	assert.Equal(t, "ya29.access", result.AccessToken)
	assert.Equal(t, "1//refresh", result.RefreshToken)
	assert.Equal(t, "scope.a", result.Scope)
	assert.InDelta(t, 3599, result.ExpiresIn, 2)

	assert.Equal(t, "4/ABC", form.Get("code"))
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "client-123", form.Get("client_id"))
	assert.Equal(t, "secret-456", form.Get("client_secret"))
	assert.Equal(t, flow.RedirectURI, form.Get("redirect_uri"))
	assert.Empty(t, form.Get("code_verifier"))
}

func TestYouTubeExchangeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
	}))
	defer server.Close()

	provider := NewYouTubeProvider(testProviderConfig(server.URL), server.Client())
	_, err := provider.Exchange(context.Background(), newProviderFlow(t, provider), "ABC")

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ExchangeError, appErr.Type)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.Contains(t, appErr.Details, "invalid_grant")
}
