package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/naotama2002/platform-auth-refresh/internal/auth"
	"github.com/naotama2002/platform-auth-refresh/internal/credentials"
	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
)

type stubRefresher struct {
	requests []auth.Request
	result   *auth.TokenResult
	err      error
}

func (r *stubRefresher) RefreshTokens(_ context.Context, req auth.Request) (*auth.TokenResult, error) {
	r.requests = append(r.requests, req)
	return r.result, r.err
}

type stubUpdater struct {
	path    string
	account string
	tokens  credentials.Tokens
	add     bool
	err     error
}

func (u *stubUpdater) Update(_ context.Context, path, account string, tokens credentials.Tokens, addIfMissing bool) (*credentials.Result, error) {
	u.path, u.account, u.tokens, u.add = path, account, tokens, addIfMissing
	if u.err != nil {
		return nil, u.err
	}
	return &credentials.Result{Key: account, Added: addIfMissing}, nil
}

func callTool(t *testing.T, s *Server, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	request := mcp.CallToolRequest{}
	request.Params.Name = refreshToolName
	request.Params.Arguments = args

	result, err := s.handleRefreshTokens(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	switch content := result.Content[0].(type) {
	case mcp.TextContent:
		return content.Text
	case *mcp.TextContent:
		return content.Text
	}
	t.Fatalf("unexpected content type %T", result.Content[0])
	return ""
}

func newTestServer(t *testing.T, refresher *stubRefresher, updater CredentialsUpdater) *Server {
	return New(refresher, updater, Config{}, zaptest.NewLogger(t))
}

func TestRefreshTokensTool(t *testing.T) {
	refresher := &stubRefresher{result: &auth.TokenResult{AccessToken: "AT1", RefreshToken: "RT1", ExpiresIn: 3600, OpenID: "oid"}}
	s := newTestServer(t, refresher, nil)

	result := callTool(t, s, map[string]any{
		"platform":       "TikTok",
		"account":        "user@example.com",
		"timeout":        float64(30),
		"chrome_profile": "Profile 1",
	})
	require.False(t, result.IsError, resultText(t, result))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, "AT1", decoded["access_token"])
	assert.Equal(t, "RT1", decoded["refresh_token"])
	assert.Equal(t, float64(3600), decoded["expires_in"])
	assert.Equal(t, "oid", decoded["open_id"])

	require.Len(t, refresher.requests, 1)
	assert.Equal(t, auth.Request{
		Platform:      auth.TikTok,
		Account:       "user@example.com",
		Timeout:       30 * time.Second,
		ChromeProfile: "Profile 1",
	}, refresher.requests[0])
}

func TestRefreshTokensToolDefaults(t *testing.T) {
	refresher := &stubRefresher{result: &auth.TokenResult{AccessToken: "AT1", RefreshToken: "RT1"}}
	s := newTestServer(t, refresher, nil)

	result := callTool(t, s, map[string]any{"platform": "youtube"})
	require.False(t, result.IsError)
	require.Len(t, refresher.requests, 1)
	assert.Equal(t, auth.YouTube, refresher.requests[0].Platform)
	assert.Equal(t, 120*time.Second, refresher.requests[0].Timeout)
}

func TestRefreshTokensToolInvalidPlatform(t *testing.T) {
	refresher := &stubRefresher{}
	s := newTestServer(t, refresher, nil)

	result := callTool(t, s, map[string]any{"platform": "myspace"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unsupported platform")
	assert.Empty(t, refresher.requests)
}

func TestRefreshTokensToolPropagatesFailure(t *testing.T) {
	refresher := &stubRefresher{err: apperrors.NewTimeoutError("timed out waiting for authorization")}
	s := newTestServer(t, refresher, nil)

	result := callTool(t, s, map[string]any{"platform": "tiktok"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "timed out")
}

func TestRefreshTokensToolPersists(t *testing.T) {
	refresher := &stubRefresher{result: &auth.TokenResult{AccessToken: "AT1", RefreshToken: "RT1"}}
	updater := &stubUpdater{}
	s := newTestServer(t, refresher, updater)

	result := callTool(t, s, map[string]any{
		"platform":        "youtube",
		"account":         "user@example.com",
		"creds_file_path": "/tmp/creds.json",
		"add_new_account": true,
	})
	require.False(t, result.IsError, resultText(t, result))

	assert.Equal(t, "/tmp/creds.json", updater.path)
	assert.Equal(t, "user@example.com", updater.account)
	assert.Equal(t, credentials.Tokens{AccessToken: "AT1", RefreshToken: "RT1"}, updater.tokens)
	assert.True(t, updater.add)
	assert.Contains(t, resultText(t, result), `"saved_as":"user@example.com"`)
}

func TestRefreshTokensToolPersistRequiresAccount(t *testing.T) {
	refresher := &stubRefresher{}
	s := newTestServer(t, refresher, &stubUpdater{})

	result := callTool(t, s, map[string]any{"platform": "youtube", "creds_file_path": "/tmp/creds.json"})
	assert.True(t, result.IsError)
	assert.Empty(t, refresher.requests)
}

func TestRefreshTokensToolUpdateFailure(t *testing.T) {
	refresher := &stubRefresher{result: &auth.TokenResult{AccessToken: "AT1", RefreshToken: "RT1"}}
	updater := &stubUpdater{err: apperrors.Newf(apperrors.AccountNotFound, "account %q not found in credentials file", "user@example.com")}
	s := newTestServer(t, refresher, updater)

	result := callTool(t, s, map[string]any{
		"platform":        "youtube",
		"account":         "user@example.com",
		"creds_file_path": "/tmp/creds.json",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "account_not_found")
}
