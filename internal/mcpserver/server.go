// Package mcpserver exposes the token refresh flow as an MCP tool over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/naotama2002/platform-auth-refresh/internal/auth"
	"github.com/naotama2002/platform-auth-refresh/internal/credentials"
)

const (
	serverName        = "platform-auth-refresh"
	serverVersion     = "0.1.0"
	refreshToolName   = "refresh_tokens"
	defaultTimeoutSec = 120
)

// TokenRefresher runs one interactive authorization
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, req auth.Request) (*auth.TokenResult, error)
}

// CredentialsUpdater persists a token pair into a credentials file
type CredentialsUpdater interface {
	Update(ctx context.Context, path, account string, tokens credentials.Tokens, addIfMissing bool) (*credentials.Result, error)
}

// Config holds defaults applied to tool calls
type Config struct {
	DefaultTimeout    time.Duration
	ChromeUserDataDir string
}

// Server hosts the MCP server
type Server struct {
	mcpServer *server.MCPServer
	refresher TokenRefresher
	updater   CredentialsUpdater
	config    Config
	logger    *zap.Logger
}

// refreshResult is the JSON text returned by the tool
type refreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	OpenID       string `json:"open_id,omitempty"`
	SavedAs      string `json:"saved_as,omitempty"`
	Added        bool   `json:"added,omitempty"`
}

// New creates the MCP server with the refresh_tokens tool registered. updater may be nil,
// in which case creds_file_path is rejected.
func New(refresher TokenRefresher, updater CredentialsUpdater, config Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = defaultTimeoutSec * time.Second
	}

	s := &Server{
		refresher: refresher,
		updater:   updater,
		config:    config,
		logger:    logger,
	}
	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	s.mcpServer.AddTool(refreshTokensTool(), s.handleRefreshTokens)
	return s
}

// Serve runs the MCP server on stdio until stdin closes
func (s *Server) Serve() error {
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func refreshTokensTool() mcp.Tool {
	return mcp.NewTool(
		refreshToolName,
		mcp.WithDescription("Runs the browser OAuth consent flow for a platform account and returns the new access and refresh tokens"),
		mcp.WithString("platform",
			mcp.Required(),
			mcp.Description("Platform to authorize"),
			mcp.Enum(string(auth.YouTube), string(auth.TikTok)),
		),
		mcp.WithString("account",
			mcp.Description("Account used as login hint and credentials key"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Seconds to wait for the browser round trip; 0 or negative waits forever"),
		),
		mcp.WithString("chrome_path",
			mcp.Description("Chrome executable to open instead of the default browser"),
		),
		mcp.WithString("chrome_profile",
			mcp.Description("Chrome profile directory; inferred from the account when omitted"),
		),
		mcp.WithString("creds_file_path",
			mcp.Description("Credentials JSON file to update with the new tokens"),
		),
		mcp.WithBoolean("add_new_account",
			mcp.Description("Add the account to the credentials file when it is missing"),
		),
	)
}

func (s *Server) handleRefreshTokens(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := any(request.Params.Arguments).(map[string]any)

	platform, err := auth.ParsePlatform(stringArg(args, "platform"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := auth.Request{
		Platform:      platform,
		Account:       stringArg(args, "account"),
		Timeout:       s.config.DefaultTimeout,
		ChromePath:    stringArg(args, "chrome_path"),
		ChromeProfile: stringArg(args, "chrome_profile"),
	}
	if timeout, ok := args["timeout"].(float64); ok {
		req.Timeout = time.Duration(timeout * float64(time.Second))
	}

	credsPath := stringArg(args, "creds_file_path")
	if credsPath != "" && (s.updater == nil || req.Account == "") {
		return mcp.NewToolResultError("creds_file_path requires an account and a configured credentials updater"), nil
	}

	if err := auth.InferChromeProfile(&req, s.config.ChromeUserDataDir); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tokens, err := s.refresher.RefreshTokens(ctx, req)
	if err != nil {
		s.logger.Warn("refresh_tokens failed", zap.String("platform", string(platform)), zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := refreshResult{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		OpenID:       tokens.OpenID,
	}

	if credsPath != "" {
		addNew, _ := args["add_new_account"].(bool)
		saved, err := s.updater.Update(ctx, credsPath, req.Account,
			credentials.Tokens{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, addNew)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result.SavedAs = saved.Key
		result.Added = saved.Added
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode refresh result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func stringArg(args map[string]any, name string) string {
	value, _ := args[name].(string)
	return value
}
