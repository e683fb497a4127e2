package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
	"github.com/naotama2002/platform-auth-refresh/internal/httpclient"
)

const (
	accessTokenMaskHead  = 20
	accessTokenMaskTail  = 10
	refreshTokenMaskHead = 10
	refreshTokenMaskTail = 10
)

// Option customises an Authorizer
type Option func(*Authorizer)

// WithProvider registers or replaces the provider for its platform
func WithProvider(provider Provider) Option {
	return func(a *Authorizer) {
		a.providers[provider.Platform()] = provider
	}
}

// WithBrowser replaces the system browser launcher
func WithBrowser(launcher BrowserLauncher) Option {
	return func(a *Authorizer) {
		a.browser = launcher
	}
}

// Authorizer runs one interactive authorization at a time: it binds the
// loopback listener, opens the consent page and waits for the tokens.
type Authorizer struct {
	config    Config
	logger    *zap.Logger
	browser   BrowserLauncher
	providers map[Platform]Provider

	// flows admits one RefreshTokens call at a time
	flows *semaphore.Weighted
	// listener is held from Listen until the callback server has stopped
	listener *semaphore.Weighted
}

// NewAuthorizer creates an Authorizer with the production providers for both platforms
func NewAuthorizer(config Config, logger *zap.Logger, opts ...Option) *Authorizer {
	config = config.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	client := httpclient.New(&httpclient.Config{Timeout: config.HTTPTimeout})
	a := &Authorizer{
		config:  config,
		logger:  logger,
		browser: NewSystemBrowser(logger),
		providers: map[Platform]Provider{
			YouTube: NewYouTubeProvider(config.YouTube, client.HTTPClient()),
			TikTok:  NewTikTokProvider(config.TikTok, client),
		},
		flows:    semaphore.NewWeighted(1),
		listener: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RefreshTokens performs one authorization for req and returns the token pair.
// It fails with a timeout error when no complete result arrives before
// req.Timeout; a zero or negative timeout waits until ctx is done. Callback
// failures (provider errors, state mismatch, rejected exchange) are only shown
// in the browser and surface here as that timeout. The call returns as soon as
// the wait ends; the listener finishes shutting down in the background.
func (a *Authorizer) RefreshTokens(ctx context.Context, req Request) (*TokenResult, error) {
	if !a.flows.TryAcquire(1) {
		return nil, apperrors.NewInvalidArgument("authorization already in progress")
	}
	defer a.flows.Release(1)

	provider, ok := a.providers[req.Platform]
	if !ok {
		return nil, apperrors.Newf(apperrors.InvalidArgument, "unsupported platform: %q", req.Platform)
	}
	if err := provider.Validate(); err != nil {
		return nil, err
	}

	flow, err := NewFlow(provider, req.Account, req.Timeout)
	if err != nil {
		return nil, err
	}
	logger := a.logger.With(zap.String("flow_id", flow.ID), zap.String("platform", string(flow.Platform)))

	server := NewCallbackServer(CallbackServerConfig{
		Host:          a.config.CallbackHost,
		Port:          a.config.CallbackPort,
		Path:          a.config.CallbackPath,
		Flow:          flow,
		Provider:      provider,
		Logger:        a.logger,
		ShutdownGrace: a.config.ShutdownGrace,
	})

	// the previous flow's listener may still be draining on the same port
	if err := a.listener.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ListenerError, "previous callback listener is still shutting down")
	}
	if err := server.Listen(); err != nil {
		a.listener.Release(1)
		return nil, err
	}
	flow.RedirectURI = a.config.RedirectURI(server.Port())

	launchURL := provider.AuthorizationURL(flow)
	if provider.RootRedirect() {
		launchURL = a.config.RootURL(server.Port())
	}

	// serveCtx is independent of ctx so a successful flow always gets its graceful shutdown
	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()

	serveErr := make(chan error, 1)
	go func() {
		defer a.listener.Release(1)
		serveErr <- server.Serve(serveCtx)
	}()

	logger.Info("waiting for authorization",
		zap.String("redirect_uri", flow.RedirectURI),
		zap.Duration("timeout", req.Timeout))

	if err := a.browser.Open(launchURL, BrowserOptions{ChromePath: req.ChromePath, ChromeProfile: req.ChromeProfile}); err != nil {
		logger.Warn("could not open browser automatically, open the url manually",
			zap.String("url", launchURL), zap.Error(err))
	}

	result, err := awaitResult(ctx, flow, serveErr)
	if err != nil {
		// late callbacks are discarded, so nothing is left to drain
		if closeErr := server.Close(); closeErr != nil {
			logger.Debug("closing callback server", zap.Error(closeErr))
		}
		logger.Warn("authorization did not complete", zap.Error(err))
		return nil, err
	}

	logTokenSummary(logger, req.Account, result)
	return result, nil
}

// awaitResult blocks until the flow resolves, its deadline passes, the
// callback server stops or ctx is done
func awaitResult(ctx context.Context, flow *Flow, serveErr <-chan error) (*TokenResult, error) {
	var deadline <-chan time.Time
	if !flow.Deadline.IsZero() {
		timer := time.NewTimer(time.Until(flow.Deadline))
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-flow.Done():
		return flow.Result(), nil
	case <-deadline:
		if flow.Resolved() {
			return flow.Result(), nil
		}
		return nil, apperrors.NewTimeoutError("timed out waiting for authorization")
	case err := <-serveErr:
		if err != nil {
			return nil, err
		}
		return nil, apperrors.New(apperrors.ListenerError, "callback server stopped before authorization completed")
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), apperrors.ExchangeError, "authorization ended without tokens")
	}
}

func logTokenSummary(logger *zap.Logger, account string, result *TokenResult) {
	fields := []zap.Field{
		zap.String("account", account),
		zap.String("access_token", MaskToken(result.AccessToken, accessTokenMaskHead, accessTokenMaskTail)),
		zap.String("refresh_token", MaskToken(result.RefreshToken, refreshTokenMaskHead, refreshTokenMaskTail)),
	}
	if result.ExpiresIn > 0 {
		fields = append(fields, zap.Int64("expires_in", result.ExpiresIn))
	}
	if result.OpenID != "" {
		fields = append(fields, zap.String("open_id", result.OpenID))
	}
	logger.Info("tokens obtained", fields...)
}

// MaskToken keeps the first head and last tail characters of token. Tokens
// too short to mask meaningfully are replaced entirely.
func MaskToken(token string, head, tail int) string {
	if token == "" {
		return ""
	}
	if len(token) <= head+tail {
		return fmt.Sprintf("*** (%d chars)", len(token))
	}
	return token[:head] + "..." + token[len(token)-tail:]
}
