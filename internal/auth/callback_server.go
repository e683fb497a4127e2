package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
)

const (
	rootRoutePath        = "/"
	waitForAuthRoutePath = "/wait-for-auth"
	ginModeRelease       = "release"

	titleSuccess       = "Authorization Complete"
	titleError         = "Authorization Failed"
	titleSecurityError = "Security Error"
	titleTokenError    = "Token Retrieval Failed"

	messageNoCode           = "No authorization code received."
	messageAlreadyCompleted = "Authorization has already been completed for this session."
	messageProviderErrorFmt = "The authorization server returned an error: %s"

	logMessageProviderError   = "authorization server returned an error"
	logMessageMissingCode     = "callback without authorization code"
	logMessageStateMismatch   = "state mismatch on callback"
	logMessageDuplicate       = "callback after flow was resolved"
	logMessageExchangeFailure = "token exchange failed"
	logMessageIncompleteSet   = "token exchange returned an incomplete token set"
	logMessageResolved        = "authorization resolved"
	logMessageServeFailure    = "callback server stopped unexpectedly"
)

// CallbackServerConfig configures the loopback listener for one flow
type CallbackServerConfig struct {
	Host string
	// Port 0 binds an ephemeral port
	Port          int
	Path          string
	Flow          *Flow
	Provider      Provider
	Logger        *zap.Logger
	ShutdownGrace time.Duration
}

// CallbackServer receives the browser redirect, verifies state, exchanges the
// code and resolves the flow. It serves exactly one flow.
type CallbackServer struct {
	config   CallbackServerConfig
	logger   *zap.Logger
	engine   *gin.Engine
	server   *http.Server
	listener net.Listener

	// exchangeMu serialises exchanges so a duplicate callback never reaches the token endpoint twice
	exchangeMu sync.Mutex
}

// NewCallbackServer builds the gin engine for the flow. Call Listen before Serve.
func NewCallbackServer(config CallbackServerConfig) *CallbackServer {
	if config.Host == "" {
		config.Host = defaultCallbackHost
	}
	if config.Path == "" {
		config.Path = defaultCallbackPath
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = defaultShutdownGrace
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &CallbackServer{
		config: config,
		logger: logger.With(zap.String("flow_id", config.Flow.ID), zap.String("platform", string(config.Flow.Platform))),
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.SetHTMLTemplate(loadTemplates())

	if config.Provider.RootRedirect() {
		engine.GET(rootRoutePath, s.handleRoot)
	}
	engine.GET(config.Path, s.handleCallback)
	engine.GET(waitForAuthRoutePath, s.handleWaitForAuth)

	s.engine = engine
	s.server = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routes for in-process testing
func (s *CallbackServer) Handler() http.Handler {
	return s.engine
}

// Listen binds the listener. Once it returns, the callback URL accepts connections.
func (s *CallbackServer) Listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ListenerError, fmt.Sprintf("failed to listen on %s", addr))
	}
	s.listener = listener
	return nil
}

// Port returns the bound port, or the configured port before Listen
func (s *CallbackServer) Port() int {
	if s.listener == nil {
		return s.config.Port
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve handles requests until ctx is cancelled, then shuts down gracefully,
// letting an in-flight exchange finish within ShutdownGrace. It returns nil
// once Close has been called.
func (s *CallbackServer) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(logMessageServeFailure, zap.Error(err))
			return apperrors.Wrap(err, apperrors.ListenerError, "callback server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("callback server shutdown did not complete", zap.Error(err))
		_ = s.server.Close()
	}
	return nil
}

// Close drops the listener and every open connection without waiting for
// in-flight requests
func (s *CallbackServer) Close() error {
	return s.server.Close()
}

func (s *CallbackServer) handleRoot(ginContext *gin.Context) {
	ginContext.Redirect(http.StatusFound, s.config.Provider.AuthorizationURL(s.config.Flow))
}

func (s *CallbackServer) handleCallback(ginContext *gin.Context) {
	flow := s.config.Flow

	if providerErr := ginContext.Query("error"); providerErr != "" {
		s.logger.Warn(logMessageProviderError,
			zap.String("error", providerErr),
			zap.String("error_description", ginContext.Query("error_description")))
		s.render(ginContext, http.StatusBadRequest, templateError, titleError, fmt.Sprintf(messageProviderErrorFmt, providerErr))
		return
	}

	code := ginContext.Query("code")
	if code == "" {
		s.logger.Warn(logMessageMissingCode)
		s.render(ginContext, http.StatusBadRequest, templateError, titleError, messageNoCode)
		return
	}

	if err := verifyState(flow, ginContext.Query("state")); err != nil {
		s.logger.Warn(logMessageStateMismatch, zap.Error(err))
		s.renderFailure(ginContext, err)
		return
	}

	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	if flow.Resolved() {
		s.logger.Info(logMessageDuplicate)
		s.render(ginContext, http.StatusConflict, templateError, titleError, messageAlreadyCompleted)
		return
	}

	result, err := s.config.Provider.Exchange(ginContext.Request.Context(), flow, code)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode != 0 {
			fields = append(fields, zap.Int("status", appErr.StatusCode), zap.String("body", appErr.Details))
		}
		s.logger.Error(logMessageExchangeFailure, fields...)
		s.renderFailure(ginContext, err)
		return
	}
	if !result.Complete() {
		s.logger.Error(logMessageIncompleteSet,
			zap.Bool("has_access_token", result != nil && result.AccessToken != ""),
			zap.Bool("has_refresh_token", result != nil && result.RefreshToken != ""))
		s.renderFailure(ginContext, apperrors.New(apperrors.ExchangeError, logMessageIncompleteSet))
		return
	}

	if !flow.Resolve(result) {
		s.logger.Info(logMessageDuplicate)
		s.render(ginContext, http.StatusConflict, templateError, titleError, messageAlreadyCompleted)
		return
	}

	s.logger.Info(logMessageResolved)
	s.render(ginContext, http.StatusOK, templateSuccess, titleSuccess, "")
}

// handleWaitForAuth reports 200 once the flow is resolved and 202 while it is pending
func (s *CallbackServer) handleWaitForAuth(ginContext *gin.Context) {
	if s.config.Flow.Resolved() {
		ginContext.Status(http.StatusOK)
		return
	}
	ginContext.Status(http.StatusAccepted)
}

func (s *CallbackServer) render(ginContext *gin.Context, status int, name, title, message string) {
	ginContext.HTML(status, name, newPageData(s.config.Provider, s.config.Flow.Account, title, message))
}

// renderFailure shows the security page for a state mismatch and the token
// error page for anything that went wrong once the state was accepted
func (s *CallbackServer) renderFailure(ginContext *gin.Context, err error) {
	if apperrors.TypeOf(err) == apperrors.CsrfMismatch {
		s.render(ginContext, http.StatusBadRequest, templateSecurityError, titleSecurityError, "")
		return
	}
	s.render(ginContext, http.StatusBadRequest, templateTokenError, titleTokenError, "")
}

// verifyState fails closed: a missing or different state is a CSRF mismatch
func verifyState(flow *Flow, received string) error {
	if !stateMatches(flow.State, received) {
		return apperrors.NewCsrfMismatch("state parameter does not match the flow")
	}
	return nil
}

func stateMatches(expected, received string) bool {
	if expected == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
