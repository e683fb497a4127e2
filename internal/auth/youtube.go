package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
)

// YouTubeProvider authorizes against Google accounts using golang.org/x/oauth2
type YouTubeProvider struct {
	config     ProviderConfig
	httpClient *http.Client
}

// NewYouTubeProvider creates the video platform provider. httpClient may be nil.
func NewYouTubeProvider(config ProviderConfig, httpClient *http.Client) *YouTubeProvider {
	return &YouTubeProvider{
		config:     config,
		httpClient: httpClient,
	}
}

func (p *YouTubeProvider) Platform() Platform  { return YouTube }
func (p *YouTubeProvider) DisplayName() string { return "YouTube" }
func (p *YouTubeProvider) RequiresPKCE() bool  { return false }
func (p *YouTubeProvider) RootRedirect() bool  { return true }

func (p *YouTubeProvider) Validate() error {
	return p.config.Validate(YouTube)
}

// oauthConfig sends the client credentials in the request body, as Google's token endpoint accepts
func (p *YouTubeProvider) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.config.AuthURL,
			TokenURL:  p.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      p.config.Scopes,
	}
}

// AuthorizationURL requests offline access and forces the consent screen so a refresh token is issued
func (p *YouTubeProvider) AuthorizationURL(flow *Flow) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	}
	if flow.Account != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", flow.Account))
	}
	return p.oauthConfig(flow.RedirectURI).AuthCodeURL(flow.State, opts...)
}

// Exchange performs the authorization_code grant
func (p *YouTubeProvider) Exchange(ctx context.Context, flow *Flow, code string) (*TokenResult, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.oauthConfig(flow.RedirectURI).Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			exchangeErr := apperrors.NewExchangeError("token exchange failed", status, string(retrieveErr.Body))
			exchangeErr.Cause = err
			return nil, exchangeErr
		}
		return nil, apperrors.Wrap(err, apperrors.ExchangeError, "token exchange failed")
	}

	result := &TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		result.Scope = scope
	}
	if !token.Expiry.IsZero() {
		result.ExpiresIn = int64(time.Until(token.Expiry).Round(time.Second).Seconds())
	}
	return result, nil
}
