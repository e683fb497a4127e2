package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
	"github.com/naotama2002/platform-auth-refresh/internal/httpclient"
)

// TikTokProvider authorizes against TikTok Login Kit v2. TikTok names the client id
// "client_key", so the exchange is a hand-built form POST rather than x/oauth2.
type TikTokProvider struct {
	config ProviderConfig
	client *httpclient.Client
}

// tiktokTokenResponse covers both the success body and the error body, which TikTok may send with status 200
type tiktokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	OpenID           string `json:"open_id"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// NewTikTokProvider creates the short-video platform provider. client may be nil.
func NewTikTokProvider(config ProviderConfig, client *httpclient.Client) *TikTokProvider {
	if client == nil {
		client = httpclient.New(nil)
	}
	return &TikTokProvider{
		config: config,
		client: client,
	}
}

func (p *TikTokProvider) Platform() Platform  { return TikTok }
func (p *TikTokProvider) DisplayName() string { return "TikTok" }
func (p *TikTokProvider) RequiresPKCE() bool  { return true }
func (p *TikTokProvider) RootRedirect() bool  { return false }

func (p *TikTokProvider) Validate() error {
	return p.config.Validate(TikTok)
}

// AuthorizationURL includes the hex challenge and disable_auto_auth so the consent screen is always shown
func (p *TikTokProvider) AuthorizationURL(flow *Flow) string {
	params := url.Values{}
	params.Set("client_key", p.config.ClientID)
	params.Set("scope", strings.Join(p.config.Scopes, ","))
	params.Set("response_type", "code")
	params.Set("redirect_uri", flow.RedirectURI)
	params.Set("state", flow.State)
	params.Set("code_challenge", flow.CodeChallenge)
	params.Set("code_challenge_method", "S256")
	params.Set("disable_auto_auth", "1")
	if flow.Account != "" {
		params.Set("prefill_username", flow.Account)
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange performs the authorization_code grant. The code is percent-encoded
// before it is placed in the form, as TikTok requires.
func (p *TikTokProvider) Exchange(ctx context.Context, flow *Flow, code string) (*TokenResult, error) {
	form := url.Values{}
	form.Set("client_key", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("code", escapeCode(code))
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", flow.RedirectURI)
	form.Set("code_verifier", flow.CodeVerifier)

	resp, err := p.client.PostForm(ctx, p.config.TokenURL, form, nil)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			exchangeErr := apperrors.NewExchangeError("token exchange failed", statusErr.StatusCode, statusErr.Body)
			exchangeErr.Cause = err
			return nil, exchangeErr
		}
		return nil, apperrors.Wrap(err, apperrors.ExchangeError, "token exchange failed")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExchangeError("token exchange failed", resp.StatusCode, resp.String())
	}

	var body tiktokTokenResponse
	if err := resp.JSON(&body); err != nil {
		exchangeErr := apperrors.NewExchangeError("malformed token response", resp.StatusCode, resp.String())
		exchangeErr.Cause = err
		return nil, exchangeErr
	}
	if body.AccessToken == "" {
		return nil, apperrors.NewExchangeError("no access_token in response", resp.StatusCode, resp.String())
	}

	return &TokenResult{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		TokenType:    body.TokenType,
		Scope:        body.Scope,
		ExpiresIn:    body.ExpiresIn,
		OpenID:       body.OpenID,
	}, nil
}

// escapeCode percent-encodes every byte outside the unreserved set, spaces included
func escapeCode(code string) string {
	return strings.ReplaceAll(url.QueryEscape(code), "+", "%20")
}
