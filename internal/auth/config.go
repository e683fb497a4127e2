package auth

import (
	"fmt"
	"time"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
)

const (
	defaultCallbackHost  = "127.0.0.1"
	defaultRedirectHost  = "localhost"
	defaultCallbackPort  = 8080
	defaultCallbackPath  = "/callback"
	defaultShutdownGrace = 5 * time.Second
	defaultHTTPTimeout   = 30 * time.Second
)

// ProviderConfig holds the static client registration of one platform
type ProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// Validate checks that the registration can be used for a flow
func (c ProviderConfig) Validate(platform Platform) error {
	switch {
	case c.ClientID == "":
		return apperrors.NewConfigurationError(fmt.Sprintf("%s client id is not configured", platform))
	case c.ClientSecret == "":
		return apperrors.NewConfigurationError(fmt.Sprintf("%s client secret is not configured", platform))
	case c.AuthURL == "" || c.TokenURL == "":
		return apperrors.NewConfigurationError(fmt.Sprintf("%s endpoints are not configured", platform))
	}
	return nil
}

// Config holds the loopback listener settings and the per-platform registrations
type Config struct {
	// CallbackHost is the interface the listener binds to
	CallbackHost string `mapstructure:"callback_host"`
	// RedirectHost is the host name used in the redirect URI registered with the platforms
	RedirectHost string `mapstructure:"redirect_host"`
	// CallbackPort is fixed by the platform registrations; 0 picks a free port (tests only)
	CallbackPort int    `mapstructure:"callback_port"`
	CallbackPath string `mapstructure:"callback_path"`
	// ShutdownGrace bounds how long an in-flight callback may keep the listener alive after the wait ends
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`

	YouTube ProviderConfig `mapstructure:"youtube"`
	TikTok  ProviderConfig `mapstructure:"tiktok"`
}

// DefaultConfig returns the production endpoints with empty client credentials
func DefaultConfig() Config {
	return Config{
		CallbackHost:  defaultCallbackHost,
		RedirectHost:  defaultRedirectHost,
		CallbackPort:  defaultCallbackPort,
		CallbackPath:  defaultCallbackPath,
		ShutdownGrace: defaultShutdownGrace,
		HTTPTimeout:   defaultHTTPTimeout,
		YouTube: ProviderConfig{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
			Scopes:   []string{"https://www.googleapis.com/auth/youtube.readonly"},
		},
		TikTok: ProviderConfig{
			AuthURL:  "https://www.tiktok.com/v2/auth/authorize/",
			TokenURL: "https://open.tiktokapis.com/v2/oauth/token/",
			Scopes:   []string{"user.info.basic", "user.info.profile", "user.info.stats", "video.list"},
		},
	}
}

// RedirectURI returns the callback URL for a listener bound on port
func (c Config) RedirectURI(port int) string {
	return fmt.Sprintf("http://%s:%d%s", c.RedirectHost, port, c.CallbackPath)
}

// RootURL returns the listener's root URL on port
func (c Config) RootURL(port int) string {
	return fmt.Sprintf("http://%s:%d/", c.RedirectHost, port)
}

// withDefaults fills zero values left by partial configuration
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CallbackHost == "" {
		c.CallbackHost = d.CallbackHost
	}
	if c.RedirectHost == "" {
		c.RedirectHost = d.RedirectHost
	}
	if c.CallbackPath == "" {
		c.CallbackPath = d.CallbackPath
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
	return c
}
