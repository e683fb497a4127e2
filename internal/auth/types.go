package auth

import (
	"strings"
	"time"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
)

// Platform identifies one of the supported identity providers
type Platform string

const (
	// YouTube is the video platform (Google accounts)
	YouTube Platform = "youtube"
	// TikTok is the short-video platform
	TikTok Platform = "tiktok"
)

// Platforms lists every supported platform
var Platforms = []Platform{YouTube, TikTok}

// ParsePlatform converts a platform name, case-insensitively, into a Platform
func ParsePlatform(name string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(name))) {
	case YouTube:
		return YouTube, nil
	case TikTok:
		return TikTok, nil
	default:
		return "", apperrors.Newf(apperrors.InvalidArgument, "unsupported platform: %q", name)
	}
}

// TokenResult holds the outcome of a successful code exchange
type TokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	OpenID       string `json:"open_id,omitempty"`
}

// Complete reports whether both the access and refresh tokens are present
func (t *TokenResult) Complete() bool {
	return t != nil && t.AccessToken != "" && t.RefreshToken != ""
}

// Request describes one authorization attempt
type Request struct {
	Platform Platform
	// Account is the optional login hint; it is display-only on the callback pages
	Account string
	// Timeout bounds the wait for the browser round trip; zero or negative waits forever
	Timeout time.Duration
	// ChromePath launches this executable instead of the system default browser
	ChromePath string
	// ChromeProfile is passed as --profile-directory when ChromePath is set
	ChromeProfile string
}
