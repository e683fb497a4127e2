package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
)

const (
	// DefaultStateLength is the length of the anti-forgery state token
	DefaultStateLength = 30

	// MinCodeVerifierLength and MaxCodeVerifierLength bound the verifier per RFC 7636 Section 4.1
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128

	stateCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// codeVerifierCharset is the set of unreserved characters allowed in the code verifier:
	// [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	codeVerifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
)

// GenerateState returns a random state token of the given length drawn from [A-Za-z0-9]
func GenerateState(length int) (string, error) {
	if length <= 0 {
		return "", apperrors.Newf(apperrors.InvalidArgument, "state length must be positive, got %d", length)
	}
	return randomString(length, stateCharset)
}

// GenerateCodeVerifier returns a random PKCE code verifier of the given length
func GenerateCodeVerifier(length int) (string, error) {
	if length < MinCodeVerifierLength || length > MaxCodeVerifierLength {
		return "", apperrors.Newf(apperrors.InvalidArgument,
			"code verifier length must be between %d and %d characters, got %d",
			MinCodeVerifierLength, MaxCodeVerifierLength, length)
	}
	return randomString(length, codeVerifierCharset)
}

// DeriveCodeChallenge returns the lowercase hex SHA-256 digest of the verifier.
// The TikTok backend expects hex here, not the RFC 7636 base64url encoding, even
// though the authorization request labels the method S256.
func DeriveCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(sum[:])
}

// randomString draws each character uniformly from charset with crypto/rand
func randomString(length int, charset string) (string, error) {
	limit := big.NewInt(int64(len(charset)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		b[i] = charset[n.Int64()]
	}
	return string(b), nil
}
