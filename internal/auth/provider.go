package auth

import (
	"context"
)

// Provider is the per-platform strategy used by the callback server and the Authorizer
type Provider interface {
	// Platform identifies the provider
	Platform() Platform

	// DisplayName is shown on the callback pages
	DisplayName() string

	// Validate checks the static client registration before a flow starts
	Validate() error

	// RequiresPKCE reports whether flows carry a code verifier and challenge
	RequiresPKCE() bool

	// RootRedirect reports whether the browser is sent to the listener root,
	// which redirects to AuthorizationURL, instead of the authorization URL itself
	RootRedirect() bool

	// AuthorizationURL builds the platform consent URL for the flow
	AuthorizationURL(flow *Flow) string

	// Exchange trades an authorization code for tokens in a single request
	Exchange(ctx context.Context, flow *Flow, code string) (*TokenResult, error)
}
