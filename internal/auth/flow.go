package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Flow is the single in-flight authorization attempt. It is created fresh for
// every RefreshTokens call and shared by the callback server (the only writer
// of the result) and the waiting orchestrator.
type Flow struct {
	ID           string
	Platform     Platform
	Account      string
	State        string
	CodeVerifier string
	// CodeChallenge is DeriveCodeChallenge(CodeVerifier), empty without PKCE
	CodeChallenge string
	RedirectURI   string
	// Deadline is zero when the flow waits forever
	Deadline time.Time

	mu     sync.Mutex
	result *TokenResult
	done   chan struct{}
}

// NewFlow generates fresh anti-forgery material for a flow on the given provider
func NewFlow(provider Provider, account string, timeout time.Duration) (*Flow, error) {
	state, err := GenerateState(DefaultStateLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	flow := &Flow{
		ID:       uuid.NewString(),
		Platform: provider.Platform(),
		Account:  account,
		State:    state,
		done:     make(chan struct{}),
	}

	if provider.RequiresPKCE() {
		verifier, err := GenerateCodeVerifier(MinCodeVerifierLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate code verifier: %w", err)
		}
		flow.CodeVerifier = verifier
		flow.CodeChallenge = DeriveCodeChallenge(verifier)
	}

	if timeout > 0 {
		flow.Deadline = time.Now().Add(timeout)
	}

	return flow, nil
}

// Resolve stores a complete token set. The first complete result wins; later
// calls and incomplete results are rejected and leave the flow unchanged.
func (f *Flow) Resolve(result *TokenResult) bool {
	if !result.Complete() {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.result != nil {
		return false
	}
	f.result = result
	close(f.done)
	return true
}

// Resolved reports whether a complete result has been stored
func (f *Flow) Resolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result != nil
}

// Result returns the stored result, or nil while the flow is pending
func (f *Flow) Result() *TokenResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// Done is closed once the flow is resolved
func (f *Flow) Done() <-chan struct{} {
	return f.done
}
