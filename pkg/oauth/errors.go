package oauth

import (
	"errors"
	"fmt"

	"github.com/go-training/clickup-mcp/pkg/store"
)

var (
	// ErrInvalidState is returned when a callback presents a state that is unknown,
	// already consumed or past its TTL. Callers must restart the authorize flow.
	ErrInvalidState = errors.New("invalid or expired oauth state")
	// ErrDuplicateState is returned when a generated or caller-supplied state collides
	// with a pending one.
	ErrDuplicateState = store.ErrDuplicateState
	// ErrTokenExchangeFailed is returned when the authorization server rejects a code.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrTokenRefreshFailed is returned when a refresh grant is rejected.
	ErrTokenRefreshFailed = errors.New("token refresh failed")
	// ErrTokenRevocationFailed is returned when a revocation request is rejected.
	// Revocation is best effort and never blocks local teardown.
	ErrTokenRevocationFailed = errors.New("token revocation failed")
	// ErrInvalidRedirectURI is returned when the redirect URI is not an absolute http(s) URL.
	ErrInvalidRedirectURI = errors.New("invalid redirect uri")
)

// TokenError describes a failed call to the token or revocation endpoint.
// Error() never includes the upstream body; Detail is meant for operator logs.
type TokenError struct {
	Op         string
	StatusCode int
	Code       string
	Detail     string

	kind  error
	cause error
}

func (e *TokenError) Error() string {
	msg := e.kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: upstream status %d", msg, e.StatusCode)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.cause != nil && e.StatusCode == 0 {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Rejected reports whether the authorization server refused the request, as
// opposed to the request never getting an answer (timeout, cancellation, network).
func (e *TokenError) Rejected() bool {
	return e.StatusCode != 0 || e.cause == nil
}

// Unwrap exposes both the sentinel kind and the transport cause to errors.Is/As.
func (e *TokenError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}
