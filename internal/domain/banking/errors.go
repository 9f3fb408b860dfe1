package banking

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrMissingParameters  = errors.New("missing parameters")
	ErrInvalidState       = errors.New("invalid state")
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrTokenRefreshFailed = errors.New("token refresh failed")
	ErrNoUsableToken      = errors.New("no usable token")
	ErrInvalidSelection   = errors.New("missing connectionId, kidId, or syncAll")
	ErrStoreConnection    = errors.New("failed to store connection")
)

// TokenExchangeError reports a rejected authorization code. Details holds the
// aggregator's response body, or the transport error when there was none.
type TokenExchangeError struct {
	Details string
	Err     error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %s", e.Details)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}
