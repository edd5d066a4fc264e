package identity

import "errors"

var (
	// ErrAuthenticationFailed covers a missing, malformed, forged or expired token.
	ErrAuthenticationFailed = errors.New("identity: authentication required")
	// ErrInvalidIdentity covers claims that verify but cannot form a Principal.
	// It never leaves the Resolver; callers see ErrAuthenticationFailed.
	ErrInvalidIdentity = errors.New("identity: invalid identity")
)
