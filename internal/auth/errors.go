package auth

import "errors"

var (
	// ErrBadCaptcha rejects a login whose challenge is missing, expired,
	// or answered incorrectly.
	ErrBadCaptcha = errors.New("auth: incorrect verification code")

	// ErrBadCredentials covers unknown username, disabled account, and
	// wrong password alike. The message is deliberately uniform so a
	// caller cannot enumerate accounts.
	ErrBadCredentials = errors.New("auth: incorrect username or password")

	// ErrNoRoles rejects an authenticated user with no assigned roles.
	ErrNoRoles = errors.New("auth: user has no roles assigned")

	// ErrInvalidToken rejects a token that fails signature, expiry,
	// shape, or password-version checks.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrDependency marks a failure in an external store, cache, or
	// signer. Wrapped with context and never masked: a partially
	// completed login (tokens minted, cache write failed) must surface.
	ErrDependency = errors.New("auth: dependency failure")
)
