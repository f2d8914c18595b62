// Package common defines shared constants and sentinel errors used across
// the relay and client components of clipsync. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors.
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrInvalidApiKey  = errors.New("invalid api key")
	ErrAccountBlocked = errors.New("account is not active")

	// ErrUsernameTaken is returned when registering an already-used username.
	// The comparison is case-insensitive.
	ErrUsernameTaken = errors.New("username already taken")
)
