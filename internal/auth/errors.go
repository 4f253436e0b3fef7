package auth

import "errors"

// Sentinel errors for authentication.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrForbidden          = errors.New("auth: insufficient permissions")
	ErrInvalidHash        = errors.New("auth: invalid password hash")
)
