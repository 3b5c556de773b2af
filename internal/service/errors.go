package service

import "errors"

// Error taxonomy returned by AuthService. The HTTP layer matches on these
// with errors.Is and maps each to its status code and wire message.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("username or email exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrInvalidToken  = errors.New("invalid refresh token")
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenRevoked  = errors.New("refresh token revoked")
	ErrTokenExpired  = errors.New("refresh token expired")

	ErrResetTokenInvalid = errors.New("invalid or expired token")

	ErrUserNotFound = errors.New("user not found")
)
