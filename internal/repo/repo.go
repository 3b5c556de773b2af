package repo

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExist   = errors.New("username or email exists")
	ErrRefreshNotFound    = errors.New("refresh token not found")
	ErrRefreshRevoked     = errors.New("refresh token revoked")
	ErrRefreshExpired     = errors.New("refresh token expired")
	ErrResetNotFound      = errors.New("reset token not found")
)

type GormRepo struct {
	DB *gorm.DB
}
