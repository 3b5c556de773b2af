package models

import (
	"time"
)

type User struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username        string    `gorm:"uniqueIndex;not null"     json:"username"`
	Email           string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash    string    `gorm:"not null"                 json:"-"`
	Role            string    `gorm:"not null;default:user"    json:"role"`
	Bio             string    `json:"bio"`
	AvatarURL       string    `json:"avatar_url"`
	IsEmailVerified bool      `gorm:"default:false"            json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RefreshToken rows are append-only: rotation, logout and password reset
// flip Revoked, nothing is deleted.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"           json:"id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	UserID    uint      `gorm:"index;not null"       json:"user_id"`
	ExpiresAt time.Time `gorm:"not null"             json:"expires_at"`
	Revoked   bool      `gorm:"default:false"        json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// BlacklistedToken denies an already-issued access token for the rest of
// its natural lifetime. Rows may be garbage-collected after ExpiresAt.
type BlacklistedToken struct {
	ID        uint      `gorm:"primaryKey"           json:"id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null"             json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// PasswordResetToken stores only the sha256 digest of the mailed secret.
type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"     json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	TokenHash string    `gorm:"index;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null"       json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
