package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/blogspace/backend/internal/models"
	"github.com/blogspace/backend/pkg/tokens"
)

// Refresh tokens are stored as sha256 digests of the raw value; every method
// here takes the raw token and digests it internally.

func (r *GormRepo) AddRefreshToken(ctx context.Context, raw string, userID uint, expiresAt time.Time) error {
	rec := models.RefreshToken{
		Token:     tokens.Sha256Hex(raw),
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	return r.DB.WithContext(ctx).Create(&rec).Error
}

func (r *GormRepo) FindRefreshToken(ctx context.Context, raw string) (*models.RefreshToken, error) {
	var rec models.RefreshToken
	if err := r.DB.WithContext(ctx).
		Where("token = ?", tokens.Sha256Hex(raw)).
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefreshNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// RevokeRefreshToken is idempotent: revoking an unknown or already revoked
// token is not an error.
func (r *GormRepo) RevokeRefreshToken(ctx context.Context, raw string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ?", tokens.Sha256Hex(raw)).
		Update("revoked", true).Error
}

func (r *GormRepo) RevokeAllRefreshTokens(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ?", userID).
		Update("revoked", true).Error
}

// RotateRefreshToken revokes the presented token and inserts its replacement
// in one transaction. The re-check of the revoked flag inside the
// transaction closes the window where two concurrent refreshes of the same
// token could both be issued replacements.
func (r *GormRepo) RotateRefreshToken(ctx context.Context, oldRaw, newRaw string, userID uint, newExpiresAt time.Time) error {
	oldDigest := tokens.Sha256Hex(oldRaw)
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.RefreshToken
		if err := tx.Where("token = ?", oldDigest).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRefreshNotFound
			}
			return err
		}
		if rec.Revoked {
			return ErrRefreshRevoked
		}
		if rec.ExpiresAt.Before(time.Now()) {
			return ErrRefreshExpired
		}

		if err := tx.Model(&models.RefreshToken{}).
			Where("id = ?", rec.ID).
			Update("revoked", true).Error; err != nil {
			return err
		}

		newRec := models.RefreshToken{
			Token:     tokens.Sha256Hex(newRaw),
			UserID:    userID,
			ExpiresAt: newExpiresAt,
		}
		return tx.Create(&newRec).Error
	})
}
