package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/blogspace/backend/internal/models"
)

func (r *GormRepo) CreateResetToken(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error {
	rec := models.PasswordResetToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	return r.DB.WithContext(ctx).Create(&rec).Error
}

// FindResetToken returns the newest record matching the digest; when several
// coexist for a user the latest one wins.
func (r *GormRepo) FindResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	var rec models.PasswordResetToken
	if err := r.DB.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		Order("created_at DESC").
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResetNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// DeleteResetTokensForUser clears every outstanding reset token, making a
// consumed token single-use.
func (r *GormRepo) DeleteResetTokensForUser(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.PasswordResetToken{}).Error
}
