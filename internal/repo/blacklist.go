package repo

import (
	"context"
	"time"

	"github.com/blogspace/backend/internal/models"
	"github.com/blogspace/backend/pkg/tokens"
)

func (r *GormRepo) BlacklistToken(ctx context.Context, raw string, expiresAt time.Time) error {
	rec := models.BlacklistedToken{
		Token:     tokens.Sha256Hex(raw),
		ExpiresAt: expiresAt,
	}
	return r.DB.WithContext(ctx).Create(&rec).Error
}

func (r *GormRepo) IsBlacklisted(ctx context.Context, raw string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.BlacklistedToken{}).
		Where("token = ?", tokens.Sha256Hex(raw)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// PruneBlacklist removes entries past their natural expiry; verification
// rejects those tokens on exp alone, so the rows only cost storage.
func (r *GormRepo) PruneBlacklist(ctx context.Context) error {
	return r.DB.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.BlacklistedToken{}).Error
}
