package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/blogspace/backend/internal/models"
)

// FindByIdentifier looks a user up by username or email, whichever matches.
func (r *GormRepo) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).
		Where("username = ? OR email = ?", identifier, identifier).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts u unless the username or email is already taken.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", u.Username, u.Email).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrUserAlreadyExist
	}
	return r.DB.WithContext(ctx).Create(u).Error
}

func (r *GormRepo) UpdateUserPassword(ctx context.Context, userID uint, passwordHash string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", passwordHash).Error
}
