package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

// IdentityRepo читает профили, синхронизированные из внешнего провайдера аутентификации
type IdentityRepo struct {
	db *gorm.DB
}

// NewIdentityRepo создает новый репозиторий профилей
func NewIdentityRepo(db *gorm.DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

// GetUserByID возвращает профиль пользователя
func (r *IdentityRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*entity.UserProfile, error) {
	var profile entity.UserProfile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// GetProfilePicture возвращает ссылку на аватар или nil, если аватар не задан
func (r *IdentityRepo) GetProfilePicture(ctx context.Context, userID uuid.UUID) (*string, error) {
	var profile entity.UserProfile
	err := r.db.WithContext(ctx).Select("id", "profile_pic").First(&profile, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return profile.ProfilePic, nil
}
