package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

// RoomRepo реализует repository.RoomRepository
type RoomRepo struct {
	db *gorm.DB
}

// NewRoomRepo создает новый репозиторий комнат
func NewRoomRepo(db *gorm.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetByID возвращает комнату по ID
func (r *RoomRepo) GetByID(ctx context.Context, roomID uint) (*entity.Room, error) {
	var room entity.Room
	if err := r.db.WithContext(ctx).First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// ListParticipants возвращает текущих участников комнаты
func (r *RoomRepo) ListParticipants(ctx context.Context, roomID uint) ([]entity.RoomParticipant, error) {
	var participants []entity.RoomParticipant
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id").
		Find(&participants).Error
	return participants, err
}

// GetParticipant возвращает членство пользователя в комнате
func (r *RoomRepo) GetParticipant(ctx context.Context, roomID uint, userID uuid.UUID) (*entity.RoomParticipant, error) {
	var participant entity.RoomParticipant
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &participant, nil
}
