package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/yourusername/polegion-api/internal/domain/entity"
)

// RoomRepository определяет методы чтения комнат и их участников
type RoomRepository interface {
	GetByID(ctx context.Context, roomID uint) (*entity.Room, error)
	ListParticipants(ctx context.Context, roomID uint) ([]entity.RoomParticipant, error)
	GetParticipant(ctx context.Context, roomID uint, userID uuid.UUID) (*entity.RoomParticipant, error)
}

// IdentityRepository читает профили пользователей внешнего провайдера
type IdentityRepository interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*entity.UserProfile, error)
	GetProfilePicture(ctx context.Context, userID uuid.UUID) (*string, error)
}
