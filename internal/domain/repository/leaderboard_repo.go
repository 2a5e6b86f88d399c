package repository

import (
	"context"

	"github.com/yourusername/polegion-api/internal/domain/entity"
)

// LeaderboardRepository определяет методы для сырых строк лидербордов.
// Increment*/Set* возвращают apperrors.ErrNotFound, если строки нет,
// Add* возвращают apperrors.ErrConflict, если строка уже есть.
type LeaderboardRepository interface {
	GetRawRoomBoard(ctx context.Context, roomID uint) ([]entity.RoomLeaderboardEntry, error)
	// GetRawCompeBoard возвращает строки всех соревнований комнаты
	GetRawCompeBoard(ctx context.Context, roomID uint) ([]entity.CompetitionLeaderboardEntry, error)

	AddRoomEntry(ctx context.Context, roomID, participantID uint) error
	AddCompeEntry(ctx context.Context, competitionID, participantID uint) error

	SetRoomXP(ctx context.Context, roomID, participantID uint, xp int) error
	SetCompeXP(ctx context.Context, competitionID, participantID uint, xp int) error

	// IncrementRoomXP атомарно увеличивает accumulated_xp на delta
	IncrementRoomXP(ctx context.Context, roomID, participantID uint, delta int) error
	// IncrementCompeXP атомарно увеличивает accumulated_xp на delta
	IncrementCompeXP(ctx context.Context, competitionID, participantID uint, delta int) error
}
