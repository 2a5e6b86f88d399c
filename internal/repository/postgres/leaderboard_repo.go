package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

// LeaderboardRepo реализует repository.LeaderboardRepository
type LeaderboardRepo struct {
	db *gorm.DB
}

// NewLeaderboardRepo создает новый репозиторий лидербордов
func NewLeaderboardRepo(db *gorm.DB) *LeaderboardRepo {
	return &LeaderboardRepo{db: db}
}

// GetRawRoomBoard возвращает строки лидерборда комнаты вместе с участником
func (r *LeaderboardRepo) GetRawRoomBoard(ctx context.Context, roomID uint) ([]entity.RoomLeaderboardEntry, error) {
	var entries []entity.RoomLeaderboardEntry
	err := r.db.WithContext(ctx).
		Preload("Participant").
		Where("room_id = ?", roomID).
		Order("accumulated_xp DESC, id ASC").
		Find(&entries).Error
	return entries, err
}

// GetRawCompeBoard возвращает строки лидербордов всех соревнований комнаты
func (r *LeaderboardRepo) GetRawCompeBoard(ctx context.Context, roomID uint) ([]entity.CompetitionLeaderboardEntry, error) {
	var entries []entity.CompetitionLeaderboardEntry
	err := r.db.WithContext(ctx).
		Preload("Competition").
		Preload("Participant").
		Joins("JOIN competitions ON competitions.id = competition_leaderboards.competition_id").
		Where("competitions.room_id = ?", roomID).
		Order("competition_leaderboards.competition_id ASC, competition_leaderboards.accumulated_xp DESC, competition_leaderboards.id ASC").
		Find(&entries).Error
	return entries, err
}

// AddRoomEntry создает строку с нулевым XP
func (r *LeaderboardRepo) AddRoomEntry(ctx context.Context, roomID, participantID uint) error {
	entry := entity.RoomLeaderboardEntry{RoomID: roomID, ParticipantID: participantID}
	return r.create(ctx, &entry, "room", roomID, participantID)
}

// AddCompeEntry создает строку с нулевым XP
func (r *LeaderboardRepo) AddCompeEntry(ctx context.Context, competitionID, participantID uint) error {
	entry := entity.CompetitionLeaderboardEntry{CompetitionID: competitionID, ParticipantID: participantID}
	return r.create(ctx, &entry, "competition", competitionID, participantID)
}

// SetRoomXP перезаписывает accumulated_xp
func (r *LeaderboardRepo) SetRoomXP(ctx context.Context, roomID, participantID uint, xp int) error {
	return r.update(ctx, &entity.RoomLeaderboardEntry{}, "room_id", roomID, participantID, xp)
}

// SetCompeXP перезаписывает accumulated_xp
func (r *LeaderboardRepo) SetCompeXP(ctx context.Context, competitionID, participantID uint, xp int) error {
	return r.update(ctx, &entity.CompetitionLeaderboardEntry{}, "competition_id", competitionID, participantID, xp)
}

// IncrementRoomXP атомарно увеличивает accumulated_xp через gorm.Expr
func (r *LeaderboardRepo) IncrementRoomXP(ctx context.Context, roomID, participantID uint, delta int) error {
	return r.update(ctx, &entity.RoomLeaderboardEntry{}, "room_id", roomID, participantID,
		gorm.Expr("accumulated_xp + ?", delta))
}

// IncrementCompeXP атомарно увеличивает accumulated_xp через gorm.Expr
func (r *LeaderboardRepo) IncrementCompeXP(ctx context.Context, competitionID, participantID uint, delta int) error {
	return r.update(ctx, &entity.CompetitionLeaderboardEntry{}, "competition_id", competitionID, participantID,
		gorm.Expr("accumulated_xp + ?", delta))
}

func (r *LeaderboardRepo) create(ctx context.Context, entry interface{}, scope string, scopeID, participantID uint) error {
	err := r.db.WithContext(ctx).Omit("Participant", "Competition").Create(entry).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s #%d already has entry for participant #%d",
				apperrors.ErrConflict, scope, scopeID, participantID)
		}
		return err
	}
	return nil
}

func (r *LeaderboardRepo) update(ctx context.Context, model interface{}, scopeColumn string, scopeID, participantID uint, value interface{}) error {
	result := r.db.WithContext(ctx).Model(model).
		Where(scopeColumn+" = ? AND participant_id = ?", scopeID, participantID).
		Update("accumulated_xp", value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
