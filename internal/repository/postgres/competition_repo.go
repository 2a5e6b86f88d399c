package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

// CompetitionRepo реализует repository.CompetitionRepository
type CompetitionRepo struct {
	db *gorm.DB
}

// NewCompetitionRepo создает новый репозиторий соревнований
func NewCompetitionRepo(db *gorm.DB) *CompetitionRepo {
	return &CompetitionRepo{db: db}
}

// Create создает новое соревнование в статусе NEW
func (r *CompetitionRepo) Create(ctx context.Context, competition *entity.Competition) error {
	competition.Status = entity.CompetitionStatusNew
	return r.db.WithContext(ctx).Create(competition).Error
}

// GetByID возвращает соревнование по ID
func (r *CompetitionRepo) GetByID(ctx context.Context, id uint) (*entity.Competition, error) {
	var competition entity.Competition
	err := r.db.WithContext(ctx).First(&competition, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompetitionNotFound
		}
		return nil, err
	}
	return &competition, nil
}

// GetByIDInRoom возвращает соревнование, только если оно принадлежит комнате
func (r *CompetitionRepo) GetByIDInRoom(ctx context.Context, id, roomID uint) (*entity.Competition, error) {
	var competition entity.Competition
	err := r.db.WithContext(ctx).
		Where("id = ? AND room_id = ?", id, roomID).
		First(&competition).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompetitionNotFound
		}
		return nil, err
	}
	return &competition, nil
}

// ListByRoom возвращает соревнования комнаты, новые первыми
func (r *CompetitionRepo) ListByRoom(ctx context.Context, roomID uint) ([]entity.Competition, error) {
	var competitions []entity.Competition
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Find(&competitions).Error
	return competitions, err
}

// UpdateCurrentProblem условно переключает текущую задачу и сбрасывает таймер прошлой.
// RowsAffected == 0 означает, что индекс уже сдвинут кем-то другим или соревнование завершено.
func (r *CompetitionRepo) UpdateCurrentProblem(ctx context.Context, id uint, expectedIndex *int, problemID *uint, index int) (*entity.Competition, error) {
	result := updateCurrentProblem(r.db.WithContext(ctx), id, expectedIndex, problemID, index)
	if err := r.checkConditional(ctx, id, result); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// UpdateTimer записывает поля таймера
func (r *CompetitionRepo) UpdateTimer(ctx context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error) {
	result := r.db.WithContext(ctx).Model(&entity.Competition{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"timer_started_at": startedAt,
			"timer_duration":   duration,
			"timer_end_at":     endAt,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("update timer for competition #%d failed: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.ErrCompetitionNotFound
	}
	return r.GetByID(ctx, id)
}

// Finish условно переводит соревнование в DONE и очищает таймер
func (r *CompetitionRepo) Finish(ctx context.Context, id uint, expectedIndex *int, finalIndex int) (*entity.Competition, error) {
	result := finish(r.db.WithContext(ctx), id, expectedIndex, finalIndex)
	if err := r.checkConditional(ctx, id, result); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// PauseTimer ставит паузу и сохраняет оставшееся время
func (r *CompetitionRepo) PauseTimer(ctx context.Context, id uint, timeRemaining *int) (*entity.Competition, error) {
	result := r.db.WithContext(ctx).Model(&entity.Competition{}).
		Where("id = ? AND status = ? AND gameplay_indicator = ?", id, entity.CompetitionStatusOngoing, entity.GameplayPlay).
		Updates(map[string]interface{}{
			"gameplay_indicator": entity.GameplayPause,
			"time_remaining":     timeRemaining,
		})
	if err := r.checkConditional(ctx, id, result); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// ResumeTimer перезапускает таймер на оставшееся время
func (r *CompetitionRepo) ResumeTimer(ctx context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error) {
	result := r.db.WithContext(ctx).Model(&entity.Competition{}).
		Where("id = ? AND status = ? AND gameplay_indicator = ?", id, entity.CompetitionStatusOngoing, entity.GameplayPause).
		Updates(map[string]interface{}{
			"gameplay_indicator": entity.GameplayPlay,
			"timer_started_at":   startedAt,
			"timer_duration":     duration,
			"timer_end_at":       endAt,
			"time_remaining":     nil,
		})
	if err := r.checkConditional(ctx, id, result); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// ListExpired возвращает соревнования ONGOING+PLAY с истекшим таймером
func (r *CompetitionRepo) ListExpired(ctx context.Context, now time.Time) ([]entity.Competition, error) {
	var competitions []entity.Competition
	err := r.db.WithContext(ctx).
		Where("status = ? AND gameplay_indicator = ?", entity.CompetitionStatusOngoing, entity.GameplayPlay).
		Where("timer_end_at IS NOT NULL AND timer_end_at <= ?", now).
		Order("timer_end_at").
		Find(&competitions).Error
	return competitions, err
}

// checkConditional разбирает результат условного UPDATE:
// - ошибка БД возвращается обернутой
// - RowsAffected == 0 и записи нет → ErrCompetitionNotFound
// - RowsAffected == 0 и запись есть → ErrConflict
func (r *CompetitionRepo) checkConditional(ctx context.Context, id uint, result *gorm.DB) error {
	if result.Error != nil {
		return fmt.Errorf("update competition #%d failed: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.Competition{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperrors.ErrCompetitionNotFound
	}
	return fmt.Errorf("%w: competition #%d changed concurrently", apperrors.ErrConflict, id)
}

// updateCurrentProblem - условный UPDATE продвижения.
// Поля таймера обнуляются в той же записи: если следующая запись таймера упадет,
// соревнование останется без таймера, а не с истекшим таймером прошлой задачи.
func updateCurrentProblem(db *gorm.DB, id uint, expectedIndex *int, problemID *uint, index int) *gorm.DB {
	return db.Model(&entity.Competition{}).
		Where("id = ? AND status <> ?", id, entity.CompetitionStatusDone).
		Where("current_problem_index IS NOT DISTINCT FROM ?", expectedIndex).
		Updates(map[string]interface{}{
			"current_problem_id":    problemID,
			"current_problem_index": index,
			"status":                entity.CompetitionStatusOngoing,
			"gameplay_indicator":    entity.GameplayPlay,
			"timer_started_at":      nil,
			"timer_duration":        nil,
			"timer_end_at":          nil,
			"time_remaining":        nil,
		})
}

// finish - условный UPDATE завершения
func finish(db *gorm.DB, id uint, expectedIndex *int, finalIndex int) *gorm.DB {
	return db.Model(&entity.Competition{}).
		Where("id = ? AND status = ?", id, entity.CompetitionStatusOngoing).
		Where("current_problem_index IS NOT DISTINCT FROM ?", expectedIndex).
		Updates(map[string]interface{}{
			"status":                entity.CompetitionStatusDone,
			"gameplay_indicator":    entity.GameplayFinished,
			"current_problem_index": finalIndex,
			"timer_started_at":      nil,
			"timer_duration":        nil,
			"timer_end_at":          nil,
			"time_remaining":        nil,
		})
}
