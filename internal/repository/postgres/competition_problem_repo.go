package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

// CompetitionProblemRepo реализует repository.CompetitionProblemRepository
type CompetitionProblemRepo struct {
	db *gorm.DB
}

// NewCompetitionProblemRepo создает новый репозиторий задач соревнования
func NewCompetitionProblemRepo(db *gorm.DB) *CompetitionProblemRepo {
	return &CompetitionProblemRepo{db: db}
}

// FetchByCompetition возвращает упорядоченные задачи соревнования вместе с Problem
func (r *CompetitionProblemRepo) FetchByCompetition(ctx context.Context, competitionID uint) ([]entity.CompetitionProblem, error) {
	var problems []entity.CompetitionProblem
	err := r.db.WithContext(ctx).
		Preload("Problem").
		Where("competition_id = ?", competitionID).
		Order("sort_order ASC, id ASC").
		Find(&problems).Error
	if err != nil {
		return nil, err
	}
	return problems, nil
}

// Attach привязывает задачу к соревнованию.
// Повторная привязка той же задачи отклоняется уникальным индексом (competition_id, problem_id).
func (r *CompetitionProblemRepo) Attach(ctx context.Context, cp *entity.CompetitionProblem) error {
	err := r.db.WithContext(ctx).Omit("Problem").Create(cp).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: problem #%d already attached to competition #%d",
				apperrors.ErrConflict, cp.ProblemID, cp.CompetitionID)
		}
		return err
	}
	return nil
}

// GetProblem возвращает задачу по ID
func (r *CompetitionProblemRepo) GetProblem(ctx context.Context, problemID uint) (*entity.Problem, error) {
	var problem entity.Problem
	err := r.db.WithContext(ctx).First(&problem, problemID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &problem, nil
}
