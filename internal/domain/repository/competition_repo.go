package repository

import (
	"context"
	"time"

	"github.com/yourusername/polegion-api/internal/domain/entity"
)

// CompetitionRepository определяет методы для работы с соревнованиями.
// Все продвигающие записи условные: expectedIndex сравнивается с
// current_problem_index через IS NOT DISTINCT FROM, при несовпадении
// возвращается apperrors.ErrConflict.
type CompetitionRepository interface {
	Create(ctx context.Context, competition *entity.Competition) error
	GetByID(ctx context.Context, id uint) (*entity.Competition, error)
	GetByIDInRoom(ctx context.Context, id, roomID uint) (*entity.Competition, error)
	ListByRoom(ctx context.Context, roomID uint) ([]entity.Competition, error)

	// UpdateCurrentProblem ставит текущую задачу, status=ONGOING, gameplay_indicator=PLAY и обнуляет таймер
	UpdateCurrentProblem(ctx context.Context, id uint, expectedIndex *int, problemID *uint, index int) (*entity.Competition, error)
	// UpdateTimer записывает поля таймера отдельной записью
	UpdateTimer(ctx context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error)
	// Finish переводит соревнование в DONE/FINISHED и очищает таймер
	Finish(ctx context.Context, id uint, expectedIndex *int, finalIndex int) (*entity.Competition, error)
	// PauseTimer срабатывает только при gameplay_indicator=PLAY
	PauseTimer(ctx context.Context, id uint, timeRemaining *int) (*entity.Competition, error)
	// ResumeTimer срабатывает только при gameplay_indicator=PAUSE и очищает time_remaining
	ResumeTimer(ctx context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error)

	// ListExpired возвращает идущие соревнования, у которых таймер истек к моменту now
	ListExpired(ctx context.Context, now time.Time) ([]entity.Competition, error)
}

// CompetitionProblemRepository определяет методы для задач соревнования
type CompetitionProblemRepository interface {
	// FetchByCompetition возвращает задачи по order, затем по id, с вложенной Problem
	FetchByCompetition(ctx context.Context, competitionID uint) ([]entity.CompetitionProblem, error)
	Attach(ctx context.Context, cp *entity.CompetitionProblem) error
	GetProblem(ctx context.Context, problemID uint) (*entity.Problem, error)
}
