package competitionmanager

import (
	"context"
	"fmt"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	"github.com/yourusername/polegion-api/internal/domain/repository"
)

// Sequencer разрешает упорядоченный список задач соревнования и их таймеры
type Sequencer struct {
	repo         repository.CompetitionProblemRepository
	defaultTimer int
}

// NewSequencer создает новый Sequencer
func NewSequencer(repo repository.CompetitionProblemRepository, defaultTimerSec int) *Sequencer {
	if defaultTimerSec <= 0 {
		defaultTimerSec = DefaultTimerSec
	}
	return &Sequencer{repo: repo, defaultTimer: defaultTimerSec}
}

// FetchCompetitionProblems читает задачи соревнования заново при каждом переходе,
// чтобы всегда использовался последний настроенный таймер.
func (s *Sequencer) FetchCompetitionProblems(ctx context.Context, competitionID uint) ([]entity.CompetitionProblem, error) {
	list, err := s.repo.FetchByCompetition(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("fetch problems for competition #%d: %w", competitionID, err)
	}
	return list, nil
}

// TimerFor возвращает таймер записи в секундах или таймер по умолчанию
func (s *Sequencer) TimerFor(cp *entity.CompetitionProblem) int {
	if cp == nil || cp.Timer == nil || *cp.Timer <= 0 {
		return s.defaultTimer
	}
	return *cp.Timer
}

// FindCompetitionProblem возвращает первую запись, чья задача совпадает с problemID, или nil
func FindCompetitionProblem(list []entity.CompetitionProblem, problemID uint) *entity.CompetitionProblem {
	for i := range list {
		if list[i].Problem.ID == problemID || (list[i].Problem.ID == 0 && list[i].ProblemID == problemID) {
			return &list[i]
		}
	}
	return nil
}

// OrderedProblems разворачивает записи в упорядоченный список задач для Start/Next
func OrderedProblems(list []entity.CompetitionProblem) []entity.Problem {
	problems := make([]entity.Problem, 0, len(list))
	for _, cp := range list {
		p := cp.Problem
		if p.ID == 0 {
			p.ID = cp.ProblemID
		}
		problems = append(problems, p)
	}
	return problems
}
