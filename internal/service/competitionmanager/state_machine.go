package competitionmanager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	"github.com/yourusername/polegion-api/internal/domain/repository"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

// StateMachine управляет жизненным циклом соревнования:
// NEW → ONGOING{PLAY|PAUSE} → DONE.
//
// Все продвигающие записи условны по current_problem_index, поэтому из двух
// конкурирующих продвижений состояние меняет только первое.
type StateMachine struct {
	competitions repository.CompetitionRepository
	sequencer    *Sequencer
	broadcaster  Broadcaster
	now          func() time.Time
}

// NewStateMachine создает новую state machine
func NewStateMachine(deps Dependencies) *StateMachine {
	if deps.Config == nil {
		deps.Config = DefaultConfig()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &StateMachine{
		competitions: deps.CompetitionRepo,
		sequencer:    NewSequencer(deps.ProblemRepo, deps.Config.DefaultTimerSec),
		broadcaster:  deps.Broadcaster,
		now:          deps.Now,
	}
}

// Start запускает соревнование с первой задачи.
// Повторный вызов допустим только для незавершенного старта (индекс 0 без таймера).
func (sm *StateMachine) Start(ctx context.Context, competitionID uint, problems []entity.Problem) (*entity.CompetitionState, error) {
	if len(problems) == 0 {
		return nil, apperrors.ErrEmptyProblemSet
	}

	current, err := sm.load(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if !canStart(current) {
		return nil, fmt.Errorf("%w: competition #%d cannot be started from status %s",
			apperrors.ErrConflict, competitionID, current.Status)
	}

	state, err := sm.moveTo(ctx, competitionID, current.CurrentProblemIndex, problems, 0)
	if err != nil {
		return nil, err
	}

	log.Printf("[StateMachine] Competition #%d started, problem index 0, timer %ds",
		competitionID, derefInt(state.TimerDuration))
	sm.broadcast(ctx, state)
	return state, nil
}

// Next переводит соревнование к следующей задаче или завершает его.
// currentIndex сверяется с сохраненным индексом, устаревший клиент получает ErrConflict.
func (sm *StateMachine) Next(ctx context.Context, competitionID uint, problems []entity.Problem, currentIndex int) (*entity.CompetitionState, error) {
	current, err := sm.load(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if current.IsDone() {
		return nil, fmt.Errorf("%w: competition #%d is already finished", apperrors.ErrConflict, competitionID)
	}
	if !current.IsOngoing() {
		return nil, fmt.Errorf("%w: competition #%d has not started", apperrors.ErrConflict, competitionID)
	}
	if current.ProblemIndex() != currentIndex {
		return nil, fmt.Errorf("%w: competition #%d is at index %d, not %d",
			apperrors.ErrConflict, competitionID, current.ProblemIndex(), currentIndex)
	}

	return sm.advance(ctx, current, problems)
}

// Pause замораживает таймер, превращая прошедшее время в time_remaining.
// Повторная пауза возвращает текущий снимок без записи.
func (sm *StateMachine) Pause(ctx context.Context, competitionID uint) (*entity.CompetitionState, error) {
	current, err := sm.load(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if !current.IsOngoing() {
		return nil, fmt.Errorf("%w: competition #%d is not ongoing", apperrors.ErrConflict, competitionID)
	}
	if current.IsPaused() {
		return current.Snapshot(), nil
	}

	remaining := remainingSeconds(current, sm.now())
	updated, err := sm.competitions.PauseTimer(ctx, competitionID, remaining)
	if err != nil {
		return nil, err
	}

	state := updated.Snapshot()
	log.Printf("[StateMachine] Competition #%d paused, %ds remaining", competitionID, derefInt(remaining))
	sm.broadcast(ctx, state)
	return state, nil
}

// Resume перезапускает таймер: стартует сейчас и длится time_remaining секунд
func (sm *StateMachine) Resume(ctx context.Context, competitionID uint) (*entity.CompetitionState, error) {
	current, err := sm.load(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if !current.IsOngoing() {
		return nil, fmt.Errorf("%w: competition #%d is not ongoing", apperrors.ErrConflict, competitionID)
	}
	if !current.IsPaused() {
		return current.Snapshot(), nil
	}

	remaining := derefInt(current.TimeRemaining)
	now := sm.now()
	updated, err := sm.competitions.ResumeTimer(ctx, competitionID, now, remaining, timerEnd(now, remaining))
	if err != nil {
		return nil, err
	}

	state := updated.Snapshot()
	log.Printf("[StateMachine] Competition #%d resumed with %ds", competitionID, remaining)
	sm.broadcast(ctx, state)
	return state, nil
}

// AutoAdvance продвигает соревнование по сохраненному индексу.
// Возвращает (nil, nil), если соревнование не идет, стоит на паузе или
// его уже продвинул конкурирующий вызов.
func (sm *StateMachine) AutoAdvance(ctx context.Context, competitionID uint) (*entity.CompetitionState, error) {
	current, err := sm.load(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if !current.IsOngoing() || current.IsPaused() {
		return nil, nil
	}
	return sm.autoAdvance(ctx, current)
}

// AutoAdvanceFrom продвигает соревнование, только если оно все еще на expectedIndex
// и таймер текущей задачи истек. Используется поллером и клиентами, сообщающими об истечении.
func (sm *StateMachine) AutoAdvanceFrom(ctx context.Context, competitionID uint, expectedIndex int) (*entity.CompetitionState, error) {
	current, err := sm.load(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if !current.IsOngoing() || current.IsPaused() {
		return nil, nil
	}
	if current.ProblemIndex() != expectedIndex || !timerExpired(current, sm.now()) {
		return nil, nil
	}
	return sm.autoAdvance(ctx, current)
}

func (sm *StateMachine) autoAdvance(ctx context.Context, current *entity.Competition) (*entity.CompetitionState, error) {
	list, err := sm.sequencer.FetchCompetitionProblems(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	state, err := sm.advance(ctx, current, OrderedProblems(list))
	if errors.Is(err, apperrors.ErrConflict) {
		log.Printf("[StateMachine] Competition #%d already advanced past index %d, skipping",
			current.ID, current.ProblemIndex())
		return nil, nil
	}
	return state, err
}

// advance - общий путь Next и AutoAdvance
func (sm *StateMachine) advance(ctx context.Context, current *entity.Competition, problems []entity.Problem) (*entity.CompetitionState, error) {
	nextIndex := current.ProblemIndex() + 1

	if nextIndex >= len(problems) {
		finished, err := sm.competitions.Finish(ctx, current.ID, current.CurrentProblemIndex, len(problems))
		if err != nil {
			return nil, err
		}
		state := finished.Snapshot()
		state.CompetitionFinished = true
		log.Printf("[StateMachine] Competition #%d finished after %d problems", current.ID, len(problems))
		sm.broadcast(ctx, state)
		return state, nil
	}

	state, err := sm.moveTo(ctx, current.ID, current.CurrentProblemIndex, problems, nextIndex)
	if err != nil {
		return nil, err
	}
	log.Printf("[StateMachine] Competition #%d advanced to index %d", current.ID, nextIndex)
	sm.broadcast(ctx, state)
	return state, nil
}

// moveTo делает две записи: текущая задача (условно по expectedIndex), затем таймер.
// Если вторая запись упала, соревнование остается с задачей, но без таймера.
func (sm *StateMachine) moveTo(ctx context.Context, competitionID uint, expectedIndex *int, problems []entity.Problem, index int) (*entity.CompetitionState, error) {
	list, err := sm.sequencer.FetchCompetitionProblems(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	// без совпадения переход все равно выполняется: current_problem_id = NULL, таймер по умолчанию
	cp := FindCompetitionProblem(list, problems[index].ID)
	duration := sm.sequencer.TimerFor(cp)
	var cpID *uint
	if cp != nil {
		cpID = &cp.ID
	}

	now := sm.now()
	if _, err := sm.competitions.UpdateCurrentProblem(ctx, competitionID, expectedIndex, cpID, index); err != nil {
		return nil, err
	}
	updated, err := sm.competitions.UpdateTimer(ctx, competitionID, now, duration, timerEnd(now, duration))
	if err != nil {
		return nil, err
	}
	return updated.Snapshot(), nil
}

// load читает снимок и проверяет закрытые перечисления
func (sm *StateMachine) load(ctx context.Context, competitionID uint) (*entity.Competition, error) {
	c, err := sm.competitions.GetByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if _, err := entity.ParseCompetitionStatus(c.Status); err != nil {
		return nil, fmt.Errorf("competition #%d: %w", competitionID, err)
	}
	if c.GameplayIndicator != nil {
		if _, err := entity.ParseGameplayIndicator(*c.GameplayIndicator); err != nil {
			return nil, fmt.Errorf("competition #%d: %w", competitionID, err)
		}
	}
	return c, nil
}

// broadcast никогда не возвращает ошибку: сбой транспорта не должен ломать игру
func (sm *StateMachine) broadcast(ctx context.Context, state *entity.CompetitionState) {
	if sm.broadcaster == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[StateMachine] PANIC while broadcasting competition #%d: %v", state.ID, r)
		}
	}()

	if err := sm.broadcaster.Broadcast(ctx, state.Topic(), EventCompetitionUpdate, state); err != nil {
		log.Printf("[StateMachine] Failed to broadcast competition #%d: %v", state.ID, err)
	}
}

func canStart(c *entity.Competition) bool {
	if c.IsNew() {
		return true
	}
	// незавершенный старт: первая запись прошла, таймер не записан
	return c.IsOngoing() && c.CurrentProblemIndex != nil && *c.CurrentProblemIndex == 0 && !c.HasRunningTimer()
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
