package competitionmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

type smFixture struct {
	sm          *StateMachine
	repo        *fakeCompetitionRepo
	problems    *staticProblemRepo
	broadcaster *recordingBroadcaster
	clock       *fakeClock
}

func newFixture(list []entity.CompetitionProblem, competitions ...entity.Competition) *smFixture {
	if len(competitions) == 0 {
		competitions = []entity.Competition{{ID: 1, RoomID: 7, Title: "Polygons", Status: entity.CompetitionStatusNew}}
	}
	f := &smFixture{
		repo:        newFakeCompetitionRepo(competitions...),
		problems:    &staticProblemRepo{list: list},
		broadcaster: &recordingBroadcaster{},
		clock:       newFakeClock(),
	}
	f.sm = NewStateMachine(Dependencies{
		CompetitionRepo: f.repo,
		ProblemRepo:     f.problems,
		Broadcaster:     f.broadcaster,
		Config:          DefaultConfig(),
		Now:             f.clock.Now,
	})
	return f
}

func (f *smFixture) ordered() []entity.Problem {
	return OrderedProblems(f.problems.list)
}

// ============================================================================
// AutoAdvance на неактивных соревнованиях
// ============================================================================

func TestAutoAdvance_NoOpUnlessOngoing(t *testing.T) {
	for _, status := range []string{entity.CompetitionStatusNew, entity.CompetitionStatusDone} {
		t.Run(status, func(t *testing.T) {
			// Arrange
			repo := new(MockCompetitionRepo)
			broadcaster := new(MockBroadcaster)
			repo.On("GetByID", mock.Anything, uint(1)).
				Return(&entity.Competition{ID: 1, Status: status}, nil)

			sm := NewStateMachine(Dependencies{
				CompetitionRepo: repo,
				ProblemRepo:     new(MockProblemRepo),
				Broadcaster:     broadcaster,
			})

			// Act
			state, err := sm.AutoAdvance(context.Background(), 1)

			// Assert
			require.NoError(t, err)
			assert.Nil(t, state)
			repo.AssertNotCalled(t, "UpdateCurrentProblem", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "UpdateTimer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "Finish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAutoAdvance_NoOpWhilePaused(t *testing.T) {
	f := newFixture(attached(intPtr(60), intPtr(60)))
	_, err := f.sm.Start(context.Background(), 1, f.ordered())
	require.NoError(t, err)
	_, err = f.sm.Pause(context.Background(), 1)
	require.NoError(t, err)
	writes := f.repo.writeCount()

	state, err := f.sm.AutoAdvance(context.Background(), 1)

	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Equal(t, writes, f.repo.writeCount())
}

func TestAutoAdvance_ConflictIsNoOp(t *testing.T) {
	// Arrange: кто-то другой уже сдвинул индекс между чтением и записью
	repo := new(MockCompetitionRepo)
	problems := new(MockProblemRepo)
	broadcaster := new(MockBroadcaster)

	repo.On("GetByID", mock.Anything, uint(1)).Return(&entity.Competition{
		ID: 1, Status: entity.CompetitionStatusOngoing,
		GameplayIndicator: strPtr(entity.GameplayPlay), CurrentProblemIndex: intPtr(0),
	}, nil)
	problems.On("FetchByCompetition", mock.Anything, uint(1)).Return(attached(nil, nil), nil)
	repo.On("UpdateCurrentProblem", mock.Anything, uint(1), intPtr(0), mock.Anything, 1).
		Return(nil, apperrors.ErrConflict)

	sm := NewStateMachine(Dependencies{CompetitionRepo: repo, ProblemRepo: problems, Broadcaster: broadcaster})

	// Act
	state, err := sm.AutoAdvance(context.Background(), 1)

	// Assert
	require.NoError(t, err)
	assert.Nil(t, state)
	repo.AssertNotCalled(t, "UpdateTimer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAutoAdvanceFrom_OnlyFirstOfRacingCallsAdvances(t *testing.T) {
	// Arrange
	f := newFixture(attached(intPtr(30), intPtr(30), intPtr(30)))
	_, err := f.sm.Start(context.Background(), 1, f.ordered())
	require.NoError(t, err)
	f.clock.Advance(31 * time.Second)

	// Act: два триггера истечения таймера одновременно
	var wg sync.WaitGroup
	results := make([]*entity.CompetitionState, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.sm.AutoAdvanceFrom(context.Background(), 1, 0)
		}(i)
	}
	wg.Wait()

	// Assert
	advanced := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i] != nil {
			advanced++
		}
	}
	assert.Equal(t, 1, advanced, "продвинуть должен только один вызов")
	c := f.repo.get(1)
	assert.Equal(t, 1, c.ProblemIndex())
}

func TestAutoAdvanceFrom_WaitsForTimerExpiry(t *testing.T) {
	f := newFixture(attached(intPtr(30), intPtr(30)))
	_, err := f.sm.Start(context.Background(), 1, f.ordered())
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)

	state, err := f.sm.AutoAdvanceFrom(context.Background(), 1, 0)

	require.NoError(t, err)
	assert.Nil(t, state, "таймер еще идет")
	{
		got := f.repo.get(1)
		assert.Equal(t, 0, got.ProblemIndex())
	}
}

// ============================================================================
// Start
// ============================================================================

func TestStart_TimerFallsBackToDefault(t *testing.T) {
	// Arrange: задача не привязана к соревнованию, таймер не найден
	f := newFixture(nil)
	problems := []entity.Problem{{ID: 555, Title: "Orphan"}}

	// Act
	state, err := f.sm.Start(context.Background(), 1, problems)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, state.TimerDuration)
	assert.Equal(t, 30, *state.TimerDuration)
	assert.Nil(t, state.CurrentProblemID)
	assert.Equal(t, f.clock.Now().Add(30*time.Second), *state.TimerEndAt)
}

func TestStart_UsesConfiguredTimer(t *testing.T) {
	f := newFixture(attached(intPtr(90), nil))

	state, err := f.sm.Start(context.Background(), 1, f.ordered())

	require.NoError(t, err)
	assert.Equal(t, entity.CompetitionStatusOngoing, state.Status)
	assert.Equal(t, entity.GameplayPlay, *state.GameplayIndicator)
	assert.Equal(t, 0, *state.CurrentProblemIndex)
	assert.Equal(t, uint(10), *state.CurrentProblemID, "current_problem_id ссылается на CompetitionProblem")
	assert.Equal(t, 90, *state.TimerDuration)
	assert.Equal(t, f.clock.Now(), *state.TimerStartedAt)
	assert.Equal(t, f.clock.Now().Add(90*time.Second), *state.TimerEndAt)

	require.Equal(t, 1, f.broadcaster.count())
	assert.Equal(t, state, f.broadcaster.last())
}

func TestStart_EmptyProblemSet(t *testing.T) {
	f := newFixture(nil)

	_, err := f.sm.Start(context.Background(), 1, nil)

	assert.ErrorIs(t, err, apperrors.ErrEmptyProblemSet)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, f.repo.writeCount())
}

func TestStart_NotFound(t *testing.T) {
	f := newFixture(attached(nil))

	_, err := f.sm.Start(context.Background(), 42, f.ordered())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStart_RejectsAlreadyRunning(t *testing.T) {
	f := newFixture(attached(nil, nil))
	_, err := f.sm.Start(context.Background(), 1, f.ordered())
	require.NoError(t, err)

	_, err = f.sm.Start(context.Background(), 1, f.ordered())

	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestStart_RetriesHalfFinishedStart(t *testing.T) {
	// Arrange: первая запись прошла, запись таймера упала
	f := newFixture(attached(intPtr(45)), entity.Competition{
		ID: 1, Status: entity.CompetitionStatusOngoing,
		GameplayIndicator: strPtr(entity.GameplayPlay), CurrentProblemIndex: intPtr(0),
	})

	// Act
	state, err := f.sm.Start(context.Background(), 1, f.ordered())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 45, *state.TimerDuration)
}

func TestStart_TimerWriteFailurePropagates(t *testing.T) {
	repo := new(MockCompetitionRepo)
	broadcaster := new(MockBroadcaster)
	dbErr := errors.New("connection reset")

	repo.On("GetByID", mock.Anything, uint(1)).Return(&entity.Competition{ID: 1, Status: entity.CompetitionStatusNew}, nil)
	repo.On("UpdateCurrentProblem", mock.Anything, uint(1), (*int)(nil), mock.Anything, 0).
		Return(&entity.Competition{ID: 1, Status: entity.CompetitionStatusOngoing}, nil)
	repo.On("UpdateTimer", mock.Anything, uint(1), mock.Anything, 30, mock.Anything).Return(nil, dbErr)

	sm := NewStateMachine(Dependencies{
		CompetitionRepo: repo,
		ProblemRepo:     &staticProblemRepo{},
		Broadcaster:     broadcaster,
	})

	_, err := sm.Start(context.Background(), 1, []entity.Problem{{ID: 1}})

	assert.ErrorIs(t, err, dbErr)
	broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

// ============================================================================
// Next
// ============================================================================

func TestNext_TerminalTransition(t *testing.T) {
	// Arrange
	f := newFixture(attached(intPtr(20), intPtr(25)))
	problems := f.ordered()
	_, err := f.sm.Start(context.Background(), 1, problems)
	require.NoError(t, err)

	state, err := f.sm.Next(context.Background(), 1, problems, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, *state.CurrentProblemIndex)
	assert.Equal(t, 25, *state.TimerDuration)
	assert.False(t, state.CompetitionFinished)

	// Act: последняя задача
	state, err = f.sm.Next(context.Background(), 1, problems, len(problems)-1)

	// Assert
	require.NoError(t, err)
	assert.True(t, state.CompetitionFinished)
	assert.Equal(t, entity.CompetitionStatusDone, state.Status)
	assert.Equal(t, entity.GameplayFinished, *state.GameplayIndicator)
	assert.Nil(t, state.TimerStartedAt)
	assert.Nil(t, state.TimerEndAt)
	assert.True(t, f.broadcaster.last().CompetitionFinished)

	// Повторный Next на DONE не пишет и не двигает индекс
	writes := f.repo.writeCount()
	_, err = f.sm.Next(context.Background(), 1, problems, len(problems))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, writes, f.repo.writeCount())
	c := f.repo.get(1)
	assert.LessOrEqual(t, c.ProblemIndex(), len(problems))
	assert.Equal(t, len(problems), c.ProblemIndex())
}

func TestNext_RejectsStaleIndex(t *testing.T) {
	f := newFixture(attached(nil, nil, nil))
	problems := f.ordered()
	_, err := f.sm.Start(context.Background(), 1, problems)
	require.NoError(t, err)
	_, err = f.sm.Next(context.Background(), 1, problems, 0)
	require.NoError(t, err)

	// клиент с устаревшим индексом
	_, err = f.sm.Next(context.Background(), 1, problems, 0)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	{
		got := f.repo.get(1)
		assert.Equal(t, 1, got.ProblemIndex(), "задача не должна пропускаться")
	}
}

func TestNext_RejectsNotStarted(t *testing.T) {
	f := newFixture(attached(nil))

	_, err := f.sm.Next(context.Background(), 1, f.ordered(), 0)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 0, f.repo.writeCount())
}

func TestNextAndAutoAdvance_ShareOnePath(t *testing.T) {
	f := newFixture(attached(intPtr(10), intPtr(10), intPtr(10)))
	problems := f.ordered()
	_, err := f.sm.Start(context.Background(), 1, problems)
	require.NoError(t, err)

	_, err = f.sm.AutoAdvance(context.Background(), 1)
	require.NoError(t, err)
	state, err := f.sm.Next(context.Background(), 1, problems, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, *state.CurrentProblemIndex)
}

// ============================================================================
// Pause / Resume
// ============================================================================

func TestPauseResume_ConservesRemainingTime(t *testing.T) {
	// Arrange
	f := newFixture(attached(intPtr(100)))
	_, err := f.sm.Start(context.Background(), 1, f.ordered())
	require.NoError(t, err)

	// Act: пауза через 40 секунд
	f.clock.Advance(40 * time.Second)
	paused, err := f.sm.Pause(context.Background(), 1)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, entity.GameplayPause, *paused.GameplayIndicator)
	require.NotNil(t, paused.TimeRemaining)
	assert.InDelta(t, 60, *paused.TimeRemaining, 1)

	// Act: сразу продолжаем
	resumed, err := f.sm.Resume(context.Background(), 1)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, entity.GameplayPlay, *resumed.GameplayIndicator)
	assert.Nil(t, resumed.TimeRemaining)
	assert.Equal(t, 60, *resumed.TimerDuration)
	assert.Equal(t, f.clock.Now(), *resumed.TimerStartedAt)
	assert.WithinDuration(t, f.clock.Now().Add(60*time.Second), *resumed.TimerEndAt, time.Second)
	assert.Equal(t, 3, f.broadcaster.count())
}

func TestPause_WithoutTimerStoresNullRemaining(t *testing.T) {
	f := newFixture(nil, entity.Competition{
		ID: 1, Status: entity.CompetitionStatusOngoing,
		GameplayIndicator: strPtr(entity.GameplayPlay), CurrentProblemIndex: intPtr(0),
	})

	paused, err := f.sm.Pause(context.Background(), 1)

	require.NoError(t, err)
	assert.Nil(t, paused.TimeRemaining)

	resumed, err := f.sm.Resume(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, *resumed.TimerDuration, "отсутствующий time_remaining считается нулем")
}

func TestPause_IsIdempotent(t *testing.T) {
	f := newFixture(attached(intPtr(100)))
	_, err := f.sm.Start(context.Background(), 1, f.ordered())
	require.NoError(t, err)
	_, err = f.sm.Pause(context.Background(), 1)
	require.NoError(t, err)
	writes, broadcasts := f.repo.writeCount(), f.broadcaster.count()

	state, err := f.sm.Pause(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, state.IsPaused())
	assert.Equal(t, writes, f.repo.writeCount())
	assert.Equal(t, broadcasts, f.broadcaster.count())
}

func TestResume_WhilePlayingIsNoOp(t *testing.T) {
	f := newFixture(attached(intPtr(100)))
	_, err := f.sm.Start(context.Background(), 1, f.ordered())
	require.NoError(t, err)
	writes := f.repo.writeCount()

	state, err := f.sm.Resume(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, entity.GameplayPlay, *state.GameplayIndicator)
	assert.Equal(t, writes, f.repo.writeCount())
}

func TestPauseResume_RequireOngoing(t *testing.T) {
	f := newFixture(nil)

	_, err := f.sm.Pause(context.Background(), 1)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = f.sm.Resume(context.Background(), 1)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestPause_NotFound(t *testing.T) {
	f := newFixture(nil)

	_, err := f.sm.Pause(context.Background(), 99)

	assert.ErrorIs(t, err, apperrors.ErrCompetitionNotFound)
}

// ============================================================================
// Broadcast и валидация
// ============================================================================

func TestBroadcastFailureIsSwallowed(t *testing.T) {
	f := newFixture(attached(nil, nil))
	f.broadcaster.err = errors.New("channel closed")

	state, err := f.sm.Start(context.Background(), 1, f.ordered())

	require.NoError(t, err)
	assert.NotNil(t, state)
}

func TestBroadcastPanicIsSwallowed(t *testing.T) {
	f := newFixture(attached(nil, nil))
	f.broadcaster.panics = true

	assert.NotPanics(t, func() {
		state, err := f.sm.Start(context.Background(), 1, f.ordered())
		require.NoError(t, err)
		assert.NotNil(t, state)
	})
}

func TestBroadcastUsesCompetitionTopic(t *testing.T) {
	repo := newFakeCompetitionRepo(entity.Competition{ID: 9, Status: entity.CompetitionStatusNew})
	broadcaster := new(MockBroadcaster)
	broadcaster.On("Broadcast", mock.Anything, "competition-9", EventCompetitionUpdate, mock.Anything).Return(nil).Once()

	sm := NewStateMachine(Dependencies{CompetitionRepo: repo, ProblemRepo: &staticProblemRepo{}, Broadcaster: broadcaster})
	_, err := sm.Start(context.Background(), 9, []entity.Problem{{ID: 1}})

	require.NoError(t, err)
	broadcaster.AssertExpectations(t)
}

func TestLoadRejectsUnknownGameplayIndicator(t *testing.T) {
	f := newFixture(nil, entity.Competition{
		ID: 1, Status: entity.CompetitionStatusOngoing,
		GameplayIndicator: strPtr("paused"), CurrentProblemIndex: intPtr(0),
	})

	_, err := f.sm.Pause(context.Background(), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown gameplay indicator")
	assert.Equal(t, 0, f.repo.writeCount())
}
