package competitionmanager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

// ============================================================================
// Моки
// ============================================================================

// MockCompetitionRepo реализует repository.CompetitionRepository
type MockCompetitionRepo struct {
	mock.Mock
}

func (m *MockCompetitionRepo) Create(ctx context.Context, c *entity.Competition) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCompetitionRepo) GetByID(ctx context.Context, id uint) (*entity.Competition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Competition), args.Error(1)
}

func (m *MockCompetitionRepo) GetByIDInRoom(ctx context.Context, id, roomID uint) (*entity.Competition, error) {
	args := m.Called(ctx, id, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Competition), args.Error(1)
}

func (m *MockCompetitionRepo) ListByRoom(ctx context.Context, roomID uint) ([]entity.Competition, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Competition), args.Error(1)
}

func (m *MockCompetitionRepo) UpdateCurrentProblem(ctx context.Context, id uint, expectedIndex *int, problemID *uint, index int) (*entity.Competition, error) {
	args := m.Called(ctx, id, expectedIndex, problemID, index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Competition), args.Error(1)
}

func (m *MockCompetitionRepo) UpdateTimer(ctx context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error) {
	args := m.Called(ctx, id, startedAt, duration, endAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Competition), args.Error(1)
}

func (m *MockCompetitionRepo) Finish(ctx context.Context, id uint, expectedIndex *int, finalIndex int) (*entity.Competition, error) {
	args := m.Called(ctx, id, expectedIndex, finalIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Competition), args.Error(1)
}

func (m *MockCompetitionRepo) PauseTimer(ctx context.Context, id uint, timeRemaining *int) (*entity.Competition, error) {
	args := m.Called(ctx, id, timeRemaining)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Competition), args.Error(1)
}

func (m *MockCompetitionRepo) ResumeTimer(ctx context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error) {
	args := m.Called(ctx, id, startedAt, duration, endAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Competition), args.Error(1)
}

func (m *MockCompetitionRepo) ListExpired(ctx context.Context, now time.Time) ([]entity.Competition, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Competition), args.Error(1)
}

// MockProblemRepo реализует repository.CompetitionProblemRepository
type MockProblemRepo struct {
	mock.Mock
}

func (m *MockProblemRepo) FetchByCompetition(ctx context.Context, competitionID uint) ([]entity.CompetitionProblem, error) {
	args := m.Called(ctx, competitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.CompetitionProblem), args.Error(1)
}

func (m *MockProblemRepo) Attach(ctx context.Context, cp *entity.CompetitionProblem) error {
	args := m.Called(ctx, cp)
	return args.Error(0)
}

func (m *MockProblemRepo) GetProblem(ctx context.Context, problemID uint) (*entity.Problem, error) {
	args := m.Called(ctx, problemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Problem), args.Error(1)
}

// MockBroadcaster реализует Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(ctx context.Context, topic, event string, payload interface{}) error {
	args := m.Called(ctx, topic, event, payload)
	return args.Error(0)
}

// ============================================================================
// Фейки
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingBroadcaster запоминает все разосланные снимки
type recordingBroadcaster struct {
	mu     sync.Mutex
	states []*entity.CompetitionState
	err    error
	panics bool
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, _, _ string, payload interface{}) error {
	if b.panics {
		panic("transport exploded")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := payload.(*entity.CompetitionState); ok {
		b.states = append(b.states, state)
	}
	return b.err
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.states)
}

func (b *recordingBroadcaster) last() *entity.CompetitionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.states) == 0 {
		return nil
	}
	return b.states[len(b.states)-1]
}

// fakeCompetitionRepo хранит соревнования в памяти с той же условной семантикой, что и Postgres
type fakeCompetitionRepo struct {
	mu       sync.Mutex
	items    map[uint]entity.Competition
	writes   int
	timerErr error
}

func (r *fakeCompetitionRepo) failTimerWrites(err error) {
	r.mu.Lock()
	r.timerErr = err
	r.mu.Unlock()
}

func newFakeCompetitionRepo(items ...entity.Competition) *fakeCompetitionRepo {
	r := &fakeCompetitionRepo{items: make(map[uint]entity.Competition)}
	for _, c := range items {
		r.items[c.ID] = c
	}
	return r
}

func (r *fakeCompetitionRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *fakeCompetitionRepo) get(id uint) entity.Competition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

func (r *fakeCompetitionRepo) Create(_ context.Context, c *entity.Competition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uint(len(r.items) + 1)
	c.Status = entity.CompetitionStatusNew
	r.items[c.ID] = *c
	r.writes++
	return nil
}

func (r *fakeCompetitionRepo) GetByID(_ context.Context, id uint) (*entity.Competition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, apperrors.ErrCompetitionNotFound
	}
	return &c, nil
}

func (r *fakeCompetitionRepo) GetByIDInRoom(ctx context.Context, id, roomID uint) (*entity.Competition, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.RoomID != roomID {
		return nil, apperrors.ErrCompetitionNotFound
	}
	return c, nil
}

func (r *fakeCompetitionRepo) ListByRoom(_ context.Context, roomID uint) ([]entity.Competition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Competition
	for _, c := range r.items {
		if c.RoomID == roomID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCompetitionRepo) mutate(id uint, cond func(c *entity.Competition) bool, apply func(c *entity.Competition)) (*entity.Competition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, apperrors.ErrCompetitionNotFound
	}
	if cond != nil && !cond(&c) {
		return nil, errors.Join(apperrors.ErrConflict, errors.New("conditional update matched no rows"))
	}
	apply(&c)
	r.items[id] = c
	r.writes++
	out := c
	return &out, nil
}

func sameIndex(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *fakeCompetitionRepo) UpdateCurrentProblem(_ context.Context, id uint, expectedIndex *int, problemID *uint, index int) (*entity.Competition, error) {
	return r.mutate(id,
		func(c *entity.Competition) bool {
			return c.Status != entity.CompetitionStatusDone && sameIndex(c.CurrentProblemIndex, expectedIndex)
		},
		func(c *entity.Competition) {
			play := entity.GameplayPlay
			idx := index
			c.CurrentProblemID = problemID
			c.CurrentProblemIndex = &idx
			c.Status = entity.CompetitionStatusOngoing
			c.GameplayIndicator = &play
			c.TimerStartedAt, c.TimerDuration, c.TimerEndAt, c.TimeRemaining = nil, nil, nil, nil
		})
}

func (r *fakeCompetitionRepo) UpdateTimer(_ context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error) {
	r.mu.Lock()
	timerErr := r.timerErr
	r.mu.Unlock()
	if timerErr != nil {
		return nil, timerErr
	}
	return r.mutate(id, nil, func(c *entity.Competition) {
		d := duration
		c.TimerStartedAt = &startedAt
		c.TimerDuration = &d
		c.TimerEndAt = &endAt
	})
}

func (r *fakeCompetitionRepo) Finish(_ context.Context, id uint, expectedIndex *int, finalIndex int) (*entity.Competition, error) {
	return r.mutate(id,
		func(c *entity.Competition) bool {
			return c.Status == entity.CompetitionStatusOngoing && sameIndex(c.CurrentProblemIndex, expectedIndex)
		},
		func(c *entity.Competition) {
			finished := entity.GameplayFinished
			idx := finalIndex
			c.Status = entity.CompetitionStatusDone
			c.GameplayIndicator = &finished
			c.CurrentProblemIndex = &idx
			c.TimerStartedAt, c.TimerDuration, c.TimerEndAt, c.TimeRemaining = nil, nil, nil, nil
		})
}

func (r *fakeCompetitionRepo) PauseTimer(_ context.Context, id uint, timeRemaining *int) (*entity.Competition, error) {
	return r.mutate(id,
		func(c *entity.Competition) bool {
			return c.IsOngoing() && c.GameplayIndicator != nil && *c.GameplayIndicator == entity.GameplayPlay
		},
		func(c *entity.Competition) {
			pause := entity.GameplayPause
			c.GameplayIndicator = &pause
			c.TimeRemaining = timeRemaining
		})
}

func (r *fakeCompetitionRepo) ResumeTimer(_ context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error) {
	return r.mutate(id,
		func(c *entity.Competition) bool { return c.IsPaused() },
		func(c *entity.Competition) {
			play := entity.GameplayPlay
			d := duration
			c.GameplayIndicator = &play
			c.TimerStartedAt = &startedAt
			c.TimerDuration = &d
			c.TimerEndAt = &endAt
			c.TimeRemaining = nil
		})
}

func (r *fakeCompetitionRepo) ListExpired(_ context.Context, now time.Time) ([]entity.Competition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Competition
	for _, c := range r.items {
		if c.IsOngoing() && c.GameplayIndicator != nil && *c.GameplayIndicator == entity.GameplayPlay &&
			c.TimerEndAt != nil && !c.TimerEndAt.After(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// staticProblemRepo отдает фиксированный список задач соревнования
type staticProblemRepo struct {
	list []entity.CompetitionProblem
}

func (r *staticProblemRepo) FetchByCompetition(context.Context, uint) ([]entity.CompetitionProblem, error) {
	out := make([]entity.CompetitionProblem, len(r.list))
	copy(out, r.list)
	return out, nil
}

func (r *staticProblemRepo) Attach(_ context.Context, cp *entity.CompetitionProblem) error {
	r.list = append(r.list, *cp)
	return nil
}

func (r *staticProblemRepo) GetProblem(_ context.Context, problemID uint) (*entity.Problem, error) {
	for _, cp := range r.list {
		if cp.ProblemID == problemID {
			p := cp.Problem
			return &p, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

// attached строит записи CompetitionProblem с последовательным order
func attached(timers ...*int) []entity.CompetitionProblem {
	list := make([]entity.CompetitionProblem, 0, len(timers))
	for i, timer := range timers {
		problemID := uint(100 + i)
		list = append(list, entity.CompetitionProblem{
			ID:            uint(10 + i),
			CompetitionID: 1,
			ProblemID:     problemID,
			Order:         i,
			Timer:         timer,
			Problem:       entity.Problem{ID: problemID, Title: "Problem"},
		})
	}
	return list
}
