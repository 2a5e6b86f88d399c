package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	"github.com/yourusername/polegion-api/internal/middleware"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
	"github.com/yourusername/polegion-api/internal/service"
	"github.com/yourusername/polegion-api/internal/service/competitionmanager"
)

// memCompetitions - соревнования в памяти с условными записями по индексу
type memCompetitions struct {
	mu    sync.Mutex
	items map[uint]entity.Competition
}

func (r *memCompetitions) get(id uint) entity.Competition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

func (r *memCompetitions) Create(_ context.Context, c *entity.Competition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uint(len(r.items) + 1)
	c.Status = entity.CompetitionStatusNew
	r.items[c.ID] = *c
	return nil
}

func (r *memCompetitions) GetByID(_ context.Context, id uint) (*entity.Competition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, apperrors.ErrCompetitionNotFound
	}
	return &c, nil
}

func (r *memCompetitions) GetByIDInRoom(ctx context.Context, id, roomID uint) (*entity.Competition, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil || c.RoomID != roomID {
		return nil, apperrors.ErrCompetitionNotFound
	}
	return c, nil
}

func (r *memCompetitions) ListByRoom(_ context.Context, roomID uint) ([]entity.Competition, error) {
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

func (r *memCompetitions) update(id uint, cond func(c *entity.Competition) bool, apply func(c *entity.Competition)) (*entity.Competition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, apperrors.ErrCompetitionNotFound
	}
	if !cond(&c) {
		return nil, apperrors.ErrConflict
	}
	apply(&c)
	r.items[id] = c
	return &c, nil
}

func atIndex(c *entity.Competition, expected *int) bool {
	if c.CurrentProblemIndex == nil || expected == nil {
		return c.CurrentProblemIndex == nil && expected == nil
	}
	return *c.CurrentProblemIndex == *expected
}

func (r *memCompetitions) UpdateCurrentProblem(_ context.Context, id uint, expectedIndex *int, problemID *uint, index int) (*entity.Competition, error) {
	return r.update(id,
		func(c *entity.Competition) bool { return !c.IsDone() && atIndex(c, expectedIndex) },
		func(c *entity.Competition) {
			play := entity.GameplayPlay
			c.Status, c.GameplayIndicator = entity.CompetitionStatusOngoing, &play
			c.CurrentProblemID, c.CurrentProblemIndex = problemID, &index
			c.TimerStartedAt, c.TimerDuration, c.TimerEndAt, c.TimeRemaining = nil, nil, nil, nil
		})
}

func (r *memCompetitions) UpdateTimer(_ context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error) {
	return r.update(id,
		func(*entity.Competition) bool { return true },
		func(c *entity.Competition) {
			c.TimerStartedAt, c.TimerDuration, c.TimerEndAt = &startedAt, &duration, &endAt
		})
}

func (r *memCompetitions) Finish(_ context.Context, id uint, expectedIndex *int, finalIndex int) (*entity.Competition, error) {
	return r.update(id,
		func(c *entity.Competition) bool { return c.IsOngoing() && atIndex(c, expectedIndex) },
		func(c *entity.Competition) {
			finished := entity.GameplayFinished
			c.Status, c.GameplayIndicator, c.CurrentProblemIndex = entity.CompetitionStatusDone, &finished, &finalIndex
			c.TimerStartedAt, c.TimerDuration, c.TimerEndAt, c.TimeRemaining = nil, nil, nil, nil
		})
}

func (r *memCompetitions) PauseTimer(_ context.Context, id uint, timeRemaining *int) (*entity.Competition, error) {
	return r.update(id,
		func(c *entity.Competition) bool { return c.IsOngoing() && !c.IsPaused() },
		func(c *entity.Competition) {
			pause := entity.GameplayPause
			c.GameplayIndicator, c.TimeRemaining = &pause, timeRemaining
		})
}

func (r *memCompetitions) ResumeTimer(_ context.Context, id uint, startedAt time.Time, duration int, endAt time.Time) (*entity.Competition, error) {
	return r.update(id,
		func(c *entity.Competition) bool { return c.IsPaused() },
		func(c *entity.Competition) {
			play := entity.GameplayPlay
			c.GameplayIndicator, c.TimeRemaining = &play, nil
			c.TimerStartedAt, c.TimerDuration, c.TimerEndAt = &startedAt, &duration, &endAt
		})
}

func (r *memCompetitions) ListExpired(context.Context, time.Time) ([]entity.Competition, error) {
	return nil, nil
}

// memProblems отдает фиксированный список задач
type memProblems struct {
	list []entity.CompetitionProblem
}

func (r *memProblems) FetchByCompetition(context.Context, uint) ([]entity.CompetitionProblem, error) {
	return append([]entity.CompetitionProblem(nil), r.list...), nil
}

func (r *memProblems) Attach(_ context.Context, cp *entity.CompetitionProblem) error {
	r.list = append(r.list, *cp)
	return nil
}

func (r *memProblems) GetProblem(_ context.Context, problemID uint) (*entity.Problem, error) {
	for _, cp := range r.list {
		if cp.ProblemID == problemID {
			p := cp.Problem
			return &p, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// memRooms - комната #7 с владельцем и одним участником
type memRooms struct {
	owner   uuid.UUID
	student uuid.UUID
}

func (r *memRooms) GetByID(_ context.Context, roomID uint) (*entity.Room, error) {
	if roomID != 7 {
		return nil, apperrors.ErrNotFound
	}
	return &entity.Room{ID: 7, CreatorID: r.owner}, nil
}

func (r *memRooms) ListParticipants(context.Context, uint) ([]entity.RoomParticipant, error) {
	return []entity.RoomParticipant{{ID: 1, RoomID: 7, UserID: r.student}}, nil
}

func (r *memRooms) GetParticipant(_ context.Context, roomID uint, userID uuid.UUID) (*entity.RoomParticipant, error) {
	if roomID == 7 && userID == r.student {
		return &entity.RoomParticipant{ID: 1, RoomID: 7, UserID: userID}, nil
	}
	return nil, apperrors.ErrNotFound
}

type controlFixture struct {
	competitions *memCompetitions
	rooms        *memRooms
	handler      *CompetitionHandler
}

// newControlFixture - соревнование #1 из трех задач по 30с, запущенное владельцем только что
func newControlFixture(t *testing.T) *controlFixture {
	t.Helper()
	f := &controlFixture{
		competitions: &memCompetitions{items: map[uint]entity.Competition{
			1: {ID: 1, RoomID: 7, Title: "Triangles", Status: entity.CompetitionStatusNew},
		}},
		rooms: &memRooms{owner: uuid.New(), student: uuid.New()},
	}
	timer := 30
	problems := &memProblems{}
	for i := 0; i < 3; i++ {
		problems.list = append(problems.list, entity.CompetitionProblem{
			ID: uint(10 + i), CompetitionID: 1, ProblemID: uint(100 + i), Order: i, Timer: &timer,
			Problem: entity.Problem{ID: uint(100 + i), RoomID: 7, MaxXP: 50},
		})
	}

	sequencer := competitionmanager.NewSequencer(problems, 30)
	competitions := service.NewCompetitionService(f.competitions, problems, f.rooms, nil, sequencer)
	sm := competitionmanager.NewStateMachine(competitionmanager.Dependencies{
		CompetitionRepo: f.competitions,
		ProblemRepo:     problems,
	})
	f.handler = NewCompetitionHandler(competitions, sm)

	_, err := sm.Start(context.Background(), 1, competitionmanager.OrderedProblems(problems.list))
	require.NoError(t, err)
	return f
}

func (f *controlFixture) post(userID uuid.UUID, path, body string) *httptest.ResponseRecorder {
	router := gin.New()
	group := router.Group("/api/competitions/:id", withUser(userID), middleware.ExtractUintParam("id", "competitionID"))
	group.POST("/auto-advance", f.handler.AutoAdvance)
	group.POST("/xp", f.handler.AwardXP)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAutoAdvance_ParticipantCannotSkipRunningTimer(t *testing.T) {
	// Arrange
	f := newControlFixture(t)

	for _, body := range []string{"", `{}`, `{"expected_index":0}`} {
		// Act
		w := f.post(f.rooms.student, "/api/competitions/1/auto-advance", body)

		// Assert
		assert.Equal(t, http.StatusNoContent, w.Code, "body %q", body)
	}
	c := f.competitions.get(1)
	assert.Equal(t, 0, c.ProblemIndex())
	assert.True(t, c.IsOngoing())
}

func TestAutoAdvance_ParticipantAdvancesExpiredTimer(t *testing.T) {
	// Arrange: таймер задачи 0 истек
	f := newControlFixture(t)
	past := time.Now().Add(-time.Second)
	f.competitions.mu.Lock()
	c := f.competitions.items[1]
	c.TimerEndAt = &past
	f.competitions.items[1] = c
	f.competitions.mu.Unlock()

	// Act
	w := f.post(f.rooms.student, "/api/competitions/1/auto-advance", "")

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	var state entity.CompetitionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, 1, *state.CurrentProblemIndex)
}

func TestAutoAdvance_OwnerAdvancesUnconditionally(t *testing.T) {
	f := newControlFixture(t)

	w := f.post(f.rooms.owner, "/api/competitions/1/auto-advance", "")

	require.Equal(t, http.StatusOK, w.Code)
	{
		got := f.competitions.get(1)
		assert.Equal(t, 1, got.ProblemIndex())
	}
}

func TestAutoAdvance_StrangerIsForbidden(t *testing.T) {
	f := newControlFixture(t)

	w := f.post(uuid.New(), "/api/competitions/1/auto-advance", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	{
		got := f.competitions.get(1)
		assert.Equal(t, 0, got.ProblemIndex())
	}
}

func TestAwardXP_ParticipantCannotAwardThemselves(t *testing.T) {
	f := newControlFixture(t)
	body := `{"user_id":"` + f.rooms.student.String() + `","xp":1000}`

	w := f.post(f.rooms.student, "/api/competitions/1/xp", body)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAwardXP_RequiresTargetUser(t *testing.T) {
	f := newControlFixture(t)

	w := f.post(f.rooms.owner, "/api/competitions/1/xp", `{"xp":10}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
