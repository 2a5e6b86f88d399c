package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	"github.com/yourusername/polegion-api/internal/handler/dto"
	"github.com/yourusername/polegion-api/internal/service"
	"github.com/yourusername/polegion-api/internal/service/competitionmanager"
)

// CompetitionHandler обрабатывает запросы, связанные с соревнованиями
type CompetitionHandler struct {
	competitions *service.CompetitionService
	stateMachine *competitionmanager.StateMachine
}

// NewCompetitionHandler создает новый обработчик соревнований
func NewCompetitionHandler(
	competitions *service.CompetitionService,
	stateMachine *competitionmanager.StateMachine,
) *CompetitionHandler {
	return &CompetitionHandler{
		competitions: competitions,
		stateMachine: stateMachine,
	}
}

// CreateCompetition создает соревнование в комнате
// POST /api/rooms/:id/competitions
func (h *CompetitionHandler) CreateCompetition(c *gin.Context) {
	roomID := c.MustGet("roomID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateCompetitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.competitions.RequireRoomOwner(c.Request.Context(), roomID, userID); err != nil {
		handleError(c, err)
		return
	}

	competition, err := h.competitions.Create(c.Request.Context(), roomID, req.Title)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, competition)
}

// ListCompetitions возвращает соревнования комнаты
// GET /api/rooms/:id/competitions
func (h *CompetitionHandler) ListCompetitions(c *gin.Context) {
	roomID := c.MustGet("roomID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.competitions.RequireRoomMember(c.Request.Context(), roomID, userID); err != nil {
		handleError(c, err)
		return
	}

	list, err := h.competitions.ListByRoom(c.Request.Context(), roomID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCompetitionListResponse(list))
}

// GetCompetition возвращает снимок состояния соревнования
// GET /api/competitions/:id
func (h *CompetitionHandler) GetCompetition(c *gin.Context) {
	competitionID := c.MustGet("competitionID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	state, err := h.competitions.SubscriptionSnapshot(c.Request.Context(), competitionID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// ListProblems возвращает задачи соревнования в порядке показа
// GET /api/competitions/:id/problems
func (h *CompetitionHandler) ListProblems(c *gin.Context) {
	competitionID := c.MustGet("competitionID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if _, _, err := h.competitions.RequireMember(c.Request.Context(), competitionID, userID); err != nil {
		handleError(c, err)
		return
	}

	list, err := h.competitions.Problems(c.Request.Context(), competitionID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCompetitionProblemListResponse(list))
}

// AttachProblem привязывает задачу комнаты к соревнованию
// POST /api/competitions/:id/problems
func (h *CompetitionHandler) AttachProblem(c *gin.Context) {
	competitionID := c.MustGet("competitionID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.AttachProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.competitions.RequireOwner(c.Request.Context(), competitionID, userID); err != nil {
		handleError(c, err)
		return
	}

	cp, err := h.competitions.AttachProblem(c.Request.Context(), competitionID, req.ProblemID, req.Order, req.Timer)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewCompetitionProblemResponse(cp))
}

// Start запускает соревнование с первой задачи
// POST /api/competitions/:id/start
func (h *CompetitionHandler) Start(c *gin.Context) {
	competitionID := c.MustGet("competitionID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.competitions.RequireOwner(ctx, competitionID, userID); err != nil {
		handleError(c, err)
		return
	}
	problems, err := h.competitions.OrderedProblems(ctx, competitionID)
	if err != nil {
		handleError(c, err)
		return
	}

	state, err := h.stateMachine.Start(ctx, competitionID, problems)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Next переводит соревнование к следующей задаче или завершает его
// POST /api/competitions/:id/next
func (h *CompetitionHandler) Next(c *gin.Context) {
	competitionID := c.MustGet("competitionID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req dto.NextProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.competitions.RequireOwner(ctx, competitionID, userID); err != nil {
		handleError(c, err)
		return
	}
	problems, err := h.competitions.OrderedProblems(ctx, competitionID)
	if err != nil {
		handleError(c, err)
		return
	}

	state, err := h.stateMachine.Next(ctx, competitionID, problems, *req.CurrentIndex)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Pause ставит таймер текущей задачи на паузу
// POST /api/competitions/:id/pause
func (h *CompetitionHandler) Pause(c *gin.Context) {
	h.ownerTransition(c, h.stateMachine.Pause)
}

// Resume продолжает таймер после паузы
// POST /api/competitions/:id/resume
func (h *CompetitionHandler) Resume(c *gin.Context) {
	h.ownerTransition(c, h.stateMachine.Resume)
}

func (h *CompetitionHandler) ownerTransition(c *gin.Context, transition func(ctx context.Context, competitionID uint) (*entity.CompetitionState, error)) {
	competitionID := c.MustGet("competitionID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if _, err := h.competitions.RequireOwner(c.Request.Context(), competitionID, userID); err != nil {
		handleError(c, err)
		return
	}

	state, err := transition(c.Request.Context(), competitionID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// AutoAdvance продвигает соревнование по истекшему таймеру.
// Участник может только сообщить об истечении: сервер сверяет индекс и таймер.
// Владелец без expected_index продвигает безусловно. Если продвигать нечего, ответ 204.
// POST /api/competitions/:id/auto-advance
func (h *CompetitionHandler) AutoAdvance(c *gin.Context) {
	competitionID := c.MustGet("competitionID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req dto.AutoAdvanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	competition, _, err := h.competitions.RequireMember(ctx, competitionID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	isOwner, err := h.competitions.IsRoomOwner(ctx, competition.RoomID, userID)
	if err != nil {
		handleError(c, err)
		return
	}

	var state *entity.CompetitionState
	switch {
	case req.ExpectedIndex != nil:
		state, err = h.stateMachine.AutoAdvanceFrom(ctx, competitionID, *req.ExpectedIndex)
	case isOwner:
		state, err = h.stateMachine.AutoAdvance(ctx, competitionID)
	default:
		state, err = h.stateMachine.AutoAdvanceFrom(ctx, competitionID, competition.ProblemIndex())
	}
	if err != nil {
		handleError(c, err)
		return
	}
	if state == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, state)
}

// AwardXP начисляет XP участнику за текущую задачу. Доступно только владельцу комнаты.
// POST /api/competitions/:id/xp
func (h *CompetitionHandler) AwardXP(c *gin.Context) {
	competitionID := c.MustGet("competitionID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.AwardXPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.competitions.AwardXP(c.Request.Context(), competitionID, userID, req.UserID, req.XP); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
