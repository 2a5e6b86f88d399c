package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/polegion-api/internal/domain/entity"
)

// CreateCompetitionRequest - тело POST /api/rooms/:id/competitions
type CreateCompetitionRequest struct {
	Title string `json:"title" binding:"required,min=1,max=100"`
}

// AttachProblemRequest - тело POST /api/competitions/:id/problems
type AttachProblemRequest struct {
	ProblemID uint `json:"problem_id" binding:"required"`
	Order     int  `json:"order" binding:"min=0"`
	Timer     *int `json:"timer,omitempty" binding:"omitempty,min=1"`
}

// NextProblemRequest - тело POST /api/competitions/:id/next
type NextProblemRequest struct {
	CurrentIndex *int `json:"current_index" binding:"required,min=0"`
}

// AutoAdvanceRequest - необязательное тело POST /api/competitions/:id/auto-advance
type AutoAdvanceRequest struct {
	ExpectedIndex *int `json:"expected_index,omitempty" binding:"omitempty,min=0"`
}

// AwardXPRequest - тело POST /api/competitions/:id/xp
type AwardXPRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	XP     int       `json:"xp" binding:"min=0"`
}

// CompetitionProblemResponse - задача соревнования в ответе API
type CompetitionProblemResponse struct {
	ID         uint   `json:"id"`
	ProblemID  uint   `json:"problem_id"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty,omitempty"`
	MaxXP      int    `json:"max_xp"`
	Order      int    `json:"order"`
	Timer      *int   `json:"timer"`
}

// CompetitionResponse - соревнование в списке комнаты
type CompetitionResponse struct {
	ID        uint      `json:"id"`
	RoomID    uint      `json:"room_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCompetitionProblemResponse создает DTO задачи соревнования
func NewCompetitionProblemResponse(cp *entity.CompetitionProblem) CompetitionProblemResponse {
	return CompetitionProblemResponse{
		ID:         cp.ID,
		ProblemID:  cp.ProblemID,
		Title:      cp.Problem.Title,
		Difficulty: cp.Problem.Difficulty,
		MaxXP:      cp.Problem.MaxXP,
		Order:      cp.Order,
		Timer:      cp.Timer,
	}
}

// NewCompetitionProblemListResponse создает список DTO задач в порядке показа
func NewCompetitionProblemListResponse(list []entity.CompetitionProblem) []CompetitionProblemResponse {
	out := make([]CompetitionProblemResponse, 0, len(list))
	for i := range list {
		out = append(out, NewCompetitionProblemResponse(&list[i]))
	}
	return out
}

// NewCompetitionListResponse создает список DTO соревнований
func NewCompetitionListResponse(list []entity.Competition) []CompetitionResponse {
	out := make([]CompetitionResponse, 0, len(list))
	for _, c := range list {
		out = append(out, CompetitionResponse{
			ID:        c.ID,
			RoomID:    c.RoomID,
			Title:     c.Title,
			Status:    c.Status,
			CreatedAt: c.CreatedAt,
		})
	}
	return out
}
