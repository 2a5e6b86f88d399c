package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	"github.com/yourusername/polegion-api/internal/domain/repository"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
	"github.com/yourusername/polegion-api/internal/service/competitionmanager"
)

const (
	maxCompetitionTitleLength = 100
	seedConcurrency           = 8
)

// CompetitionService предоставляет методы для работы с соревнованиями вне state machine
type CompetitionService struct {
	competitions repository.CompetitionRepository
	problems     repository.CompetitionProblemRepository
	rooms        repository.RoomRepository
	leaderboards *LeaderboardService
	sequencer    *competitionmanager.Sequencer
}

// NewCompetitionService создает новый сервис соревнований
func NewCompetitionService(
	competitions repository.CompetitionRepository,
	problems repository.CompetitionProblemRepository,
	rooms repository.RoomRepository,
	leaderboards *LeaderboardService,
	sequencer *competitionmanager.Sequencer,
) *CompetitionService {
	return &CompetitionService{
		competitions: competitions,
		problems:     problems,
		rooms:        rooms,
		leaderboards: leaderboards,
		sequencer:    sequencer,
	}
}

// Create создает соревнование в статусе NEW и засевает лидерборд нулями
// для всех текущих участников комнаты. Частичный засев допустим:
// недостающие строки создаются при первом начислении XP.
func (s *CompetitionService) Create(ctx context.Context, roomID uint, title string) (*entity.Competition, error) {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxCompetitionTitleLength {
		return nil, fmt.Errorf("%w: title must be 1-%d characters", apperrors.ErrValidation, maxCompetitionTitleLength)
	}

	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}

	competition := &entity.Competition{RoomID: roomID, Title: title}
	if err := s.competitions.Create(ctx, competition); err != nil {
		return nil, fmt.Errorf("create competition in room #%d: %w", roomID, err)
	}

	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		log.Printf("[CompetitionService] Competition #%d created, but participants of room #%d could not be listed: %v",
			competition.ID, roomID, err)
		return competition, nil
	}

	var g errgroup.Group
	g.SetLimit(seedConcurrency)
	for _, p := range participants {
		participantID := p.ID
		g.Go(func() error {
			if err := s.leaderboards.AddCompeBoard(ctx, roomID, competition.ID, participantID); err != nil &&
				!errors.Is(err, apperrors.ErrConflict) {
				log.Printf("[CompetitionService] Failed to seed leaderboard of competition #%d for participant #%d: %v",
					competition.ID, participantID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("[CompetitionService] Competition #%d created in room #%d for %d participants",
		competition.ID, roomID, len(participants))
	return competition, nil
}

// Get возвращает соревнование по ID
func (s *CompetitionService) Get(ctx context.Context, competitionID uint) (*entity.Competition, error) {
	return s.competitions.GetByID(ctx, competitionID)
}

// ListByRoom возвращает соревнования комнаты
func (s *CompetitionService) ListByRoom(ctx context.Context, roomID uint) ([]entity.Competition, error) {
	return s.competitions.ListByRoom(ctx, roomID)
}

// Problems возвращает упорядоченные задачи соревнования
func (s *CompetitionService) Problems(ctx context.Context, competitionID uint) ([]entity.CompetitionProblem, error) {
	return s.sequencer.FetchCompetitionProblems(ctx, competitionID)
}

// OrderedProblems возвращает список задач, который передается в Start/Next
func (s *CompetitionService) OrderedProblems(ctx context.Context, competitionID uint) ([]entity.Problem, error) {
	list, err := s.sequencer.FetchCompetitionProblems(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	return competitionmanager.OrderedProblems(list), nil
}

// AttachProblem привязывает задачу комнаты к еще не начатому соревнованию
func (s *CompetitionService) AttachProblem(ctx context.Context, competitionID, problemID uint, order int, timer *int) (*entity.CompetitionProblem, error) {
	if timer != nil && *timer <= 0 {
		return nil, fmt.Errorf("%w: timer must be positive", apperrors.ErrValidation)
	}
	if order < 0 {
		return nil, fmt.Errorf("%w: order must not be negative", apperrors.ErrValidation)
	}

	competition, err := s.competitions.GetByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if !competition.IsNew() {
		return nil, fmt.Errorf("%w: problems of competition #%d are fixed once it has started",
			apperrors.ErrConflict, competitionID)
	}

	problem, err := s.problems.GetProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if problem.RoomID != competition.RoomID {
		return nil, fmt.Errorf("%w: problem #%d belongs to another room", apperrors.ErrValidation, problemID)
	}

	cp := &entity.CompetitionProblem{
		CompetitionID: competitionID,
		ProblemID:     problemID,
		Order:         order,
		Timer:         timer,
	}
	if err := s.problems.Attach(ctx, cp); err != nil {
		return nil, err
	}
	cp.Problem = *problem
	return cp, nil
}

// RequireOwner возвращает соревнование, если userID - создатель его комнаты
func (s *CompetitionService) RequireOwner(ctx context.Context, competitionID uint, userID uuid.UUID) (*entity.Competition, error) {
	competition, err := s.competitions.GetByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if err := s.RequireRoomOwner(ctx, competition.RoomID, userID); err != nil {
		return nil, err
	}
	return competition, nil
}

// RequireRoomOwner проверяет, что userID - создатель комнаты
func (s *CompetitionService) RequireRoomOwner(ctx context.Context, roomID uint, userID uuid.UUID) error {
	owner, err := s.IsRoomOwner(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !owner {
		return fmt.Errorf("%w: only the room owner can manage competitions", apperrors.ErrForbidden)
	}
	return nil
}

// IsRoomOwner сообщает, создал ли userID комнату
func (s *CompetitionService) IsRoomOwner(ctx context.Context, roomID uint, userID uuid.UUID) (bool, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.IsOwnedBy(userID), nil
}

// RequireMember возвращает соревнование и членство пользователя в комнате.
// Для владельца комнаты без членства participant == nil.
func (s *CompetitionService) RequireMember(ctx context.Context, competitionID uint, userID uuid.UUID) (*entity.Competition, *entity.RoomParticipant, error) {
	competition, err := s.competitions.GetByID(ctx, competitionID)
	if err != nil {
		return nil, nil, err
	}

	participant, err := s.rooms.GetParticipant(ctx, competition.RoomID, userID)
	if err == nil {
		return competition, participant, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, err
	}

	if err := s.RequireRoomOwner(ctx, competition.RoomID, userID); err != nil {
		if errors.Is(err, apperrors.ErrForbidden) {
			return nil, nil, fmt.Errorf("%w: not a member of room #%d", apperrors.ErrForbidden, competition.RoomID)
		}
		return nil, nil, err
	}
	return competition, nil, nil
}

// AwardXP начисляет XP участнику за текущую задачу. Начисляет только владелец комнаты,
// соревнование должно идти без паузы, а xp не больше max_xp текущей задачи.
func (s *CompetitionService) AwardXP(ctx context.Context, competitionID uint, ownerID, participantUserID uuid.UUID, xp int) error {
	competition, err := s.RequireOwner(ctx, competitionID, ownerID)
	if err != nil {
		return err
	}
	if !competition.IsOngoing() {
		return fmt.Errorf("%w: competition #%d is not running", apperrors.ErrConflict, competitionID)
	}
	if competition.IsPaused() {
		return fmt.Errorf("%w: competition #%d is paused", apperrors.ErrConflict, competitionID)
	}

	participant, err := s.rooms.GetParticipant(ctx, competition.RoomID, participantUserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%w: user %s is not a participant of room #%d",
				apperrors.ErrValidation, participantUserID, competition.RoomID)
		}
		return err
	}

	current, err := s.currentProblem(ctx, competition)
	if err != nil {
		return err
	}
	if limit := current.Problem.MaxXP; limit > 0 && xp > limit {
		return fmt.Errorf("%w: problem #%d awards at most %d xp", apperrors.ErrValidation, current.ProblemID, limit)
	}
	return s.leaderboards.UpdateBothLeaderboards(ctx, participant.ID, competition.ID, competition.RoomID, xp)
}

// currentProblem возвращает CompetitionProblem, на которой стоит соревнование
func (s *CompetitionService) currentProblem(ctx context.Context, competition *entity.Competition) (*entity.CompetitionProblem, error) {
	if competition.CurrentProblemID == nil {
		return nil, fmt.Errorf("%w: competition #%d has no current problem", apperrors.ErrConflict, competition.ID)
	}
	list, err := s.sequencer.FetchCompetitionProblems(ctx, competition.ID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == *competition.CurrentProblemID {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: current problem of competition #%d", apperrors.ErrNotFound, competition.ID)
}

// SubscriptionSnapshot возвращает снимок соревнования для участника или владельца комнаты
func (s *CompetitionService) SubscriptionSnapshot(ctx context.Context, competitionID uint, userID uuid.UUID) (*entity.CompetitionState, error) {
	competition, _, err := s.RequireMember(ctx, competitionID, userID)
	if err != nil {
		return nil, err
	}
	return competition.Snapshot(), nil
}

// RequireRoomMember проверяет, что userID - участник или создатель комнаты
func (s *CompetitionService) RequireRoomMember(ctx context.Context, roomID uint, userID uuid.UUID) error {
	_, err := s.rooms.GetParticipant(ctx, roomID, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if err := s.RequireRoomOwner(ctx, roomID, userID); err != nil {
		if errors.Is(err, apperrors.ErrForbidden) {
			return fmt.Errorf("%w: not a member of room #%d", apperrors.ErrForbidden, roomID)
		}
		return err
	}
	return nil
}
