package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	"github.com/yourusername/polegion-api/internal/domain/repository"
	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

const (
	// DefaultLeaderboardCacheTTL - время жизни закешированного лидерборда
	DefaultLeaderboardCacheTTL = 5 * time.Minute
	// enrichConcurrency ограничивает число параллельных запросов профилей на один лидерборд
	enrichConcurrency = 8
)

// LeaderboardOptions содержит настройки LeaderboardService
type LeaderboardOptions struct {
	CacheTTL      time.Duration
	MaxXPPerAward int // 0 - без ограничения
}

// LeaderboardService считает лидерборды комнаты и соревнований и кеширует их
type LeaderboardService struct {
	repo     repository.LeaderboardRepository
	identity repository.IdentityRepository
	cache    repository.CacheRepository
	ttl      time.Duration
	maxXP    int

	// generations растет при каждой инвалидации ключа; лидерборд,
	// посчитанный до инвалидации, в кеш не пишется
	mu          sync.Mutex
	generations map[string]uint64
}

// NewLeaderboardService создает новый сервис лидербордов
func NewLeaderboardService(
	repo repository.LeaderboardRepository,
	identity repository.IdentityRepository,
	cache repository.CacheRepository,
	opts LeaderboardOptions,
) *LeaderboardService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultLeaderboardCacheTTL
	}
	return &LeaderboardService{
		repo:     repo,
		identity: identity,
		cache:    cache,
		ttl:         opts.CacheTTL,
		maxXP:       opts.MaxXPPerAward,
		generations: make(map[string]uint64),
	}
}

// LeaderboardKey строит ключ кеша вида "<namespace>:<id>"
func LeaderboardKey(namespace string, scopeID uint) string {
	return fmt.Sprintf("%s:%d", namespace, scopeID)
}

// GetRoomBoard возвращает лидерборд комнаты в порядке, который отдал запрос.
// Строка, для которой не удалось получить профиль, возвращается только с accumulated_xp.
func (s *LeaderboardService) GetRoomBoard(ctx context.Context, roomID uint) ([]entity.BoardEntry, error) {
	key := LeaderboardKey(entity.RoomLeaderboardNamespace, roomID)

	var cached []entity.BoardEntry
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	gen := s.generation(key)
	rows, err := s.repo.GetRawRoomBoard(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room #%d leaderboard: %w", roomID, err)
	}

	board := make([]entity.BoardEntry, len(rows))
	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i := range rows {
		i := i
		row := rows[i]
		g.Go(func() error {
			board[i] = entity.BoardEntry{AccumulatedXP: row.AccumulatedXP}
			participant, err := s.lookupParticipant(ctx, row.ParticipantID, row.Participant.UserID)
			if err != nil {
				log.Printf("[LeaderboardService] Room #%d: profile lookup failed for participant #%d: %v",
					roomID, row.ParticipantID, err)
				return nil
			}
			board[i].Participant = participant
			return nil
		})
	}
	_ = g.Wait()

	s.writeCache(ctx, key, gen, board)
	return board, nil
}

// GetCompeBoard возвращает лидерборды всех соревнований комнаты, сгруппированные по соревнованию.
// Кешируется по room_id: payload покрывает всю комнату.
func (s *LeaderboardService) GetCompeBoard(ctx context.Context, roomID uint) ([]entity.CompetitionBoard, error) {
	key := LeaderboardKey(entity.CompetitionLeaderboardNamespace, roomID)

	var cached []entity.CompetitionBoard
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	gen := s.generation(key)
	rows, err := s.repo.GetRawCompeBoard(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room #%d competition leaderboards: %w", roomID, err)
	}

	entries := make([]entity.BoardEntry, len(rows))
	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i := range rows {
		i := i
		row := rows[i]
		g.Go(func() error {
			participant, err := s.lookupParticipant(ctx, row.ParticipantID, row.Participant.UserID)
			if err != nil {
				log.Printf("[LeaderboardService] Competition #%d: profile lookup failed for participant #%d: %v",
					row.CompetitionID, row.ParticipantID, err)
				participant = entity.UnknownParticipant(row.ParticipantID)
			}
			entries[i] = entity.BoardEntry{AccumulatedXP: row.AccumulatedXP, Participant: participant}
			return nil
		})
	}
	_ = g.Wait()

	boards := groupByCompetition(rows, entries)
	s.writeCache(ctx, key, gen, boards)
	return boards, nil
}

// groupByCompetition собирает строки в бакеты {id, title, data} в порядке первого появления
func groupByCompetition(rows []entity.CompetitionLeaderboardEntry, entries []entity.BoardEntry) []entity.CompetitionBoard {
	boards := make([]entity.CompetitionBoard, 0)
	index := make(map[uint]int)
	for i, row := range rows {
		pos, ok := index[row.CompetitionID]
		if !ok {
			pos = len(boards)
			index[row.CompetitionID] = pos
			boards = append(boards, entity.CompetitionBoard{
				ID:    row.CompetitionID,
				Title: row.Competition.Title,
				Data:  make([]entity.BoardEntry, 0),
			})
		}
		boards[pos].Data = append(boards[pos].Data, entries[i])
	}
	return boards
}

// AddRoomBoard создает строку лидерборда комнаты с нулевым XP
func (s *LeaderboardService) AddRoomBoard(ctx context.Context, roomID, participantID uint) error {
	if err := s.repo.AddRoomEntry(ctx, roomID, participantID); err != nil {
		return err
	}
	s.invalidate(ctx, LeaderboardKey(entity.RoomLeaderboardNamespace, roomID))
	return nil
}

// AddCompeBoard создает строку лидерборда соревнования с нулевым XP
func (s *LeaderboardService) AddCompeBoard(ctx context.Context, roomID, competitionID, participantID uint) error {
	if err := s.repo.AddCompeEntry(ctx, competitionID, participantID); err != nil {
		return err
	}
	s.invalidate(ctx, LeaderboardKey(entity.CompetitionLeaderboardNamespace, roomID))
	return nil
}

// UpdateRoomBoard перезаписывает XP участника в комнате
func (s *LeaderboardService) UpdateRoomBoard(ctx context.Context, roomID, participantID uint, xp int) error {
	if xp < 0 {
		return fmt.Errorf("%w: accumulated xp must not be negative", apperrors.ErrValidation)
	}
	if err := s.repo.SetRoomXP(ctx, roomID, participantID, xp); err != nil {
		return err
	}
	s.invalidate(ctx, LeaderboardKey(entity.RoomLeaderboardNamespace, roomID))
	return nil
}

// UpdateCompeBoard перезаписывает XP участника в соревновании
func (s *LeaderboardService) UpdateCompeBoard(ctx context.Context, roomID, competitionID, participantID uint, xp int) error {
	if xp < 0 {
		return fmt.Errorf("%w: accumulated xp must not be negative", apperrors.ErrValidation)
	}
	if err := s.repo.SetCompeXP(ctx, competitionID, participantID, xp); err != nil {
		return err
	}
	s.invalidate(ctx, LeaderboardKey(entity.CompetitionLeaderboardNamespace, roomID))
	return nil
}

// UpdateBothLeaderboards начисляет XP в лидерборд соревнования и комнаты.
// Начисление атомарное, недостающая строка создается лениво.
func (s *LeaderboardService) UpdateBothLeaderboards(ctx context.Context, participantID, competitionID, roomID uint, xpGained int) error {
	if xpGained < 0 {
		return fmt.Errorf("%w: xp gained must not be negative", apperrors.ErrValidation)
	}
	if s.maxXP > 0 && xpGained > s.maxXP {
		return fmt.Errorf("%w: xp gained exceeds %d", apperrors.ErrValidation, s.maxXP)
	}

	// оба ключа сбрасываются даже при частичном успехе
	defer s.invalidate(ctx,
		LeaderboardKey(entity.RoomLeaderboardNamespace, roomID),
		LeaderboardKey(entity.CompetitionLeaderboardNamespace, roomID),
	)

	err := accumulate(
		func() error { return s.repo.IncrementCompeXP(ctx, competitionID, participantID, xpGained) },
		func() error { return s.repo.AddCompeEntry(ctx, competitionID, participantID) },
	)
	if err != nil {
		return fmt.Errorf("award xp in competition #%d: %w", competitionID, err)
	}

	err = accumulate(
		func() error { return s.repo.IncrementRoomXP(ctx, roomID, participantID, xpGained) },
		func() error { return s.repo.AddRoomEntry(ctx, roomID, participantID) },
	)
	if err != nil {
		return fmt.Errorf("award xp in room #%d: %w", roomID, err)
	}

	log.Printf("[LeaderboardService] Participant #%d gained %d XP (competition #%d, room #%d)",
		participantID, xpGained, competitionID, roomID)
	return nil
}

// accumulate: increment; если строки нет - создать с нулем и повторить increment.
// Проигравший гонку за вставку получает ErrConflict и просто повторяет increment.
func accumulate(increment, create func() error) error {
	err := increment()
	if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if err := create(); err != nil && !errors.Is(err, apperrors.ErrConflict) {
		return err
	}
	return increment()
}

func (s *LeaderboardService) lookupParticipant(ctx context.Context, participantID uint, userID uuid.UUID) (*entity.LeaderboardParticipant, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("participant #%d has no user", participantID)
	}
	profile, err := s.identity.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	pic, err := s.identity.GetProfilePicture(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &entity.LeaderboardParticipant{
		ParticipantID: participantID,
		UserID:        userID.String(),
		FullName:      profile.FullName,
		Email:         profile.Email,
		ProfilePic:    pic,
	}, nil
}

func (s *LeaderboardService) readCache(ctx context.Context, key string, dest interface{}) bool {
	err := s.cache.GetJSON(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		log.Printf("[LeaderboardService] Cache read failed for %s: %v", key, err)
	}
	return false
}

func (s *LeaderboardService) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}

// writeCache пишет лидерборд, только если ключ не инвалидировали после чтения строк.
// Счетчик локален для процесса: инвалидацию с другого инстанса он не видит, там выручает TTL.
func (s *LeaderboardService) writeCache(ctx context.Context, key string, gen uint64, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[key] != gen {
		log.Printf("[LeaderboardService] Skipping cache write for %s: invalidated during computation", key)
		return
	}
	if err := s.cache.SetJSON(ctx, key, value, s.ttl); err != nil {
		log.Printf("[LeaderboardService] Cache write failed for %s: %v", key, err)
	}
}

func (s *LeaderboardService) invalidate(ctx context.Context, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.generations[key]++
		if err := s.cache.Delete(ctx, key); err != nil {
			log.Printf("[LeaderboardService] Cache invalidation failed for %s: %v", key, err)
		}
	}
}
