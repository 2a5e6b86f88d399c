package entity

import (
	"fmt"
	"time"
)

// Константы статусов соревнования
const (
	CompetitionStatusNew     = "NEW"
	CompetitionStatusOngoing = "ONGOING"
	CompetitionStatusDone    = "DONE"
)

// Значения gameplay_indicator. Имеют смысл только при status=ONGOING (или FINISHED после DONE).
const (
	GameplayPlay     = "PLAY"
	GameplayPause    = "PAUSE"
	GameplayFinished = "FINISHED"
)

// ParseGameplayIndicator проверяет значение индикатора на границе state machine
func ParseGameplayIndicator(s string) (string, error) {
	switch s {
	case GameplayPlay, GameplayPause, GameplayFinished:
		return s, nil
	}
	return "", fmt.Errorf("unknown gameplay indicator %q", s)
}

// ParseCompetitionStatus проверяет значение статуса соревнования
func ParseCompetitionStatus(s string) (string, error) {
	switch s {
	case CompetitionStatusNew, CompetitionStatusOngoing, CompetitionStatusDone:
		return s, nil
	}
	return "", fmt.Errorf("unknown competition status %q", s)
}

// Competition представляет живое соревнование внутри комнаты
type Competition struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	RoomID              uint       `gorm:"not null;index" json:"room_id"`
	Title               string     `gorm:"size:100;not null" json:"title"`
	Status              string     `gorm:"size:10;not null;default:'NEW';index" json:"status"`
	GameplayIndicator   *string    `gorm:"size:10" json:"gameplay_indicator"`
	CurrentProblemID    *uint      `json:"current_problem_id"`
	CurrentProblemIndex *int       `json:"current_problem_index"`
	TimerStartedAt      *time.Time `json:"timer_started_at"`
	TimerDuration       *int       `json:"timer_duration"`
	TimerEndAt          *time.Time `gorm:"index" json:"timer_end_at"`
	TimeRemaining       *int       `json:"time_remaining,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Competition) TableName() string {
	return "competitions"
}

// IsNew проверяет, что соревнование еще не запускалось
func (c *Competition) IsNew() bool {
	return c.Status == CompetitionStatusNew
}

// IsOngoing проверяет, идет ли соревнование
func (c *Competition) IsOngoing() bool {
	return c.Status == CompetitionStatusOngoing
}

// IsDone проверяет, завершено ли соревнование
func (c *Competition) IsDone() bool {
	return c.Status == CompetitionStatusDone
}

// IsPaused проверяет, стоит ли соревнование на паузе
func (c *Competition) IsPaused() bool {
	return c.IsOngoing() && c.GameplayIndicator != nil && *c.GameplayIndicator == GameplayPause
}

// HasRunningTimer сообщает, заданы ли и старт, и длительность таймера
func (c *Competition) HasRunningTimer() bool {
	return c.TimerStartedAt != nil && c.TimerDuration != nil
}

// ProblemIndex возвращает current_problem_index или 0, если он не задан
func (c *Competition) ProblemIndex() int {
	if c.CurrentProblemIndex == nil {
		return 0
	}
	return *c.CurrentProblemIndex
}

// Topic возвращает имя канала рассылки для этого соревнования
func (c *Competition) Topic() string {
	return CompetitionTopic(c.ID)
}

// CompetitionTopic строит имя канала рассылки по ID соревнования
func CompetitionTopic(competitionID uint) string {
	return fmt.Sprintf("competition-%d", competitionID)
}

// CompetitionState - снимок состояния, который возвращается вызывающему и рассылается клиентам
type CompetitionState struct {
	Competition
	CompetitionFinished bool `json:"competition_finished,omitempty"`
}

// Snapshot копирует соревнование в снимок состояния
func (c *Competition) Snapshot() *CompetitionState {
	return &CompetitionState{Competition: *c}
}
