package competitionmanager

import (
	"context"
	"time"

	"github.com/yourusername/polegion-api/internal/domain/repository"
)

// Constants for default values
const (
	DefaultTimerSec           = 30
	DefaultAutoAdvanceSeconds = 2
)

// EventCompetitionUpdate - имя события, которым рассылаются снимки состояния
const EventCompetitionUpdate = "competition_update"

// Config содержит настройки state machine и поллера автопродвижения
type Config struct {
	DefaultTimerSec     int           // Таймер задачи, если у CompetitionProblem он не задан
	AutoAdvanceInterval time.Duration // Период опроса истекших таймеров, <= 0 отключает поллер
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		DefaultTimerSec:     DefaultTimerSec,
		AutoAdvanceInterval: DefaultAutoAdvanceSeconds * time.Second,
	}
}

// Broadcaster публикует событие в топик соревнования.
// Реализуется websocket.Manager.
type Broadcaster interface {
	Broadcast(ctx context.Context, topic, event string, payload interface{}) error
}

// Dependencies содержит зависимости для StateMachine
type Dependencies struct {
	CompetitionRepo repository.CompetitionRepository
	ProblemRepo     repository.CompetitionProblemRepository
	Broadcaster     Broadcaster
	Config          *Config
	Now             func() time.Time // nil означает time.Now
}
