package competitionmanager

import (
	"context"
	"log"
	"time"

	"github.com/yourusername/polegion-api/internal/domain/repository"
)

// AutoAdvancer периодически продвигает соревнования с истекшим таймером
type AutoAdvancer struct {
	sm       *StateMachine
	repo     repository.CompetitionRepository
	interval time.Duration
}

// NewAutoAdvancer создает поллер автопродвижения
func NewAutoAdvancer(sm *StateMachine, repo repository.CompetitionRepository, interval time.Duration) *AutoAdvancer {
	return &AutoAdvancer{sm: sm, repo: repo, interval: interval}
}

// Start запускает поллер в отдельной горутине до отмены ctx
func (a *AutoAdvancer) Start(ctx context.Context) {
	if a.interval <= 0 {
		log.Println("[AutoAdvancer] Disabled (interval <= 0)")
		return
	}

	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		log.Printf("[AutoAdvancer] Started with interval %v", a.interval)

		for {
			select {
			case <-ctx.Done():
				log.Println("[AutoAdvancer] Stopped")
				return
			case <-ticker.C:
				a.Tick(ctx)
			}
		}
	}()
}

// Tick продвигает все истекшие соревнования и возвращает число реально продвинутых
func (a *AutoAdvancer) Tick(ctx context.Context) int {
	expired, err := a.repo.ListExpired(ctx, a.sm.now())
	if err != nil {
		log.Printf("[AutoAdvancer] Failed to list expired competitions: %v", err)
		return 0
	}

	advanced := 0
	for _, c := range expired {
		if ctx.Err() != nil {
			break
		}
		state, err := a.sm.AutoAdvanceFrom(ctx, c.ID, c.ProblemIndex())
		if err != nil {
			log.Printf("[AutoAdvancer] Failed to advance competition #%d: %v", c.ID, err)
			continue
		}
		if state != nil {
			advanced++
		}
	}
	return advanced
}
