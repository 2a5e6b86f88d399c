package competitionmanager

import (
	"time"

	"github.com/yourusername/polegion-api/internal/domain/entity"
)

// timerEnd вычисляет timer_end_at = start + duration
func timerEnd(start time.Time, durationSec int) time.Time {
	return start.Add(time.Duration(durationSec) * time.Second)
}

// remainingSeconds замораживает таймер: duration минус целые прошедшие секунды, не меньше нуля.
// Возвращает nil, если таймер не запущен.
func remainingSeconds(c *entity.Competition, now time.Time) *int {
	if !c.HasRunningTimer() {
		return nil
	}
	elapsed := int(now.Sub(*c.TimerStartedAt).Milliseconds() / 1000)
	remaining := *c.TimerDuration - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// timerExpired сообщает, истек ли таймер к моменту now.
// Соревнование без таймера не запущено до конца и истекшим не считается.
func timerExpired(c *entity.Competition, now time.Time) bool {
	if c.TimerEndAt == nil {
		return false
	}
	return !now.Before(*c.TimerEndAt)
}
