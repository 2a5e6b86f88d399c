package errors

import (
	"errors"
	"fmt"
)

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок авторизации (неверный токен, нет прав).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда у пользователя недостаточно прав для действия.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния (например, устаревший индекс задачи
	// или попытка продвинуть уже завершенное соревнование).
	ErrConflict = errors.New("resource state conflict")
)

// Доменные ошибки соревнований. Оборачивают общие, чтобы errors.Is работал в обработчиках.
var (
	// ErrEmptyProblemSet возвращается при старте соревнования без задач.
	ErrEmptyProblemSet = fmt.Errorf("%w: competition has no problems", ErrValidation)

	// ErrCompetitionNotFound возвращается, когда соревнование отсутствует в хранилище.
	ErrCompetitionNotFound = fmt.Errorf("%w: competition", ErrNotFound)
)
