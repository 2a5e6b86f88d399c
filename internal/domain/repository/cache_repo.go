package repository

import (
	"context"
	"time"
)

// CacheRepository определяет методы для работы с кешем лидербордов.
// GetJSON возвращает apperrors.ErrNotFound при промахе или истекшем TTL.
type CacheRepository interface {
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
}
