package memory

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	apperrors "github.com/yourusername/polegion-api/internal/pkg/errors"
)

type cacheItem struct {
	data      []byte
	expiresAt time.Time
}

// CacheRepo реализует repository.CacheRepository в памяти процесса.
// Значения хранятся сериализованными, чтобы вызывающий не мог изменить закешированный объект.
type CacheRepo struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	now   func() time.Time
}

// NewCacheRepo создает пустой in-memory кеш
func NewCacheRepo() *CacheRepo {
	return &CacheRepo{
		items: make(map[string]cacheItem),
		now:   time.Now,
	}
}

// SetJSON сохраняет значение с временем истечения
func (r *CacheRepo) SetJSON(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.items[key] = cacheItem{data: data, expiresAt: r.now().Add(expiration)}
	r.mu.Unlock()
	return nil
}

// GetJSON возвращает apperrors.ErrNotFound при промахе.
// Истекшая запись удаляется при чтении.
func (r *CacheRepo) GetJSON(_ context.Context, key string, dest interface{}) error {
	r.mu.RLock()
	item, ok := r.items[key]
	r.mu.RUnlock()
	if !ok {
		return apperrors.ErrNotFound
	}

	if !r.now().Before(item.expiresAt) {
		r.mu.Lock()
		// запись могли перезаписать между RUnlock и Lock
		if current, ok := r.items[key]; ok && !r.now().Before(current.expiresAt) {
			delete(r.items, key)
		}
		r.mu.Unlock()
		return apperrors.ErrNotFound
	}

	return json.Unmarshal(item.data, dest)
}

// Delete удаляет значение, отсутствие ключа не ошибка
func (r *CacheRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.items, key)
	r.mu.Unlock()
	return nil
}

// Len возвращает количество записей, включая еще не вычищенные истекшие
func (r *CacheRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// StartJanitor периодически удаляет истекшие записи, пока ctx не отменен
func (r *CacheRepo) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("[MemoryCache] Janitor stopped")
				return
			case <-ticker.C:
				if n := r.purgeExpired(); n > 0 {
					log.Printf("[MemoryCache] Purged %d expired entries", n)
				}
			}
		}
	}()
}

func (r *CacheRepo) purgeExpired() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for key, item := range r.items {
		if !now.Before(item.expiresAt) {
			delete(r.items, key)
			purged++
		}
	}
	return purged
}
