// Package cache хранит готовые ответы API между запусками конвейера.
// Основной бэкенд Redis, при его недоступности работа продолжается на
// потокобезопасном кэше в памяти.
package cache

import (
	"context"
	"sync"
	"time"

	"tick-monitor/config"
	"tick-monitor/monitoring"
)

// Backend — хранилище закэшированных ответов. Clear вызывается после
// каждого успешного запуска конвейера, чтобы читатели видели свежие
// данные.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
	Clear(ctx context.Context)
	Close() error
}

// New выбирает бэкенд по конфигурации: включенный Redis при удачном
// подключении, иначе кэш в памяти с фоновой очисткой.
func New(cfg config.Redis, redisEnabled bool) Backend {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if redisEnabled {
		rc, err := NewRedis(cfg)
		if err == nil {
			return rc
		}
		monitoring.GetLogger("cache").Warn("redis недоступен, кэш работает в памяти",
			"addr", cfg.Addr, "error", err.Error())
	}
	mem := NewMemory(ttl)
	mem.StartCleanupWorker(5 * time.Minute)
	return mem
}

// Entry представляет элемент кэша в памяти
type Entry struct {
	Data       []byte
	Expiration time.Time
}

// Memory представляет thread-safe кэш ответов в памяти
type Memory struct {
	data      sync.Map
	ttl       time.Duration
	quit      chan struct{}
	closeOnce sync.Once
	logger    *monitoring.StructuredLogger
}

// NewMemory создает кэш в памяти с указанным TTL
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:    ttl,
		quit:   make(chan struct{}),
		logger: monitoring.GetLogger("cache"),
	}
}

// Set сохраняет ответ в кэше
func (c *Memory) Set(_ context.Context, key string, data []byte) {
	entry := Entry{
		Data:       data,
		Expiration: time.Now().Add(c.ttl),
	}
	c.data.Store(key, entry)
	c.logger.Debug("cache entry set", "key", key, "ttl", c.ttl)
}

// Get получает ответ из кэша
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	value, ok := c.data.Load(key)
	if !ok {
		monitoring.IncrementCacheMisses()
		return nil, false
	}

	entry := value.(Entry)
	if time.Now().After(entry.Expiration) {
		// Кэш истек, удаляем
		c.data.Delete(key)
		c.logger.Debug("cache entry expired", "key", key)
		monitoring.IncrementCacheMisses()
		return nil, false
	}

	monitoring.IncrementCacheHits()
	return entry.Data, true
}

// Delete удаляет ответ из кэша
func (c *Memory) Delete(key string) {
	c.data.Delete(key)
	c.logger.Debug("cache entry deleted", "key", key)
}

// Clear очищает весь кэш
func (c *Memory) Clear(_ context.Context) {
	c.data = sync.Map{}
	c.logger.Info("cache cleared")
}

// Size возвращает количество живых элементов в кэше
func (c *Memory) Size() int {
	count := 0
	c.data.Range(func(key, value interface{}) bool {
		entry := value.(Entry)
		if time.Now().After(entry.Expiration) {
			// Удаляем просроченные записи при подсчете
			c.data.Delete(key)
		} else {
			count++
		}
		return true
	})
	return count
}

// Cleanup удаляет просроченные записи
func (c *Memory) Cleanup() {
	c.data.Range(func(key, value interface{}) bool {
		entry := value.(Entry)
		if time.Now().After(entry.Expiration) {
			c.data.Delete(key)
			c.logger.Debug("expired cache entry cleaned up", "key", key.(string))
		}
		return true
	})
}

// StartCleanupWorker запускает фоновую очистку кэша, живущую до Close
func (c *Memory) StartCleanupWorker(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Cleanup()
			case <-c.quit:
				return
			}
		}
	}()
	c.logger.Info("cache cleanup worker started", "interval", interval)
}

// Close останавливает фоновую очистку
func (c *Memory) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	return nil
}
