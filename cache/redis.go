package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"tick-monitor/config"
	"tick-monitor/monitoring"
)

const redisKeyPrefix = "api:"

// RedisCache хранит ответы API в Redis с TTL на каждом ключе.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *monitoring.StructuredLogger
}

// NewRedis подключается к Redis и проверяет соединение.
func NewRedis(cfg config.Redis) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logger := monitoring.GetLogger("cache")
	logger.Info("redis cache connected", "addr", cfg.Addr, "db", cfg.DB)

	return &RedisCache{
		client: client,
		prefix: redisKeyPrefix,
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
		logger: logger,
	}, nil
}

// Get получает ответ из кэша. Любая ошибка Redis считается промахом,
// запрос продолжает работу без кэша.
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := rc.client.Get(ctx, rc.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			rc.logger.Warn("ошибка чтения из redis", "key", key, "error", err.Error())
		}
		monitoring.IncrementCacheMisses()
		return nil, false
	}

	monitoring.IncrementCacheHits()
	return data, true
}

// Set сохраняет ответ в кэш. Ошибка записи не мешает отдать ответ,
// поэтому только логируется.
func (rc *RedisCache) Set(ctx context.Context, key string, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rc.client.Set(ctx, rc.prefix+key, data, rc.ttl).Err(); err != nil {
		rc.logger.Warn("ошибка записи в redis", "key", key, "error", err.Error())
	}
}

// Clear удаляет все ответы с нашим префиксом, не трогая чужие ключи в
// той же базе.
func (rc *RedisCache) Clear(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	iter := rc.client.Scan(ctx, 0, rc.prefix+"*", 100).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			rc.logger.Warn("ошибка удаления ключа из redis", "key", iter.Val(), "error", err.Error())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		rc.logger.Warn("ошибка обхода ключей redis", "error", err.Error())
	}
	rc.logger.Info("redis cache cleared", "deleted", deleted)
}

// Close закрывает соединения
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
