package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/business-suite/pkg/logger"
	"example.com/business-suite/pkg/metrics"
)

// cacheKeyPrefix — префикс ключей идемпотентности в Redis.
const cacheKeyPrefix = "idempotency:"

// CachedStore — декоратор Store с read-through кэшем в Redis.
// Авторитетное хранилище остаётся durable Store; кэш лишь ускоряет
// повторные чтения. Любая ошибка Redis деградирует до чтения из
// durable Store и никогда не роняет запрос.
type CachedStore struct {
	inner Store
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedStore создаёт кэширующую обёртку над inner.
func NewCachedStore(inner Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
	}
}

// IsProcessed проверяет кэш, затем durable хранилище.
func (s *CachedStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	exists, err := s.rdb.Exists(ctx, cacheKeyPrefix+key).Result()
	if err == nil && exists > 0 {
		return true, nil
	}
	if err != nil {
		l := logger.FromContext(ctx)
		l.Warn().Err(err).Msg("Ошибка Redis при проверке ключа идемпотентности")
	}

	return s.inner.IsProcessed(ctx, key)
}

// GetResult читает результат из кэша, при промахе — из durable
// хранилища с обратным заполнением кэша.
func (s *CachedStore) GetResult(ctx context.Context, key string) ([]byte, bool, error) {
	cached, err := s.rdb.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err == nil {
		metrics.IdempotencyHits.WithLabelValues("cache").Inc()
		return cached, true, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		l := logger.FromContext(ctx)
		l.Warn().Err(err).Msg("Ошибка Redis при чтении ключа идемпотентности")
	}

	result, found, err := s.inner.GetResult(ctx, key)
	if err != nil || !found {
		return result, found, err
	}

	metrics.IdempotencyHits.WithLabelValues("store").Inc()
	s.backfill(ctx, key, result)
	return result, true, nil
}

// MarkProcessed пишет в durable хранилище, затем best-effort в кэш.
// Порядок важен: сначала фиксируем create-once в авторитетном
// хранилище, кэш заполняется только подтверждённым результатом.
func (s *CachedStore) MarkProcessed(ctx context.Context, key string, result []byte) error {
	if err := s.inner.MarkProcessed(ctx, key, result); err != nil {
		return err
	}

	s.backfill(ctx, key, result)
	return nil
}

// backfill кладёт результат в Redis. Ошибки только логируются.
func (s *CachedStore) backfill(ctx context.Context, key string, result []byte) {
	if err := s.rdb.Set(ctx, cacheKeyPrefix+key, result, s.ttl).Err(); err != nil {
		l := logger.FromContext(ctx)
		l.Warn().Err(err).Msg("Ошибка Redis при кэшировании результата")
	}
}
