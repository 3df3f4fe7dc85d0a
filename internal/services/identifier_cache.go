package services

import (
	"context"
	"time"

	"chart_analyzer_go_backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DefaultIdentifierCache struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewIdentifierCacheDB(db *gorm.DB, timeout time.Duration) IdentifierCache {
	return &DefaultIdentifierCache{db: db, timeout: timeout}
}

func (c *DefaultIdentifierCache) Contains(ctx context.Context, externalID string) (bool, error) {
	ctx, cancel := withStoreTimeout(ctx, c.timeout)
	defer cancel()

	var count int64
	err := c.db.WithContext(ctx).Model(&models.CacheEntry{}).
		Where("external_id = ?", externalID).
		Count(&count).Error
	if err != nil {
		return false, storeError("lookup cache id", err)
	}
	return count > 0, nil
}

func (c *DefaultIdentifierCache) Insert(ctx context.Context, externalID string) error {
	if externalID == "" {
		return ErrInvalidExternalID
	}
	ctx, cancel := withStoreTimeout(ctx, c.timeout)
	defer cancel()

	entry := &models.CacheEntry{ExternalID: externalID}
	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error; err != nil {
		return storeError("insert cache id", err)
	}
	return nil
}

const redisCacheKey = "chart_analyzer:cache_ids"

// RedisIdentifierCache keeps the ids in one Redis set.
type RedisIdentifierCache struct {
	rdb     redis.Cmdable
	key     string
	timeout time.Duration
}

func NewRedisIdentifierCache(rdb redis.Cmdable, timeout time.Duration) IdentifierCache {
	return &RedisIdentifierCache{rdb: rdb, key: redisCacheKey, timeout: timeout}
}

func (c *RedisIdentifierCache) Contains(ctx context.Context, externalID string) (bool, error) {
	ctx, cancel := withStoreTimeout(ctx, c.timeout)
	defer cancel()

	ok, err := c.rdb.SIsMember(ctx, c.key, externalID).Result()
	if err != nil {
		return false, storeError("lookup cache id", err)
	}
	return ok, nil
}

func (c *RedisIdentifierCache) Insert(ctx context.Context, externalID string) error {
	if externalID == "" {
		return ErrInvalidExternalID
	}
	ctx, cancel := withStoreTimeout(ctx, c.timeout)
	defer cancel()

	// SADD returns 0 for a member that already exists, which is not an error.
	if err := c.rdb.SAdd(ctx, c.key, externalID).Err(); err != nil {
		return storeError("insert cache id", err)
	}
	return nil
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
