package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"recon-rules/internal/config"
	"recon-rules/internal/models"
	"recon-rules/internal/repository"
)

const referentialKey = "ref:catalogs"

// OperationRecorder counts cache operations for the metrics exporter. A nil
// recorder disables counting.
type OperationRecorder interface {
	RecordCacheOperation(operation, result string)
}

// ReferentialCache caches the referential catalogs in Redis in front of the
// repository. Catalogs change rarely relative to classification runs, so a
// short TTL keeps administrative edits visible without hammering the store.
type ReferentialCache struct {
	client   *redis.Client
	repo     *repository.ReferentialRepository
	ttl      time.Duration
	recorder OperationRecorder
	logger   *zap.Logger
}

// NewReferentialCache creates a new referential cache
func NewReferentialCache(
	client *redis.Client,
	repo *repository.ReferentialRepository,
	cfg *config.Config,
	recorder OperationRecorder,
	logger *zap.Logger,
) *ReferentialCache {
	return &ReferentialCache{
		client:   client,
		repo:     repo,
		ttl:      cfg.Redis.ReferentialTTL,
		recorder: recorder,
		logger:   logger,
	}
}

// Load returns the referential catalogs, serving from cache when possible.
// Cache failures degrade to a direct repository load, never to an error.
func (c *ReferentialCache) Load(ctx context.Context) (*models.Referentials, error) {
	data, err := c.client.Get(ctx, referentialKey).Result()
	if err == nil {
		var refs models.Referentials
		if err := json.Unmarshal([]byte(data), &refs); err == nil {
			c.record("get", "hit")
			c.logger.Debug("referential cache hit")
			return &refs, nil
		}
		c.record("get", "error")
		c.logger.Warn("failed to unmarshal cached referentials, reloading")
	} else if err == redis.Nil {
		c.record("get", "miss")
	} else {
		c.record("get", "error")
		c.logger.Warn("referential cache read failed", zap.Error(err))
	}

	refs, err := c.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load referentials: %w", err)
	}

	if payload, err := json.Marshal(refs); err == nil {
		if err := c.client.Set(ctx, referentialKey, payload, c.ttl).Err(); err != nil {
			c.record("set", "error")
			c.logger.Warn("failed to cache referentials", zap.Error(err))
		} else {
			c.record("set", "success")
		}
	}

	return refs, nil
}

// Invalidate drops the cached catalogs after an administrative edit
func (c *ReferentialCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, referentialKey).Err(); err != nil {
		c.record("del", "error")
		return fmt.Errorf("failed to invalidate referential cache: %w", err)
	}
	c.record("del", "success")
	return nil
}

// Ping checks Redis connectivity for health reporting
func (c *ReferentialCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ReferentialCache) record(operation, result string) {
	if c.recorder != nil {
		c.recorder.RecordCacheOperation(operation, result)
	}
}
