package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acadhub/curricula-api/internal/models"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ApprovalQueueCache keeps per-department pending queues in Redis for a
// short TTL. Workflow mutations in a department invalidate its key, so
// staleness is bounded by the TTL.
type ApprovalQueueCache struct {
	cache  cacheStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewApprovalQueueCache builds the cache wrapper.
func NewApprovalQueueCache(cache cacheStore, ttl time.Duration, logger *zap.Logger) *ApprovalQueueCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ApprovalQueueCache{cache: cache, ttl: ttl, logger: logger}
}

// Get reports whether a fresh queue was found for the department.
func (c *ApprovalQueueCache) Get(ctx context.Context, kind models.EntityKind, department string, dest interface{}) bool {
	err := c.cache.Get(ctx, c.key(kind, department), dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		c.logger.Warn("approval queue cache read failed", zap.Error(err))
	}
	return false
}

// Set stores the queue; failures are logged and ignored.
func (c *ApprovalQueueCache) Set(ctx context.Context, kind models.EntityKind, department string, value interface{}) {
	if err := c.cache.Set(ctx, c.key(kind, department), value, c.ttl); err != nil {
		c.logger.Warn("approval queue cache write failed", zap.Error(err))
	}
}

// Invalidate drops the department's cached queue for the given kind.
func (c *ApprovalQueueCache) Invalidate(ctx context.Context, kind models.EntityKind, department string) {
	if err := c.cache.Delete(ctx, c.key(kind, department)); err != nil {
		c.logger.Warn("approval queue cache invalidation failed", zap.Error(err))
	}
}

func (c *ApprovalQueueCache) key(kind models.EntityKind, department string) string {
	return fmt.Sprintf("approvals:pending:%s:%s", kind, department)
}
