package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"w4u-wizard-api/internal/domain/entity"
	"w4u-wizard-api/pkg/logger"
)

// JobSnapshotCache 缓存终态 AI 任务快照
// 只有 completed/failed 会被写入：终态不可变，缓存无需失效
type JobSnapshotCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewJobSnapshotCache 创建任务快照缓存
func NewJobSnapshotCache(cache *Cache, ttl time.Duration) *JobSnapshotCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JobSnapshotCache{cache: cache, ttl: ttl}
}

// BuildJobSnapshotKey 构建任务快照键
func BuildJobSnapshotKey(jobID string) string {
	return fmt.Sprintf("ai_request:%s", jobID)
}

// GetOrLoad 读取快照，未命中时调用 load；Redis 故障时直接回源
func (s *JobSnapshotCache) GetOrLoad(ctx context.Context, jobID string, load func(ctx context.Context) (*entity.AIRequest, error)) (*entity.AIRequest, error) {
	var loadErr error
	raw, err := s.cache.GetOrLoadSafe(ctx, BuildJobSnapshotKey(jobID), s.ttl, func(ctx context.Context) (any, bool, error) {
		req, err := load(ctx)
		if err != nil {
			loadErr = err
			return nil, false, err
		}
		return req, req != nil && req.Status.IsTerminal(), nil
	})
	if loadErr != nil {
		return nil, loadErr
	}
	if err != nil {
		logger.Warn(ctx, "job snapshot cache unavailable, falling back to database", "error", err.Error())
		return load(ctx)
	}

	var req *entity.AIRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("failed to decode job snapshot: %w", err)
	}
	return req, nil
}
