package repository

import (
	"context"

	"w4u-wizard-api/internal/domain/entity"
)

// AIRequestRepository AI 任务仓储接口
type AIRequestRepository interface {
	// Create 创建任务，写回生成的 ID 与时间戳
	Create(ctx context.Context, req *entity.AIRequest) error

	// GetByID 根据 ID 获取任务，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.AIRequest, error)

	// Transition 条件迁移任务状态，仅当当前状态属于合法来源时写入；
	// 未命中时返回 ErrInvalidTransition
	Transition(ctx context.Context, id string, t entity.Transition) error
}
