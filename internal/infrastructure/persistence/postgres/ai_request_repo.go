package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"w4u-wizard-api/internal/domain/entity"
	"w4u-wizard-api/internal/domain/repository"
)

// AIRequestRepository AI 任务仓储实现
type AIRequestRepository struct {
	client *Client
}

// NewAIRequestRepository 创建 AI 任务仓储
func NewAIRequestRepository(client *Client) *AIRequestRepository {
	return &AIRequestRepository{client: client}
}

// Create 创建任务
func (r *AIRequestRepository) Create(ctx context.Context, req *entity.AIRequest) error {
	ctx, span := tracer.Start(ctx, "postgres.AIRequestRepository.Create")
	span.SetAttributes(attribute.String("ai_request.action", req.Action))
	defer span.End()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	db := r.client.db.WithContext(ctx)
	// book_id 为可空 uuid 列，空串需省略
	if req.BookID == "" {
		db = db.Omit("book_id")
	}
	if err := db.Create(req).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create ai request: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *AIRequestRepository) GetByID(ctx context.Context, id string) (*entity.AIRequest, error) {
	ctx, span := tracer.Start(ctx, "postgres.AIRequestRepository.GetByID")
	span.SetAttributes(attribute.String("ai_request.id", id))
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	db := r.client.db.WithContext(ctx)
	var req entity.AIRequest
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get ai request: %w", err)
	}
	return &req, nil
}

// Transition 条件迁移任务状态
// WHERE status IN (来源状态) 保证终态不可变，重复投递的消息也只会生效一次
func (r *AIRequestRepository) Transition(ctx context.Context, id string, t entity.Transition) error {
	ctx, span := tracer.Start(ctx, "postgres.AIRequestRepository.Transition")
	span.SetAttributes(
		attribute.String("ai_request.id", id),
		attribute.String("ai_request.to", string(t.To)),
	)
	defer span.End()

	sources := entity.TransitionSources(t.To)
	if len(sources) == 0 {
		return repository.ErrInvalidTransition
	}

	updates := map[string]any{
		"status":     t.To,
		"updated_at": time.Now(),
	}
	if t.ResponseData != nil {
		updates["response_data"] = datatypes.JSON(t.ResponseData)
	}
	if t.ErrorMessage != "" {
		updates["error_message"] = t.ErrorMessage
	}

	db := r.client.db.WithContext(ctx)
	result := db.Model(&entity.AIRequest{}).
		Where("id = ? AND status IN ?", id, sources).
		Updates(updates)
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to transition ai request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrInvalidTransition
	}
	return nil
}
