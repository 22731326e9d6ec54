package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"w4u-wizard-api/internal/domain/entity"
)

// BookRepository 书籍仓储实现
type BookRepository struct {
	client *Client
}

// NewBookRepository 创建书籍仓储
func NewBookRepository(client *Client) *BookRepository {
	return &BookRepository{client: client}
}

// GetByID 根据 ID 获取书籍
func (r *BookRepository) GetByID(ctx context.Context, id string) (*entity.Book, error) {
	ctx, span := tracer.Start(ctx, "postgres.BookRepository.GetByID")
	span.SetAttributes(attribute.String("book.id", id))
	defer span.End()

	// 非法 UUID 视为不存在，避免数据库类型错误
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	db := r.client.db.WithContext(ctx)
	var book entity.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return &book, nil
}

// SoftDelete 软删除书籍
func (r *BookRepository) SoftDelete(ctx context.Context, id, userID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.BookRepository.SoftDelete")
	span.SetAttributes(attribute.String("book.id", id))
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	db := r.client.db.WithContext(ctx)
	result := db.Model(&entity.Book{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("status", entity.BookStatusDeleted)
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to delete book: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
