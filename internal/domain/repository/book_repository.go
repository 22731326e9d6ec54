package repository

import (
	"context"

	"w4u-wizard-api/internal/domain/entity"
)

// BookRepository 书籍仓储接口
type BookRepository interface {
	// GetByID 根据 ID 获取书籍，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Book, error)

	// SoftDelete 将属于 userID 的书籍标记为 deleted，返回是否命中
	SoftDelete(ctx context.Context, id, userID string) (bool, error)
}
