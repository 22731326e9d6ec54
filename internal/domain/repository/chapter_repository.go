package repository

import (
	"context"

	"w4u-wizard-api/internal/domain/entity"
)

// ChapterRepository 章节仓储接口
type ChapterRepository interface {
	// ListCompletedByBook 获取书籍中状态为 COMPLETED 的章节，按 chapter_number 升序
	ListCompletedByBook(ctx context.Context, bookID string) ([]*entity.Chapter, error)
}

// ParagraphRepository 段落仓储接口
type ParagraphRepository interface {
	// ListByChapters 批量获取段落，按章节 ID 分组，组内按 paragraph_number 升序
	ListByChapters(ctx context.Context, chapterIDs []string) (map[string][]*entity.Paragraph, error)
}
