package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"w4u-wizard-api/internal/domain/entity"
)

// ChapterRepository 章节仓储实现
type ChapterRepository struct {
	client *Client
}

// NewChapterRepository 创建章节仓储
func NewChapterRepository(client *Client) *ChapterRepository {
	return &ChapterRepository{client: client}
}

// ListCompletedByBook 获取已完成章节
func (r *ChapterRepository) ListCompletedByBook(ctx context.Context, bookID string) ([]*entity.Chapter, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChapterRepository.ListCompletedByBook")
	span.SetAttributes(attribute.String("book.id", bookID))
	defer span.End()

	if _, err := uuid.Parse(bookID); err != nil {
		return nil, nil
	}

	db := r.client.db.WithContext(ctx)
	var chapters []*entity.Chapter
	err := db.Where("book_id = ? AND status = ?", bookID, entity.ChapterStatusCompleted).
		Order("chapter_number ASC").
		Find(&chapters).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}

	span.SetAttributes(attribute.Int("chapter.count", len(chapters)))
	return chapters, nil
}

// ParagraphRepository 段落仓储实现
type ParagraphRepository struct {
	client *Client
}

// NewParagraphRepository 创建段落仓储
func NewParagraphRepository(client *Client) *ParagraphRepository {
	return &ParagraphRepository{client: client}
}

// ListByChapters 批量获取段落
func (r *ParagraphRepository) ListByChapters(ctx context.Context, chapterIDs []string) (map[string][]*entity.Paragraph, error) {
	ctx, span := tracer.Start(ctx, "postgres.ParagraphRepository.ListByChapters")
	span.SetAttributes(attribute.Int("chapter.count", len(chapterIDs)))
	defer span.End()

	out := make(map[string][]*entity.Paragraph, len(chapterIDs))
	if len(chapterIDs) == 0 {
		return out, nil
	}

	db := r.client.db.WithContext(ctx)
	var paragraphs []*entity.Paragraph
	err := db.Where("chapter_id = ANY(?)", pq.Array(chapterIDs)).
		Order("chapter_id, paragraph_number ASC").
		Find(&paragraphs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list paragraphs: %w", err)
	}

	for _, p := range paragraphs {
		out[p.ChapterID] = append(out[p.ChapterID], p)
	}
	return out, nil
}
