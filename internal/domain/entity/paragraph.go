package entity

import (
	"sort"
	"strings"
	"time"
)

// Paragraph 段落实体，部分流程按段落存储章节结构
type Paragraph struct {
	ID              string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChapterID       string    `json:"chapter_id" gorm:"type:uuid;index;not null"`
	ParagraphNumber int       `json:"paragraph_number" gorm:"not null"`
	Content         string    `json:"content" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Paragraph) TableName() string {
	return "paragraphs"
}

// JoinParagraphs 按 paragraph_number 升序以空行拼接段落，跳过空白段落
func JoinParagraphs(paragraphs []*Paragraph) string {
	sorted := make([]*Paragraph, len(paragraphs))
	copy(sorted, paragraphs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ParagraphNumber < sorted[j].ParagraphNumber
	})

	parts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		if s := strings.TrimSpace(p.Content); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
