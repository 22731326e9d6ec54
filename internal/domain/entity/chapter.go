package entity

import (
	"strings"
	"time"
)

// ChapterStatus 章节状态
type ChapterStatus string

const (
	ChapterStatusPending    ChapterStatus = "PENDING"
	ChapterStatusGenerating ChapterStatus = "GENERATING"
	ChapterStatusCompleted  ChapterStatus = "COMPLETED"
	ChapterStatusError      ChapterStatus = "ERROR"
)

// Chapter 章节实体，content 为 Markdown，生成前为空
type Chapter struct {
	ID            string        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BookID        string        `json:"book_id" gorm:"type:uuid;index;not null"`
	ChapterNumber int           `json:"chapter_number" gorm:"not null"`
	Title         string        `json:"title" gorm:"type:text"`
	Content       *string       `json:"content,omitempty" gorm:"type:text"`
	Status        ChapterStatus `json:"status" gorm:"type:varchar(32);default:'PENDING'"`
	CreatedAt     time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Chapter) TableName() string {
	return "chapters"
}

// IsCompleted 是否参与导出
func (c *Chapter) IsCompleted() bool {
	return c.Status == ChapterStatusCompleted
}

// Body 返回章节正文，未生成时返回空串
func (c *Chapter) Body() string {
	if c.Content == nil {
		return ""
	}
	return *c.Content
}

// HasBody 正文是否非空白
func (c *Chapter) HasBody() bool {
	return strings.TrimSpace(c.Body()) != ""
}

// SetBody 设置正文
func (c *Chapter) SetBody(s string) {
	c.Content = &s
}
