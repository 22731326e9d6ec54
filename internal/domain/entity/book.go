// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// BookStatus 书籍向导阶段
type BookStatus string

const (
	BookStatusInterview     BookStatus = "INTERVIEW"
	BookStatusConfiguration BookStatus = "CONFIGURATION"
	BookStatusBlueprint     BookStatus = "BLUEPRINT"
	BookStatusProduction    BookStatus = "PRODUCTION"
	BookStatusEditor        BookStatus = "EDITOR"
	BookStatusExport        BookStatus = "EXPORT"
	// BookStatusDeleted 软删除标记
	BookStatusDeleted BookStatus = "deleted"
)

// Book 书籍实体
type Book struct {
	ID          string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID      string         `json:"user_id" gorm:"type:uuid;index;not null"`
	Title       string         `json:"title" gorm:"type:text"`
	Author      string         `json:"author" gorm:"type:text"`
	Status      BookStatus     `json:"status" gorm:"type:varchar(32);default:'INTERVIEW'"`
	ContextData datatypes.JSON `json:"context_data,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Book) TableName() string {
	return "books"
}

// IsDeleted 是否已软删除
func (b *Book) IsDeleted() bool {
	return b.Status == BookStatusDeleted
}

// OwnedBy 检查书籍归属
func (b *Book) OwnedBy(userID string) bool {
	return userID != "" && b.UserID == userID
}

// ContextString 读取 context_data 顶层字符串字段，缺失或类型不符时返回空串
func (b *Book) ContextString(key string) string {
	if len(b.ContextData) == 0 {
		return ""
	}
	var bag map[string]any
	if err := json.Unmarshal(b.ContextData, &bag); err != nil {
		return ""
	}
	s, _ := bag[key].(string)
	return strings.TrimSpace(s)
}
