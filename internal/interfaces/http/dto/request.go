package dto

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ExportRequest 导出请求
type ExportRequest struct {
	BookID string `json:"bookId" binding:"required"`
}

// SanitizeRequest 文本清洗请求，method 为空时走默认流程
type SanitizeRequest struct {
	Text   string `json:"text"`
	Method string `json:"method"`
}

// DeleteProjectRequest 项目删除请求
type DeleteProjectRequest struct {
	ID string `json:"id" binding:"required"`
}

// BindRequestID 从 URI 绑定 AI 任务 ID
func BindRequestID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("requestId"))
}

// CurrentUserID 返回认证中间件注入的用户 ID
func CurrentUserID(c *gin.Context) string {
	return c.GetString("user_id")
}
