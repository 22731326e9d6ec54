// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"w4u-wizard-api/internal/application/export"
	"w4u-wizard-api/internal/interfaces/http/dto"
	"w4u-wizard-api/pkg/logger"
)

// ExportHandler 文档导出处理器
type ExportHandler struct {
	svc *export.Service
}

// NewExportHandler 创建导出处理器
func NewExportHandler(svc *export.Service) *ExportHandler {
	return &ExportHandler{svc: svc}
}

// Export 返回指定格式的导出处理函数
// @Summary 导出书籍
// @Description 将书籍中已完成的章节组装为 EPUB / DOCX / PDF 并以附件形式下载
// @Tags Export
// @Accept json
// @Produce application/octet-stream
// @Param body body dto.ExportRequest true "书籍 ID"
// @Success 200 {file} binary
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /export/{format} [post]
func (h *ExportHandler) Export(format export.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var req dto.ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.BookID) == "" {
			dto.BadRequest(c, "bookId is required")
			return
		}

		artifact, err := h.svc.Export(ctx, strings.TrimSpace(req.BookID), format)
		if err != nil {
			dto.AppError(c, err)
			return
		}
		defer func() {
			if err := artifact.Cleanup(); err != nil {
				logger.Warn(ctx, "failed to remove export scratch file", "path", artifact.Path, "error", err.Error())
			}
		}()

		f, err := os.Open(artifact.Path)
		if err != nil {
			logger.Error(ctx, "failed to open export artifact", err, "path", artifact.Path)
			dto.InternalError(c, "Failed to generate "+format.Label())
			return
		}
		defer f.Close()

		c.DataFromReader(http.StatusOK, artifact.Size, artifact.ContentType, f, map[string]string{
			"Content-Disposition": export.ContentDisposition(artifact.Filename),
			"Cache-Control":       "no-store",
			"X-Chapter-Count":     strconv.Itoa(artifact.Chapters),
		})
	}
}
