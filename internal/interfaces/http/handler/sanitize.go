package handler

import (
	"github.com/gin-gonic/gin"

	"w4u-wizard-api/internal/application/editorial"
	"w4u-wizard-api/internal/interfaces/http/dto"
)

// SanitizeHandler 文本清洗处理器
type SanitizeHandler struct {
	locale *editorial.Locale
}

// NewSanitizeHandler 创建清洗处理器，language 决定章节标签与小词表
func NewSanitizeHandler(language string) *SanitizeHandler {
	return &SanitizeHandler{locale: editorial.LocaleFor(language)}
}

// Sanitize 清洗文本
// @Summary 文本清洗
// @Description method: chapter_title | editorial | default
// @Tags Editorial
// @Accept json
// @Produce json
// @Param body body dto.SanitizeRequest true "待清洗文本"
// @Success 200 {object} dto.SanitizeResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/sanitize [post]
func (h *SanitizeHandler) Sanitize(c *gin.Context) {
	var req dto.SanitizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	dto.OK(c, dto.SanitizeResponse{
		Text: h.locale.Sanitize(editorial.Method(req.Method), req.Text),
	})
}
