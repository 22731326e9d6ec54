package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"w4u-wizard-api/internal/domain/repository"
	"w4u-wizard-api/internal/interfaces/http/dto"
	"w4u-wizard-api/pkg/errors"
	"w4u-wizard-api/pkg/logger"
)

// ProjectHandler 项目处理器
type ProjectHandler struct {
	books repository.BookRepository
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(books repository.BookRepository) *ProjectHandler {
	return &ProjectHandler{books: books}
}

// DeleteProject 软删除项目
// @Summary 删除项目
// @Description 将书籍状态置为 deleted，仅所有者可操作，他人项目按不存在处理
// @Tags Projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.DeleteProjectRequest true "项目 ID"
// @Success 200 {object} dto.DeleteProjectResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/projects/delete [post]
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.DeleteProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		dto.BadRequest(c, "id is required")
		return
	}
	id := strings.TrimSpace(req.ID)
	ctx = logger.WithContext(ctx, logger.BookIDKey, id)

	ok, err := h.books.SoftDelete(ctx, id, dto.CurrentUserID(c))
	if err != nil {
		c.Request = c.Request.WithContext(ctx)
		dto.AppError(c, errors.Wrap(err, errors.CodeDatabaseError, "failed to delete project"))
		return
	}
	if !ok {
		dto.AppError(c, errors.ErrProjectNotFound)
		return
	}

	logger.Info(ctx, "project deleted")
	dto.OK(c, dto.DeleteProjectResponse{Success: true})
}
