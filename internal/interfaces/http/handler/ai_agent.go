package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"w4u-wizard-api/internal/application/aiagent"
	"w4u-wizard-api/internal/domain/entity"
	"w4u-wizard-api/internal/interfaces/http/dto"
)

// DefaultMaxBodyBytes AI 请求体默认上限
const DefaultMaxBodyBytes int64 = 1 << 20

// AIAgentHandler AI 任务代理处理器
type AIAgentHandler struct {
	svc          *aiagent.Service
	maxBodyBytes int64
}

// NewAIAgentHandler 创建 AI 任务处理器，maxBodyBytes<=0 时使用默认上限
func NewAIAgentHandler(svc *aiagent.Service, maxBodyBytes int64) *AIAgentHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &AIAgentHandler{svc: svc, maxBodyBytes: maxBodyBytes}
}

// Submit 提交 AI 动作
// @Summary 提交 AI 动作
// @Description 写入 pending 任务后立即返回任务 ID，转发到工作流在后台进行
// @Tags AIAgent
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 202 {object} dto.AIAgentAcceptedResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/ai-agent [post]
func (h *AIAgentHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			dto.Error(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		dto.BadRequest(c, "failed to read request body")
		return
	}

	req, err := aiagent.DecodeAction(body)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	job, err := h.svc.Submit(ctx, dto.CurrentUserID(c), req)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.AIAgentAcceptedResponse{
		Status:    string(entity.AIRequestStatusPending),
		RequestID: job.ID,
	})
}

// GetStatus 查询任务状态
// @Summary 查询 AI 任务状态
// @Description 仅任务所有者可见，其他用户的任务按不存在处理
// @Tags AIAgent
// @Produce json
// @Security BearerAuth
// @Param requestId path string true "任务 ID"
// @Success 200 {object} dto.JobStatusResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/ai-agent/status/{requestId} [get]
func (h *AIAgentHandler) GetStatus(c *gin.Context) {
	jobID := dto.BindRequestID(c)
	if jobID == "" {
		dto.NotFound(c, "not found")
		return
	}

	job, err := h.svc.GetStatus(c.Request.Context(), dto.CurrentUserID(c), jobID)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	dto.OK(c, dto.ToJobStatusResponse(job))
}
