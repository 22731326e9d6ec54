package dto

import (
	"encoding/json"
	"time"

	"w4u-wizard-api/internal/domain/entity"
)

// AIAgentAcceptedResponse 任务受理响应
type AIAgentAcceptedResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId"`
}

// JobStatusResponse 任务状态快照，data 与 error 未产生时为 null
type JobStatusResponse struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ToJobStatusResponse 转换任务实体
func ToJobStatusResponse(job *entity.AIRequest) *JobStatusResponse {
	resp := &JobStatusResponse{
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if len(job.ResponseData) > 0 {
		resp.Data = json.RawMessage(job.ResponseData)
	}
	if job.ErrorMessage != "" {
		msg := job.ErrorMessage
		resp.Error = &msg
	}
	return resp
}

// SanitizeResponse 文本清洗响应
type SanitizeResponse struct {
	Text string `json:"text"`
}

// DeleteProjectResponse 项目删除响应
type DeleteProjectResponse struct {
	Success bool `json:"success"`
}
