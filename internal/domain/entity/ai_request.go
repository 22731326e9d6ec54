package entity

import (
	"time"

	"gorm.io/datatypes"
)

// AIRequestStatus AI 任务状态
type AIRequestStatus string

const (
	AIRequestStatusPending    AIRequestStatus = "pending"
	AIRequestStatusProcessing AIRequestStatus = "processing"
	AIRequestStatusCompleted  AIRequestStatus = "completed"
	AIRequestStatusFailed     AIRequestStatus = "failed"
)

// IsTerminal 是否为终态，终态不可再变更
func (s AIRequestStatus) IsTerminal() bool {
	return s == AIRequestStatusCompleted || s == AIRequestStatusFailed
}

// transitionSources 每个目标状态允许的来源状态
var transitionSources = map[AIRequestStatus][]AIRequestStatus{
	AIRequestStatusProcessing: {AIRequestStatusPending},
	AIRequestStatusCompleted:  {AIRequestStatusProcessing},
	AIRequestStatusFailed:     {AIRequestStatusPending, AIRequestStatusProcessing},
}

// TransitionSources 返回可以迁移到 to 的来源状态，无合法来源时返回 nil
func TransitionSources(to AIRequestStatus) []AIRequestStatus {
	return transitionSources[to]
}

// CanTransitionTo 检查状态迁移是否合法
func (s AIRequestStatus) CanTransitionTo(to AIRequestStatus) bool {
	for _, from := range transitionSources[to] {
		if from == s {
			return true
		}
	}
	return false
}

// AIRequest 异步 AI 任务记录 (ai_requests)
type AIRequest struct {
	ID             string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID         string          `json:"user_id" gorm:"type:uuid;index;not null"`
	BookID         string          `json:"book_id,omitempty" gorm:"type:uuid;index"`
	Action         string          `json:"action" gorm:"type:varchar(64);not null"`
	Status         AIRequestStatus `json:"status" gorm:"type:varchar(32);default:'pending'"`
	RequestPayload datatypes.JSON  `json:"request_payload,omitempty" gorm:"type:jsonb"`
	ResponseData   datatypes.JSON  `json:"response_data,omitempty" gorm:"type:jsonb"`
	ErrorMessage   string          `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (AIRequest) TableName() string {
	return "ai_requests"
}

// NewAIRequest 创建待处理任务
func NewAIRequest(userID, bookID, action string, payload []byte) *AIRequest {
	return &AIRequest{
		UserID:         userID,
		BookID:         bookID,
		Action:         action,
		Status:         AIRequestStatusPending,
		RequestPayload: datatypes.JSON(payload),
	}
}

// OwnedBy 检查任务归属
func (r *AIRequest) OwnedBy(userID string) bool {
	return userID != "" && r.UserID == userID
}

// Transition 描述一次状态迁移写入的字段
type Transition struct {
	To           AIRequestStatus
	ResponseData []byte
	ErrorMessage string
}

// Apply 在内存中应用迁移，非法迁移返回 false 且不修改任务
func (r *AIRequest) Apply(t Transition, now time.Time) bool {
	if !r.Status.CanTransitionTo(t.To) {
		return false
	}
	r.Status = t.To
	if t.ResponseData != nil {
		r.ResponseData = datatypes.JSON(t.ResponseData)
	}
	if t.ErrorMessage != "" {
		r.ErrorMessage = t.ErrorMessage
	}
	r.UpdatedAt = now
	return true
}
