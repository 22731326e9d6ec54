// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Message 消息结构
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	UserID    string            `json:"user_id"`
	BookID    string            `json:"book_id,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`

	// Deliveries 消费端填写的投递次数，不参与序列化；进程内队列为 0
	Deliveries int `json:"-"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType, userID, bookID string, payload any) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        id,
		Type:      msgType,
		UserID:    userID,
		BookID:    bookID,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// GetMetadata 获取元数据
func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// Redelivered 消息是否由其他消费者接管后再次投递
func (m *Message) Redelivered() bool {
	return m.Deliveries > 1
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流定义
type Stream string

const (
	StreamAIForward Stream = "stream:ai:forward"
)

// DLQStream 获取对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组定义
type ConsumerGroup string

const (
	ConsumerGroupForwarder ConsumerGroup = "cg-ai-forwarder"
)

// 消息类型
const (
	TypeAIForward = "ai.forward"
)

// ForwardMessage AI 任务转发消息载荷，只携带任务 ID，请求体从任务记录读取
type ForwardMessage struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
	Action string `json:"action"`
}

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher 消息发布接口
type Publisher interface {
	Publish(ctx context.Context, stream Stream, msg *Message) (string, error)
}

// Subscriber 消息订阅接口
type Subscriber interface {
	RegisterHandler(msgType string, handler MessageHandler)
	Start(ctx context.Context) error
	Stop()
}

var (
	// ErrQueueClosed 队列已关闭
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueFull 队列已满
	ErrQueueFull = errors.New("queue full")
)
