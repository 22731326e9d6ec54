package aiagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"w4u-wizard-api/internal/domain/entity"
	"w4u-wizard-api/internal/domain/repository"
	"w4u-wizard-api/internal/infrastructure/messaging"
	"w4u-wizard-api/pkg/logger"
	"w4u-wizard-api/pkg/metrics"
)

// maxErrorMessage error_message 写入上限
const maxErrorMessage = 2000

// ErrWorkerLost 任务停留在 processing 时原消费者已失联，消息被接管后以此失败
var ErrWorkerLost = errors.New("worker lost before completing the request")

// WebhookPoster 工作流 webhook 客户端
type WebhookPoster interface {
	Post(ctx context.Context, action string, body any) (json.RawMessage, error)
}

// Forwarder 消费转发消息，调用 webhook 并记录结果
type Forwarder struct {
	jobs    repository.AIRequestRepository
	webhook WebhookPoster
}

// NewForwarder 创建转发器
func NewForwarder(jobs repository.AIRequestRepository, webhook WebhookPoster) *Forwarder {
	return &Forwarder{jobs: jobs, webhook: webhook}
}

// Register 将处理函数注册到订阅者
func (f *Forwarder) Register(sub messaging.Subscriber) {
	sub.RegisterHandler(messaging.TypeAIForward, f.Handle)
}

// Handle 消息处理入口；失败写入任务记录，不返回给队列重试
func (f *Forwarder) Handle(ctx context.Context, msg *messaging.Message) error {
	var fwd messaging.ForwardMessage
	if err := msg.UnmarshalPayload(&fwd); err != nil || fwd.JobID == "" {
		logger.Warn(ctx, "dropping malformed forward message", "message_id", msg.ID)
		return nil
	}
	f.forward(ctx, fwd.JobID, msg.Redelivered())
	return nil
}

// Forward pending → processing → completed/failed
// pending → processing 的条件更新保证同一任务最多转发一次
func (f *Forwarder) Forward(ctx context.Context, jobID string) {
	f.forward(ctx, jobID, false)
}

func (f *Forwarder) forward(ctx context.Context, jobID string, redelivered bool) {
	ctx = logger.WithContext(ctx, logger.JobIDKey, jobID)
	ctx, span := tracer.Start(ctx, "aiagent.Forward",
		trace.WithAttributes(attribute.String("ai.job_id", jobID)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Error(ctx, "ai forward panicked", err)
			f.fail(ctx, jobID, "unknown", err)
		}
	}()

	if err := f.jobs.Transition(ctx, jobID, entity.Transition{To: entity.AIRequestStatusProcessing}); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			if redelivered {
				f.failLost(ctx, jobID)
				return
			}
			logger.Info(ctx, "ai request already picked up, skipping")
			return
		}
		logger.Error(ctx, "failed to mark ai request as processing", err)
		f.fail(ctx, jobID, "unknown", fmt.Errorf("failed to start request: %w", err))
		return
	}

	job, err := f.jobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		if err == nil {
			err = errors.New("ai request disappeared")
		}
		f.fail(ctx, jobID, "unknown", err)
		return
	}
	span.SetAttributes(attribute.String("ai.action", job.Action))

	req, err := DecodeAction(job.RequestPayload)
	if err != nil {
		f.fail(ctx, jobID, job.Action, fmt.Errorf("stored payload rejected: %w", err))
		return
	}

	resp, err := f.webhook.Post(ctx, job.Action, req.Stamp(job.UserID, job.ID))
	if err != nil {
		span.RecordError(err)
		f.fail(ctx, jobID, job.Action, err)
		return
	}

	err = f.jobs.Transition(ctx, jobID, entity.Transition{
		To:           entity.AIRequestStatusCompleted,
		ResponseData: resp,
	})
	if err != nil {
		logger.Error(ctx, "failed to store ai response", err)
		f.fail(ctx, jobID, job.Action, fmt.Errorf("failed to store response: %w", err))
		return
	}

	metrics.AIJobTotal.WithLabelValues(job.Action, string(entity.AIRequestStatusCompleted)).Inc()
	logger.Info(ctx, "ai request completed", "action", job.Action, "response_bytes", len(resp))
}

// failLost 接管的消息对应任务仍为 processing：原消费者在转发中途退出，结果已无从得知
func (f *Forwarder) failLost(ctx context.Context, jobID string) {
	job, err := f.jobs.GetByID(ctx, jobID)
	if err != nil {
		logger.Error(ctx, "failed to load redelivered ai request", err)
		return
	}
	if job == nil || job.Status != entity.AIRequestStatusProcessing {
		logger.Info(ctx, "redelivered ai request already settled, skipping")
		return
	}
	f.fail(ctx, jobID, job.Action, ErrWorkerLost)
}

func (f *Forwarder) fail(ctx context.Context, jobID, action string, cause error) {
	msg := cause.Error()
	if len(msg) > maxErrorMessage {
		msg = strings.ToValidUTF8(msg[:maxErrorMessage], "")
	}
	logger.Warn(ctx, "ai request failed", "action", action, "error", msg)

	err := f.jobs.Transition(ctx, jobID, entity.Transition{
		To:           entity.AIRequestStatusFailed,
		ErrorMessage: msg,
	})
	if err != nil && !errors.Is(err, repository.ErrInvalidTransition) {
		logger.Error(ctx, "failed to mark ai request as failed", err)
	}
	metrics.AIJobTotal.WithLabelValues(action, string(entity.AIRequestStatusFailed)).Inc()
}
