package aiagent

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"w4u-wizard-api/internal/domain/entity"
	"w4u-wizard-api/internal/domain/repository"
	"w4u-wizard-api/internal/infrastructure/messaging"
	apperrors "w4u-wizard-api/pkg/errors"
	"w4u-wizard-api/pkg/logger"
	"w4u-wizard-api/pkg/metrics"
)

var tracer = otel.Tracer("aiagent")

// SnapshotCache 终态任务快照缓存
type SnapshotCache interface {
	GetOrLoad(ctx context.Context, jobID string, load func(ctx context.Context) (*entity.AIRequest, error)) (*entity.AIRequest, error)
}

// Service AI 任务代理服务
type Service struct {
	jobs      repository.AIRequestRepository
	publisher messaging.Publisher
	snapshots SnapshotCache
}

// NewService 创建服务，snapshots 可为 nil
func NewService(jobs repository.AIRequestRepository, publisher messaging.Publisher, snapshots SnapshotCache) *Service {
	return &Service{
		jobs:      jobs,
		publisher: publisher,
		snapshots: snapshots,
	}
}

// Submit 写入 pending 任务并投递转发消息，立即返回任务
// 投递失败时任务被标记为 failed
func (s *Service) Submit(ctx context.Context, userID string, req *Request) (*entity.AIRequest, error) {
	ctx, span := tracer.Start(ctx, "aiagent.Submit",
		trace.WithAttributes(attribute.String("ai.action", string(req.Action))))
	defer span.End()

	payload, err := req.JSON()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to encode payload")
	}

	job := entity.NewAIRequest(userID, req.BookID(), string(req.Action), payload)
	if err := s.jobs.Create(ctx, job); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "failed to create ai request", err, "action", string(req.Action))
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create request")
	}

	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)
	span.SetAttributes(attribute.String("ai.job_id", job.ID))

	_, err = messaging.PublishForward(ctx, s.publisher, &messaging.ForwardMessage{
		JobID:  job.ID,
		UserID: userID,
		Action: string(req.Action),
	}, job.BookID)
	if err != nil {
		span.RecordError(err)
		logger.Error(ctx, "failed to enqueue ai request", err)
		s.markEnqueueFailed(ctx, job.ID, err)
		metrics.AIJobTotal.WithLabelValues(string(req.Action), "enqueue_failed").Inc()
		return nil, apperrors.ErrQueueFailed.WithError(err)
	}

	metrics.AIJobTotal.WithLabelValues(string(req.Action), "submitted").Inc()
	logger.Info(ctx, "ai request submitted", "action", string(req.Action))
	return job, nil
}

func (s *Service) markEnqueueFailed(ctx context.Context, jobID string, cause error) {
	err := s.jobs.Transition(ctx, jobID, entity.Transition{
		To:           entity.AIRequestStatusFailed,
		ErrorMessage: "failed to enqueue request: " + cause.Error(),
	})
	if err != nil && !errors.Is(err, repository.ErrInvalidTransition) {
		logger.Error(ctx, "failed to mark ai request as failed", err)
	}
}

// GetStatus 查询任务状态；不存在与不属于当前用户都返回 not found
func (s *Service) GetStatus(ctx context.Context, userID, jobID string) (*entity.AIRequest, error) {
	load := func(ctx context.Context) (*entity.AIRequest, error) {
		return s.jobs.GetByID(ctx, jobID)
	}

	var (
		job *entity.AIRequest
		err error
	)
	if s.snapshots != nil {
		job, err = s.snapshots.GetOrLoad(ctx, jobID, load)
	} else {
		job, err = load(ctx)
	}
	if err != nil {
		logger.Error(ctx, "failed to load ai request", err, "job_id", jobID)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load request")
	}

	if job == nil || !job.OwnedBy(userID) {
		return nil, apperrors.ErrJobNotFound
	}
	return job, nil
}
