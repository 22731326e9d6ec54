package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"w4u-wizard-api/pkg/logger"
	"w4u-wizard-api/pkg/metrics"
)

// MemoryQueue 进程内队列：有界通道 + 固定数量的 worker
// 与 Redis Stream 不同，进程退出时未处理的消息会丢失，仅用于单实例部署与测试
type MemoryQueue struct {
	ch       chan queued
	workers  int
	handlers map[string]MessageHandler

	mu      sync.RWMutex
	running bool
	closed  bool
	wg      sync.WaitGroup
}

type queued struct {
	stream Stream
	msg    *Message
}

// NewMemoryQueue 创建进程内队列
func NewMemoryQueue(buffer, workers int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	if workers <= 0 {
		workers = 1
	}
	return &MemoryQueue{
		ch:       make(chan queued, buffer),
		workers:  workers,
		handlers: make(map[string]MessageHandler),
	}
}

// Publish 投递消息，队列满时立即返回 ErrQueueFull
func (q *MemoryQueue) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	_, span := tracer.Start(ctx, "memory_queue.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
		))
	defer span.End()

	injectLogContext(ctx, msg)

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return "", ErrQueueClosed
	}

	select {
	case q.ch <- queued{stream: stream, msg: msg}:
		return uuid.NewString(), nil
	default:
		span.RecordError(ErrQueueFull)
		return "", ErrQueueFull
	}
}

// RegisterHandler 注册消息处理器
func (q *MemoryQueue) RegisterHandler(msgType string, handler MessageHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[msgType] = handler
}

// Start 启动 worker
// ctx 只用于派生日志字段，消息处理使用独立的根 context，关闭时队列会被排空
func (q *MemoryQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.running {
		return fmt.Errorf("memory queue already running")
	}
	q.running = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(logger.Detach(ctx))
	}

	logger.Info(ctx, "memory queue started", "workers", q.workers)
	return nil
}

// Stop 关闭队列并等待已投递的消息处理完毕
func (q *MemoryQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *MemoryQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for item := range q.ch {
		q.process(ctx, item)
	}
}

func (q *MemoryQueue) process(ctx context.Context, item queued) {
	ctx = restoreLogContext(ctx, item.msg)
	ctx, span := tracer.Start(ctx, "memory_queue.process",
		trace.WithAttributes(
			attribute.String("stream", string(item.stream)),
			attribute.String("message.id", item.msg.ID),
			attribute.String("message.type", item.msg.Type),
		))
	defer span.End()

	q.mu.RLock()
	handler, ok := q.handlers[item.msg.Type]
	q.mu.RUnlock()

	if !ok {
		logger.Warn(ctx, "no handler for message type", "type", item.msg.Type)
		return
	}

	if err := safeHandle(ctx, handler, item.msg); err != nil {
		span.RecordError(err)
		metrics.QueueProcessed.WithLabelValues(string(item.stream), "error").Inc()
		logger.Error(ctx, "handler failed", err, "message_id", item.msg.ID)
		return
	}
	metrics.QueueProcessed.WithLabelValues(string(item.stream), "ok").Inc()
}
