package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"w4u-wizard-api/pkg/logger"
	"w4u-wizard-api/pkg/metrics"
)

// Consumer Redis Stream 消费者
// 每条消息处理后都会 ACK：处理结果由处理器自己落库，失败不会重新投递。
// 只有消费者在处理中途退出时，消息才会在空闲 ClaimMinIdle 后被其他消费者接管。
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	running  bool
	cancel   context.CancelFunc
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream       Stream
	Group        ConsumerGroup
	ConsumerName string
	BlockTimeout time.Duration
	// ClaimInterval 扫描待接管消息的间隔
	ClaimInterval time.Duration
	// ClaimMinIdle 消息空闲超过该时长才会被接管
	ClaimMinIdle time.Duration
	// MaxDeliveries 投递次数超过上限的消息直接进入死信队列
	MaxDeliveries int
	BatchSize     int64
}

// NewConsumer 创建消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = 10 * time.Minute
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Consumer{
		client:   client,
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		stopCh:   make(chan struct{}),
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 确保消费者组存在并启动消费循环。
// 读取循环随 Stop 结束；处理器使用 ctx，Stop 会等待处理中的消息完成
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("consumer already running")
	}

	err := c.client.XGroupCreateMkStream(ctx, string(c.cfg.Stream), string(c.cfg.Group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, loopCtx)
	}()
	return nil
}

// Stop 停止读取并等待当前消息处理完成
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Consumer) run(ctx, loopCtx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("consumer started",
		"stream", c.cfg.Stream,
		"group", c.cfg.Group,
		"consumer", c.cfg.ConsumerName,
	)
	defer log.Info("consumer stopped", "consumer", c.cfg.ConsumerName)

	var lastClaim time.Time
	for loopCtx.Err() == nil {
		if time.Since(lastClaim) >= c.cfg.ClaimInterval {
			c.claimStale(ctx, loopCtx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(loopCtx, &redis.XReadGroupArgs{
			Group:    string(c.cfg.Group),
			Consumer: c.cfg.ConsumerName,
			Streams:  []string{string(c.cfg.Stream), ">"},
			Count:    c.cfg.BatchSize,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || loopCtx.Err() != nil {
				continue
			}
			log.Error("failed to read from stream", "error", err)
			select {
			case <-loopCtx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				c.deliver(ctx, xmsg, 1)
			}
		}
	}
}

// claimStale 接管空闲超过 ClaimMinIdle 的待确认消息（原消费者已退出）并重新投递
func (c *Consumer) claimStale(ctx, loopCtx context.Context) int {
	claimed := 0
	start := "0-0"
	for loopCtx.Err() == nil {
		msgs, next, err := c.client.XAutoClaim(loopCtx, &redis.XAutoClaimArgs{
			Stream:   string(c.cfg.Stream),
			Group:    string(c.cfg.Group),
			Consumer: c.cfg.ConsumerName,
			MinIdle:  c.cfg.ClaimMinIdle,
			Start:    start,
			Count:    c.cfg.BatchSize,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && loopCtx.Err() == nil {
				logger.FromContext(ctx).Error("failed to claim stale messages", "error", err)
			}
			return claimed
		}

		for _, xmsg := range msgs {
			c.deliver(ctx, xmsg, c.deliveries(ctx, xmsg.ID))
			claimed++
		}
		if len(msgs) == 0 || next == "" || next == "0-0" {
			return claimed
		}
		start = next
	}
	return claimed
}

// deliver 解析并处理一条消息，无论结果如何都会 ACK
func (c *Consumer) deliver(ctx context.Context, xmsg redis.XMessage, deliveries int) {
	ctx, span := tracer.Start(ctx, "consumer.deliver",
		trace.WithAttributes(
			attribute.String("stream", string(c.cfg.Stream)),
			attribute.String("stream.message_id", xmsg.ID),
			attribute.Int("stream.deliveries", deliveries),
		))
	defer span.End()
	defer c.ack(ctx, xmsg.ID)

	msg, err := decodeXMessage(xmsg)
	if err != nil {
		logger.Error(ctx, "dropping undecodable message", err, "message_id", xmsg.ID)
		c.deadLetter(ctx, xmsg, err)
		return
	}
	msg.Deliveries = deliveries

	ctx = restoreLogContext(ctx, msg)
	span.SetAttributes(attribute.String("message.type", msg.Type))

	if deliveries > c.cfg.MaxDeliveries {
		logger.Warn(ctx, "message exceeded max deliveries", "message_id", xmsg.ID, "deliveries", deliveries)
		c.deadLetter(ctx, xmsg, fmt.Errorf("exceeded %d deliveries", c.cfg.MaxDeliveries))
		return
	}

	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		c.deadLetter(ctx, xmsg, fmt.Errorf("no handler for %q", msg.Type))
		return
	}

	if err := safeHandle(ctx, handler, msg); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "message handler failed", err, "message_id", xmsg.ID)
		c.deadLetter(ctx, xmsg, err)
		return
	}
	metrics.QueueProcessed.WithLabelValues(string(c.cfg.Stream), "ok").Inc()
}

func decodeXMessage(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, errors.New("missing data field")
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("invalid message json: %w", err)
	}
	return &msg, nil
}

// safeHandle 执行处理器并将 panic 转为错误
func safeHandle(ctx context.Context, handler MessageHandler, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(context.WithoutCancel(ctx), string(c.cfg.Stream), string(c.cfg.Group), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack message", err, "message_id", id)
	}
}

// deliveries 读取消息在消费者组中的投递次数
func (c *Consumer) deliveries(ctx context.Context, id string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.cfg.Stream),
		Group:  string(c.cfg.Group),
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	// 查询失败时按重复投递处理
	if err != nil || len(pending) == 0 {
		return 2
	}
	return int(pending[0].RetryCount)
}

// deadLetter 原样写入死信流，保留原因便于人工排查
func (c *Consumer) deadLetter(ctx context.Context, xmsg redis.XMessage, cause error) {
	raw, _ := xmsg.Values["data"].(string)
	err := c.client.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{
		Stream: c.cfg.Stream.DLQStream(),
		Values: map[string]any{
			"data":        raw,
			"original_id": xmsg.ID,
			"error":       cause.Error(),
			"failed_at":   time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		logger.Error(ctx, "failed to write DLQ message", err, "message_id", xmsg.ID)
	}
	metrics.QueueProcessed.WithLabelValues(string(c.cfg.Stream), "dlq").Inc()
}

// MonitorDLQ 定期上报积压并在死信超过阈值时告警
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if summary, err := c.client.XPending(ctx, string(c.cfg.Stream), string(c.cfg.Group)).Result(); err == nil {
				metrics.QueueLag.WithLabelValues(string(c.cfg.Stream), string(c.cfg.Group)).Set(float64(summary.Count))
			}
			n, err := c.client.XLen(ctx, c.cfg.Stream.DLQStream()).Result()
			if err == nil && n > alertThreshold {
				logger.Warn(ctx, "DLQ has pending messages", "stream", c.cfg.Stream.DLQStream(), "count", n)
			}
		}
	}
}
