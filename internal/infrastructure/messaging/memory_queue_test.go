package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w4u-wizard-api/pkg/logger"
)

func newForward(t *testing.T, jobID string) *Message {
	t.Helper()
	msg, err := NewMessage(jobID, TypeAIForward, "user-1", "book-1", &ForwardMessage{JobID: jobID, UserID: "user-1", Action: "interview"})
	require.NoError(t, err)
	return msg
}

func TestMemoryQueue_DeliversAndDrainsOnStop(t *testing.T) {
	q := NewMemoryQueue(16, 2)

	var mu sync.Mutex
	var got []string
	q.RegisterHandler(TypeAIForward, func(ctx context.Context, msg *Message) error {
		var fwd ForwardMessage
		require.NoError(t, msg.UnmarshalPayload(&fwd))
		mu.Lock()
		got = append(got, fwd.JobID)
		mu.Unlock()
		return nil
	})
	require.NoError(t, q.Start(context.Background()))

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Publish(context.Background(), StreamAIForward, newForward(t, id))
		require.NoError(t, err)
	}
	q.Stop()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

func TestMemoryQueue_PublishAfterStop(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	require.NoError(t, q.Start(context.Background()))
	q.Stop()

	_, err := q.Publish(context.Background(), StreamAIForward, newForward(t, "x"))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueue_FullBuffer(t *testing.T) {
	// 未启动 worker，缓冲区写满后立即失败
	q := NewMemoryQueue(1, 1)
	_, err := q.Publish(context.Background(), StreamAIForward, newForward(t, "1"))
	require.NoError(t, err)

	_, err = q.Publish(context.Background(), StreamAIForward, newForward(t, "2"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMemoryQueue_HandlerPanicDoesNotKillWorker(t *testing.T) {
	q := NewMemoryQueue(4, 1)
	var handled atomic.Int32
	q.RegisterHandler(TypeAIForward, func(ctx context.Context, msg *Message) error {
		if msg.ID == "boom" {
			panic("unexpected")
		}
		if msg.ID == "err" {
			return errors.New("failed")
		}
		handled.Add(1)
		return nil
	})
	require.NoError(t, q.Start(context.Background()))

	for _, id := range []string{"boom", "err", "ok"} {
		_, err := q.Publish(context.Background(), StreamAIForward, newForward(t, id))
		require.NoError(t, err)
	}
	q.Stop()

	assert.Equal(t, int32(1), handled.Load())
}

func TestRestoreLogContext(t *testing.T) {
	msg := newForward(t, "job-7")
	msg.SetMetadata("request_id", "req-1")

	ctx := restoreLogContext(context.Background(), msg)
	assert.Equal(t, "job-7", ctx.Value(logger.JobIDKey))
	assert.Equal(t, "req-1", ctx.Value(logger.RequestIDKey))
	assert.Equal(t, "book-1", ctx.Value(logger.BookIDKey))
}
