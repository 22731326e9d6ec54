package aiagent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w4u-wizard-api/internal/config"
	"w4u-wizard-api/internal/domain/entity"
	"w4u-wizard-api/internal/infrastructure/messaging"
	"w4u-wizard-api/internal/infrastructure/webhook"
	"w4u-wizard-api/internal/testutil"
	apperrors "w4u-wizard-api/pkg/errors"
)

func outlineRequest(t *testing.T) *Request {
	t.Helper()
	req, err := DecodeAction([]byte(`{"action":"generate_outline","bookId":"` + bookID + `","chapterCount":12}`))
	require.NoError(t, err)
	return req
}

func newWebhook(url string) *webhook.Client {
	return webhook.NewClient(config.WebhookConfig{
		URL:     url,
		Timeout: 2 * time.Second,
		Backoff: config.BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1},
	}, nil)
}

func TestService_SubmitThenStatusIsPending(t *testing.T) {
	jobs := testutil.NewAIRequestStore()
	pub := &testutil.Publisher{}
	svc := NewService(jobs, pub, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, entity.AIRequestStatusPending, job.Status)
	assert.Equal(t, bookID, job.BookID)

	require.Equal(t, 1, pub.Published())
	var fwd messaging.ForwardMessage
	require.NoError(t, pub.Messages[0].UnmarshalPayload(&fwd))
	assert.Equal(t, job.ID, fwd.JobID)
	assert.Equal(t, "generate_outline", fwd.Action)

	status, err := svc.GetStatus(context.Background(), "user-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AIRequestStatusPending, status.Status)
}

func TestService_SubmitEnqueueFailureMarksJobFailed(t *testing.T) {
	jobs := testutil.NewAIRequestStore()
	pub := &testutil.Publisher{Err: messaging.ErrQueueFull}
	svc := NewService(jobs, pub, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	assert.Nil(t, job)
	assert.Equal(t, apperrors.CodeQueueFailed, apperrors.AsAppError(err).Code)

	all := jobs.Jobs()
	require.Len(t, all, 1)
	assert.Equal(t, entity.AIRequestStatusFailed, all[0].Status)
	assert.NotEmpty(t, all[0].ErrorMessage)
}

func TestService_GetStatusHidesOtherUsersJobs(t *testing.T) {
	jobs := testutil.NewAIRequestStore()
	svc := NewService(jobs, &testutil.Publisher{}, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), "user-b", job.ID)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeJobNotFound, appErr.Code)
	assert.Equal(t, "not found", appErr.Message)

	_, err = svc.GetStatus(context.Background(), "user-a", "does-not-exist")
	assert.Equal(t, apperrors.CodeJobNotFound, apperrors.AsAppError(err).Code)
}

type countingSnapshots struct {
	calls int
}

func (c *countingSnapshots) GetOrLoad(ctx context.Context, _ string, load func(ctx context.Context) (*entity.AIRequest, error)) (*entity.AIRequest, error) {
	c.calls++
	return load(ctx)
}

func TestService_GetStatusUsesSnapshotCache(t *testing.T) {
	jobs := testutil.NewAIRequestStore()
	snapshots := &countingSnapshots{}
	svc := NewService(jobs, &testutil.Publisher{}, snapshots)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), "user-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots.calls)
}

func TestForwarder_CompletesJob(t *testing.T) {
	bodies := make(chan []byte, 4)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"outline":["uno","due"]}`))
	}))
	defer srv.Close()

	jobs := testutil.NewAIRequestStore()
	fwd := NewForwarder(jobs, newWebhook(srv.URL))
	svc := NewService(jobs, &testutil.Publisher{Deliver: fwd.Handle}, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background(), "user-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AIRequestStatusCompleted, status.Status)
	assert.JSONEq(t, `{"outline":["uno","due"]}`, string(status.ResponseData))

	var received map[string]any
	require.NoError(t, json.Unmarshal(<-bodies, &received))
	assert.Equal(t, "generate_outline", received["action"])
	assert.Equal(t, "user-a", received["userId"])
	assert.Equal(t, job.ID, received["jobId"])
	assert.Equal(t, float64(12), received["chapterCount"])

	// 重复投递不会再次转发
	fwd.Forward(context.Background(), job.ID)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, entity.AIRequestStatusCompleted, jobs.Status(job.ID))
}

func TestForwarder_UnreachableWebhookFailsJob(t *testing.T) {
	jobs := testutil.NewAIRequestStore()
	fwd := NewForwarder(jobs, newWebhook("http://127.0.0.1:1/webhook/ai"))
	svc := NewService(jobs, &testutil.Publisher{Deliver: fwd.Handle}, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background(), "user-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AIRequestStatusFailed, status.Status)
	assert.NotEmpty(t, status.ErrorMessage)

	fwd.Forward(context.Background(), job.ID)
	assert.Equal(t, entity.AIRequestStatusFailed, jobs.Status(job.ID))
}

func TestForwarder_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"client error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad request", http.StatusBadRequest)
		}},
		{"non json body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>oops</html>"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			jobs := testutil.NewAIRequestStore()
			fwd := NewForwarder(jobs, newWebhook(srv.URL))
			svc := NewService(jobs, &testutil.Publisher{Deliver: fwd.Handle}, nil)

			job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
			require.NoError(t, err)

			status, err := svc.GetStatus(context.Background(), "user-a", job.ID)
			require.NoError(t, err)
			assert.Equal(t, entity.AIRequestStatusFailed, status.Status)
			assert.NotEmpty(t, status.ErrorMessage)
		})
	}
}

type panickingPoster struct{}

func (panickingPoster) Post(context.Context, string, any) (json.RawMessage, error) {
	panic("boom")
}

func TestForwarder_PanicIsRecorded(t *testing.T) {
	jobs := testutil.NewAIRequestStore()
	fwd := NewForwarder(jobs, panickingPoster{})
	svc := NewService(jobs, &testutil.Publisher{}, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)

	assert.NotPanics(t, func() { fwd.Forward(context.Background(), job.ID) })
	assert.Equal(t, entity.AIRequestStatusFailed, jobs.Status(job.ID))
}

func TestForwarder_HandleIgnoresMalformedMessage(t *testing.T) {
	fwd := NewForwarder(testutil.NewAIRequestStore(), panickingPoster{})
	msg := &messaging.Message{ID: "m1", Type: messaging.TypeAIForward, Payload: json.RawMessage(`"nope"`)}
	assert.NoError(t, fwd.Handle(context.Background(), msg))
}

func TestForwarder_WithMemoryQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	jobs := testutil.NewAIRequestStore()
	queue := messaging.NewMemoryQueue(8, 2)
	NewForwarder(jobs, newWebhook(srv.URL)).Register(queue)
	require.NoError(t, queue.Start(context.Background()))
	defer queue.Stop()

	svc := NewService(jobs, queue, nil)
	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)

	first, err := svc.GetStatus(context.Background(), "user-a", job.ID)
	require.NoError(t, err)
	assert.False(t, first.Status.IsTerminal())

	assert.Eventually(t, func() bool {
		return jobs.Status(job.ID) == entity.AIRequestStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_SubmitCreateFailure(t *testing.T) {
	jobs := testutil.NewAIRequestStore()
	jobs.CreateErr = errors.New("db down")
	pub := &testutil.Publisher{}
	svc := NewService(jobs, pub, nil)

	_, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.AsAppError(err).Code)
	assert.Zero(t, pub.Published())
}

func forwardMessage(t *testing.T, job *entity.AIRequest, deliveries int) *messaging.Message {
	t.Helper()
	msg, err := messaging.NewMessage(job.ID, messaging.TypeAIForward, job.UserID, "", &messaging.ForwardMessage{
		JobID:  job.ID,
		UserID: job.UserID,
		Action: job.Action,
	})
	require.NoError(t, err)
	msg.Deliveries = deliveries
	return msg
}

func TestForwarder_RedeliveredProcessingJobFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	jobs := testutil.NewAIRequestStore()
	fwd := NewForwarder(jobs, newWebhook(srv.URL))
	svc := NewService(jobs, &testutil.Publisher{}, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)
	// 原消费者已置为 processing 后退出
	require.NoError(t, jobs.Transition(context.Background(), job.ID, entity.Transition{To: entity.AIRequestStatusProcessing}))

	require.NoError(t, fwd.Handle(context.Background(), forwardMessage(t, job, 2)))

	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AIRequestStatusFailed, got.Status)
	assert.Equal(t, ErrWorkerLost.Error(), got.ErrorMessage)
	assert.Zero(t, calls.Load())
}

func TestForwarder_RedeliveredPendingJobIsForwarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	jobs := testutil.NewAIRequestStore()
	fwd := NewForwarder(jobs, newWebhook(srv.URL))
	svc := NewService(jobs, &testutil.Publisher{}, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)

	require.NoError(t, fwd.Handle(context.Background(), forwardMessage(t, job, 3)))
	assert.Equal(t, entity.AIRequestStatusCompleted, jobs.Status(job.ID))
}

func TestForwarder_RedeliveredTerminalJobIsUntouched(t *testing.T) {
	jobs := testutil.NewAIRequestStore()
	fwd := NewForwarder(jobs, panickingPoster{})
	svc := NewService(jobs, &testutil.Publisher{}, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, jobs.Transition(ctx, job.ID, entity.Transition{To: entity.AIRequestStatusProcessing}))
	require.NoError(t, jobs.Transition(ctx, job.ID, entity.Transition{
		To:           entity.AIRequestStatusCompleted,
		ResponseData: []byte(`{"ok":true}`),
	}))

	require.NoError(t, fwd.Handle(ctx, forwardMessage(t, job, 2)))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AIRequestStatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestForwarder_StartFailureMarksJobFailed(t *testing.T) {
	jobs := testutil.NewAIRequestStore()
	jobs.TransitionErrs = map[entity.AIRequestStatus]error{
		entity.AIRequestStatusProcessing: errors.New("connection reset"),
	}
	fwd := NewForwarder(jobs, panickingPoster{})
	svc := NewService(jobs, &testutil.Publisher{}, nil)

	job, err := svc.Submit(context.Background(), "user-a", outlineRequest(t))
	require.NoError(t, err)

	fwd.Forward(context.Background(), job.ID)

	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AIRequestStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "connection reset")
}
