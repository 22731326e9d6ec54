package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w4u-wizard-api/internal/application/aiagent"
	"w4u-wizard-api/internal/application/export"
	"w4u-wizard-api/internal/config"
	"w4u-wizard-api/internal/domain/entity"
	"w4u-wizard-api/internal/infrastructure/identity"
	"w4u-wizard-api/internal/interfaces/http/handler"
	"w4u-wizard-api/internal/testutil"
)

const (
	bookID    = "6f1c2d3e-0000-4000-8000-000000000001"
	jwtSecret = "router-test-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (l *stubLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

type stubChecker struct{ err error }

func (c stubChecker) HealthCheck(context.Context) error { return c.err }

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(context.Context, string) (*identity.Identity, error) {
	return nil, v.err
}

type fixture struct {
	books    *testutil.BookStore
	jobs     *testutil.AIRequestStore
	pub      *testutil.Publisher
	renderer *testutil.Renderer
	limiter  *stubLimiter
	signer   *identity.JWTVerifier
	tempDir  string
	engine   *gin.Engine
}

type fixtureOptions struct {
	mutate   func(*config.Config)
	verifier identity.Verifier
	pg       handler.HealthChecker
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	f := &fixture{
		books: testutil.NewBookStore(&entity.Book{
			ID:     bookID,
			UserID: "user-a",
			Title:  "IL GRANDE LIBRO",
			Author: "Mario Rossi",
			Status: entity.BookStatusExport,
		}),
		jobs:     testutil.NewAIRequestStore(),
		pub:      &testutil.Publisher{},
		renderer: &testutil.Renderer{},
		limiter:  &stubLimiter{},
		signer:   identity.NewJWTVerifier(config.JWTConfig{Secret: jwtSecret}),
		tempDir:  t.TempDir(),
	}

	chapter := &entity.Chapter{ID: "c1", BookID: bookID, ChapterNumber: 1, Title: "Capitolo 1: L'inizio", Status: entity.ChapterStatusCompleted}
	chapter.SetBody("C'era una volta.")
	chapters := testutil.NewChapterStore(chapter)

	cfg := &config.Config{
		App: config.AppConfig{Name: "w4u-test", Env: "test"},
		Security: config.SecurityConfig{
			RateLimit: config.RateLimitConfig{Enabled: true, Limit: 2, Window: time.Minute},
		},
		Export: config.ExportConfig{TempDir: f.tempDir, Language: "it"},
	}
	if opts.mutate != nil {
		opts.mutate(cfg)
	}

	verifier := opts.verifier
	if verifier == nil {
		verifier = f.signer
	}
	pg := opts.pg
	if pg == nil {
		pg = stubChecker{}
	}

	exportSvc := export.NewService(f.books, chapters, chapters, f.renderer, cfg.Export)
	agentSvc := aiagent.NewService(f.jobs, f.pub, nil)

	r := New(cfg, Handlers{
		Health:   handler.NewHealthHandler("test", pg, nil),
		Export:   handler.NewExportHandler(exportSvc),
		AIAgent:  handler.NewAIAgentHandler(agentSvc, 0),
		Sanitize: handler.NewSanitizeHandler(cfg.Export.Language),
		Project:  handler.NewProjectHandler(f.books),
	}, verifier, f.limiter)
	f.engine = r.Engine()
	return f
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.signer.Sign(userID, "", time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f *fixture) scratchFiles(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	return entries
}

func TestExport_DownloadsEachFormat(t *testing.T) {
	cases := []struct {
		path        string
		contentType string
		ext         string
	}{
		{"/export/epub", "application/epub+zip", ".epub"},
		{"/export/docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", ".docx"},
		{"/export/pdf", "application/pdf", ".pdf"},
	}
	for _, tc := range cases {
		t.Run(tc.ext, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{})

			w := f.do(http.MethodPost, tc.path, "", map[string]string{"bookId": bookID})

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tc.contentType, w.Header().Get("Content-Type"))
			disposition := w.Header().Get("Content-Disposition")
			assert.True(t, strings.HasPrefix(disposition, "attachment;"), disposition)
			assert.Contains(t, disposition, tc.ext)
			assert.Equal(t, "1", w.Header().Get("X-Chapter-Count"))
			assert.NotZero(t, w.Body.Len())
			assert.Empty(t, f.scratchFiles(t))
		})
	}
}

func TestExport_PDFBodyComesFromRenderer(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(http.MethodPost, "/export/pdf", "", map[string]string{"bookId": bookID})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testutil.FakePDF, w.Body.Bytes())
	require.Len(t, f.renderer.Docs, 1)
}

func TestExport_Errors(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(http.MethodPost, "/export/epub", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bookId is required", decode(t, w)["message"])

	w = f.do(http.MethodPost, "/export/docx", "", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/export/epub", "", map[string]string{"bookId": "6f1c2d3e-0000-4000-8000-0000000000ff"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Book not found", decode(t, w)["message"])

	f.renderer.Err = errors.New("connection refused")
	w = f.do(http.MethodPost, "/export/pdf", "", map[string]string{"bookId": bookID})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Failed to generate PDF", body["message"])
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Empty(t, f.scratchFiles(t))
}

func TestExport_AuthWhenConfigured(t *testing.T) {
	f := newFixture(t, fixtureOptions{mutate: func(cfg *config.Config) {
		cfg.Security.ExportAuth = true
	}})

	w := f.do(http.MethodPost, "/export/epub", "", map[string]string{"bookId": bookID})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/export/epub", f.token(t, "user-a"), map[string]string{"bookId": bookID})
	assert.Equal(t, http.StatusOK, w.Code)
}

func outlineBody() string {
	return `{"action":"generate_outline","bookId":"` + bookID + `","chapterCount":12}`
}

func TestAIAgent_SubmitThenPoll(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tok := f.token(t, "user-a")

	w := f.do(http.MethodPost, "/api/ai-agent", tok, outlineBody())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	accepted := decode(t, w)
	assert.Equal(t, "pending", accepted["status"])
	requestID, _ := accepted["requestId"].(string)
	require.NotEmpty(t, requestID)
	assert.Equal(t, 1, f.pub.Published())

	w = f.do(http.MethodGet, "/api/ai-agent/status/"+requestID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, "pending", status["status"])
	assert.Contains(t, status, "data")
	assert.Nil(t, status["data"])
	assert.Nil(t, status["error"])
	assert.NotEmpty(t, status["created_at"])
	assert.NotEmpty(t, status["updated_at"])

	// 完成后轮询返回结果
	require.NoError(t, f.jobs.Transition(context.Background(), requestID, entity.Transition{To: entity.AIRequestStatusProcessing}))
	require.NoError(t, f.jobs.Transition(context.Background(), requestID, entity.Transition{
		To:           entity.AIRequestStatusCompleted,
		ResponseData: []byte(`{"outline":["uno","due"]}`),
	}))
	w = f.do(http.MethodGet, "/api/ai-agent/status/"+requestID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status = decode(t, w)
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, map[string]any{"outline": []any{"uno", "due"}}, status["data"])
}

func TestAIAgent_StatusOfOtherUserIsNotFound(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(http.MethodPost, "/api/ai-agent", f.token(t, "user-a"), outlineBody())
	require.Equal(t, http.StatusAccepted, w.Code)
	requestID := decode(t, w)["requestId"].(string)

	other := f.do(http.MethodGet, "/api/ai-agent/status/"+requestID, f.token(t, "user-b"), nil)
	missing := f.do(http.MethodGet, "/api/ai-agent/status/6f1c2d3e-0000-4000-8000-0000000000aa", f.token(t, "user-b"), nil)

	assert.Equal(t, http.StatusNotFound, other.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "not found", decode(t, other)["message"])
	assert.Equal(t, decode(t, missing)["message"], decode(t, other)["message"])
}

func TestAIAgent_Auth(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(http.MethodPost, "/api/ai-agent", "", outlineBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/ai-agent", "garbage", outlineBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := f.signer.Sign("user-a", "", -time.Minute)
	require.NoError(t, err)
	w = f.do(http.MethodGet, "/api/ai-agent/status/anything", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token expired", decode(t, w)["message"])

	assert.Zero(t, f.pub.Published())
	assert.Empty(t, f.jobs.Jobs())
}

func TestAIAgent_IdentityProviderUnavailable(t *testing.T) {
	f := newFixture(t, fixtureOptions{verifier: stubVerifier{err: identity.ErrProviderUnavailable}})

	w := f.do(http.MethodPost, "/api/ai-agent", "some-token", outlineBody())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAIAgent_BadRequests(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tok := f.token(t, "user-a")

	cases := map[string]string{
		"missing action":  `{"bookId":"` + bookID + `"}`,
		"unknown action":  `{"action":"write_novel","bookId":"` + bookID + `"}`,
		"unknown field":   `{"action":"generate_outline","bookId":"` + bookID + `","surprise":1}`,
		"missing book":    `{"action":"generate_outline"}`,
		"client stamped":  `{"action":"generate_outline","bookId":"` + bookID + `","userId":"someone-else"}`,
		"malformed json":  `{"action":`,
		"invalid payload": `{"action":"generate_chapter","bookId":"` + bookID + `","chapterNumber":0}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/ai-agent", tok, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, f.jobs.Jobs())
}

func TestAIAgent_BodyTooLarge(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	body := `{"action":"generate_outline","bookId":"` + bookID + `","notes":"` + strings.Repeat("x", int(handler.DefaultMaxBodyBytes)) + `"}`
	w := f.do(http.MethodPost, "/api/ai-agent", f.token(t, "user-a"), body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAIAgent_QueueFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.pub.Err = errors.New("redis down")

	w := f.do(http.MethodPost, "/api/ai-agent", f.token(t, "user-a"), outlineBody())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis down")
	jobs := f.jobs.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, entity.AIRequestStatusFailed, jobs[0].Status)
}

func TestAIAgent_RateLimit(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tokA := f.token(t, "user-a")

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/ai-agent", tokA, outlineBody()).Code)
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/ai-agent", tokA, outlineBody()).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/ai-agent", tokA, outlineBody()).Code)

	// 计数按用户隔离，状态查询不受限
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/ai-agent", f.token(t, "user-b"), outlineBody()).Code)
	assert.NotEqual(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/api/ai-agent/status/x", tokA, nil).Code)
}

func TestAIAgent_RateLimiterErrorFailsOpen(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.limiter.err = errors.New("redis down")

	w := f.do(http.MethodPost, "/api/ai-agent", f.token(t, "user-a"), outlineBody())
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestSanitize(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	cases := []struct {
		method string
		text   string
		want   string
	}{
		{"chapter_title", "Capitolo 2: IL VIAGGIO", "Il Viaggio"},
		{"editorial", "QUESTO È UN TESTO 😀\r\n\r\n\r\nFINE", "Questo È un Testo\n\nFine"},
		{"default", " a 😀 b ", "a b"},
		{"", " a  b ", "a b"},
	}
	for _, tc := range cases {
		w := f.do(http.MethodPost, "/api/sanitize", "", map[string]string{"text": tc.text, "method": tc.method})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tc.want, decode(t, w)["text"], tc.method)
	}

	w := f.do(http.MethodPost, "/api/sanitize", "", "[1,2")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteProject(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(http.MethodPost, "/api/projects/delete", "", map[string]string{"id": bookID})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/projects/delete", f.token(t, "user-a"), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/projects/delete", f.token(t, "user-b"), map[string]string{"id": bookID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/projects/delete", f.token(t, "user-a"), map[string]string{"id": bookID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	book, err := f.books.GetByID(context.Background(), bookID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookStatusDeleted, book.Status)

	// 删除后不可再导出
	w = f.do(http.MethodPost, "/export/epub", "", map[string]string{"bookId": bookID})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Book not found", decode(t, w)["message"])
}

func TestDeleteProject_StoreError(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.books.Err = errors.New("db down")

	w := f.do(http.MethodPost, "/api/projects/delete", f.token(t, "user-a"), map[string]string{"id": bookID})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/live", "", nil).Code)

	w := f.do(http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	checks := decode(t, w)["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["postgres"].(map[string]any)["status"])
	assert.Equal(t, "disabled", checks["redis"].(map[string]any)["status"])

	down := newFixture(t, fixtureOptions{pg: stubChecker{err: errors.New("refused")}})
	w = down.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", decode(t, w)["status"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestRequestIDReplacesUnsafeValue(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "bad id\twith spaces")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	got := w.Header().Get("X-Request-ID")
	assert.NotEqual(t, "bad id\twith spaces", got)
	assert.Len(t, got, 36)
}
