// Package testutil 提供测试用的内存仓储、队列与渲染器
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"w4u-wizard-api/internal/domain/entity"
	"w4u-wizard-api/internal/domain/repository"
	"w4u-wizard-api/internal/infrastructure/messaging"
	"w4u-wizard-api/internal/infrastructure/renderer"
)

// BookStore 内存书籍仓储
type BookStore struct {
	mu    sync.Mutex
	books map[string]*entity.Book
	Err   error
}

// NewBookStore 创建书籍仓储
func NewBookStore(books ...*entity.Book) *BookStore {
	s := &BookStore{books: make(map[string]*entity.Book)}
	for _, b := range books {
		s.books[b.ID] = b
	}
	return s
}

func (s *BookStore) GetByID(_ context.Context, id string) (*entity.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	b, ok := s.books[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *BookStore) SoftDelete(_ context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	b, ok := s.books[id]
	if !ok || !b.OwnedBy(userID) {
		return false, nil
	}
	b.Status = entity.BookStatusDeleted
	return true, nil
}

// ChapterStore 内存章节与段落仓储
type ChapterStore struct {
	mu         sync.Mutex
	chapters   []*entity.Chapter
	paragraphs map[string][]*entity.Paragraph
	Err        error
	// ParagraphErr 段落查询错误
	ParagraphErr error
}

// NewChapterStore 创建章节仓储
func NewChapterStore(chapters ...*entity.Chapter) *ChapterStore {
	return &ChapterStore{chapters: chapters, paragraphs: make(map[string][]*entity.Paragraph)}
}

// AddParagraphs 添加段落
func (s *ChapterStore) AddParagraphs(paragraphs ...*entity.Paragraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paragraphs {
		s.paragraphs[p.ChapterID] = append(s.paragraphs[p.ChapterID], p)
	}
}

func (s *ChapterStore) ListCompletedByBook(_ context.Context, bookID string) ([]*entity.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*entity.Chapter
	for _, c := range s.chapters {
		if c.BookID == bookID && c.IsCompleted() {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	return out, nil
}

func (s *ChapterStore) ListByChapters(_ context.Context, chapterIDs []string) (map[string][]*entity.Paragraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ParagraphErr != nil {
		return nil, s.ParagraphErr
	}
	out := make(map[string][]*entity.Paragraph, len(chapterIDs))
	for _, id := range chapterIDs {
		if ps, ok := s.paragraphs[id]; ok {
			out[id] = ps
		}
	}
	return out, nil
}

// AIRequestStore 内存任务仓储，迁移规则与 SQL 条件更新一致
type AIRequestStore struct {
	mu       sync.Mutex
	requests map[string]*entity.AIRequest
	// CreateErr 注入创建错误
	CreateErr error
	// TransitionErrs 按目标状态注入迁移错误
	TransitionErrs map[entity.AIRequestStatus]error
}

// NewAIRequestStore 创建任务仓储
func NewAIRequestStore() *AIRequestStore {
	return &AIRequestStore{requests: make(map[string]*entity.AIRequest)}
}

func (s *AIRequestStore) Create(_ context.Context, req *entity.AIRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now()
	req.CreatedAt, req.UpdatedAt = now, now
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *AIRequestStore) GetByID(_ context.Context, id string) (*entity.AIRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *AIRequestStore) Transition(_ context.Context, id string, t entity.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.TransitionErrs[t.To]; err != nil {
		return err
	}
	r, ok := s.requests[id]
	if !ok || !r.Apply(t, time.Now()) {
		return repository.ErrInvalidTransition
	}
	return nil
}

// Status 读取任务当前状态
func (s *AIRequestStore) Status(id string) entity.AIRequestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.requests[id]; ok {
		return r.Status
	}
	return ""
}

// Jobs 返回所有任务副本，顺序不固定
func (s *AIRequestStore) Jobs() []*entity.AIRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.AIRequest, 0, len(s.requests))
	for _, r := range s.requests {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// Publisher 记录发布的消息，可选同步投递
type Publisher struct {
	mu       sync.Mutex
	Messages []*messaging.Message
	Err      error
	// Deliver 非空时同步调用，模拟消费者
	Deliver messaging.MessageHandler
}

func (p *Publisher) Publish(ctx context.Context, _ messaging.Stream, msg *messaging.Message) (string, error) {
	p.mu.Lock()
	if p.Err != nil {
		p.mu.Unlock()
		return "", p.Err
	}
	p.Messages = append(p.Messages, msg)
	deliver := p.Deliver
	p.mu.Unlock()

	if deliver != nil {
		if err := deliver(ctx, msg); err != nil {
			return "", err
		}
	}
	return msg.ID, nil
}

// Published 已发布消息数
func (p *Publisher) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Messages)
}

// FakePDF 最小 PDF 内容
var FakePDF = []byte("%PDF-1.4\n%fake\n")

// Renderer 记录渲染请求的渲染器
type Renderer struct {
	mu   sync.Mutex
	Docs []renderer.Document
	Err  error
}

func (r *Renderer) Render(_ context.Context, doc renderer.Document) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Docs = append(r.Docs, doc)
	if r.Err != nil {
		return nil, r.Err
	}
	return FakePDF, nil
}

var (
	_ repository.BookRepository      = (*BookStore)(nil)
	_ repository.ChapterRepository   = (*ChapterStore)(nil)
	_ repository.ParagraphRepository = (*ChapterStore)(nil)
	_ repository.AIRequestRepository = (*AIRequestStore)(nil)
	_ messaging.Publisher            = (*Publisher)(nil)
	_ renderer.Renderer              = (*Renderer)(nil)
)
