package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"w4u-wizard-api/internal/config"
	"w4u-wizard-api/internal/domain/entity"
	"w4u-wizard-api/internal/domain/repository"
	"w4u-wizard-api/internal/infrastructure/renderer"
	apperrors "w4u-wizard-api/pkg/errors"
	"w4u-wizard-api/pkg/logger"
	"w4u-wizard-api/pkg/metrics"
)

var tracer = otel.Tracer("export")

// Artifact 导出产物，调用方读取后必须调用 Cleanup
type Artifact struct {
	Path        string
	Filename    string
	ContentType string
	Format      Format
	Size        int64
	// Chapters 参与导出的章节数
	Chapters    int
}

// Cleanup 删除临时文件，文件已不存在时不报错
func (a *Artifact) Cleanup() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Service 导出服务
type Service struct {
	books      repository.BookRepository
	chapters   repository.ChapterRepository
	paragraphs repository.ParagraphRepository
	assemblers map[Format]Assembler
	cfg        config.ExportConfig
}

// NewService 创建导出服务，paragraphs 可为 nil（不回退到段落表）
func NewService(
	books repository.BookRepository,
	chapters repository.ChapterRepository,
	paragraphs repository.ParagraphRepository,
	pdfRenderer renderer.Renderer,
	cfg config.ExportConfig,
) *Service {
	s := &Service{
		books:      books,
		chapters:   chapters,
		paragraphs: paragraphs,
		assemblers: make(map[Format]Assembler),
		cfg:        cfg,
	}
	for _, a := range []Assembler{NewEPUBAssembler(), NewDOCXAssembler(), NewPDFAssembler(pdfRenderer)} {
		s.assemblers[a.Format()] = a
	}
	return s
}

// Export 读取书籍与已完成章节，组装为 format 并写入临时文件
func (s *Service) Export(ctx context.Context, bookID string, format Format) (*Artifact, error) {
	assembler, ok := s.assemblers[format]
	if !ok {
		return nil, apperrors.ErrInvalidParam.WithDetail("unsupported format: " + string(format))
	}

	ctx, span := tracer.Start(ctx, "export.Export",
		trace.WithAttributes(
			attribute.String("book.id", bookID),
			attribute.String("export.format", string(format)),
		))
	defer span.End()
	ctx = logger.WithContext(ctx, logger.BookIDKey, bookID)

	start := time.Now()
	artifact, err := s.export(ctx, bookID, format, assembler)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	metrics.ExportTotal.WithLabelValues(string(format), status).Inc()
	metrics.ExportDuration.WithLabelValues(string(format)).Observe(time.Since(start).Seconds())

	return artifact, err
}

func (s *Service) export(ctx context.Context, bookID string, format Format, assembler Assembler) (*Artifact, error) {
	book, chapters, err := s.load(ctx, bookID)
	if err != nil {
		return nil, err
	}

	m, err := BuildManuscript(book, chapters, ManuscriptOptions{
		Publisher: s.cfg.Publisher,
		Language:  s.cfg.Language,
	})
	if err != nil {
		logger.Error(ctx, "failed to build manuscript", err)
		return nil, apperrors.ExportFailed(format.Label(), err)
	}
	metrics.ExportChapters.WithLabelValues(string(format)).Observe(float64(len(m.Chapters)))

	path, size, err := s.writeScratch(ctx, book.ID, format, assembler, m)
	if err != nil {
		if errors.Is(err, ErrRender) {
			logger.Error(ctx, "pdf renderer failed", err)
			return nil, apperrors.Wrap(err, apperrors.CodeRenderFailed, "Failed to generate "+format.Label())
		}
		logger.Error(ctx, "failed to assemble document", err, "format", string(format))
		return nil, apperrors.ExportFailed(format.Label(), err)
	}

	logger.Info(ctx, "document exported",
		"format", string(format),
		"chapters", len(m.Chapters),
		"bytes", size,
	)

	return &Artifact{
		Path:        path,
		Filename:    Filename(m.Title, format),
		ContentType: format.ContentType(),
		Format:      format,
		Size:        size,
		Chapters:    len(m.Chapters),
	}, nil
}

// load 并发读取书籍与已完成章节，正文为空的章节回退到段落表
func (s *Service) load(ctx context.Context, bookID string) (*entity.Book, []*entity.Chapter, error) {
	var (
		book     *entity.Book
		chapters []*entity.Chapter
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.books.GetByID(gctx, bookID)
		if err != nil {
			logger.Error(gctx, "failed to load book", err)
			return apperrors.ErrBookNotFound.WithError(err)
		}
		if b == nil || b.IsDeleted() {
			return apperrors.ErrBookNotFound
		}
		book = b
		return nil
	})
	g.Go(func() error {
		list, err := s.chapters.ListCompletedByBook(gctx, bookID)
		if err != nil {
			logger.Error(gctx, "failed to load chapters", err)
			return apperrors.ErrChaptersNotFound.WithError(err)
		}
		chapters = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if err := s.fillFromParagraphs(ctx, chapters); err != nil {
		logger.Error(ctx, "failed to load paragraphs", err)
		return nil, nil, apperrors.ErrChaptersNotFound.WithError(err)
	}
	return book, chapters, nil
}

func (s *Service) fillFromParagraphs(ctx context.Context, chapters []*entity.Chapter) error {
	if s.paragraphs == nil {
		return nil
	}

	var ids []string
	for _, ch := range chapters {
		if ch.IsCompleted() && !ch.HasBody() {
			ids = append(ids, ch.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	grouped, err := s.paragraphs.ListByChapters(ctx, ids)
	if err != nil {
		return err
	}
	for _, ch := range chapters {
		if ps, ok := grouped[ch.ID]; ok && !ch.HasBody() {
			ch.SetBody(entity.JoinParagraphs(ps))
		}
	}
	return nil
}

// writeScratch 组装到 <temp_dir>/<bookID>-<uuid>.<ext>，失败时删除文件
func (s *Service) writeScratch(ctx context.Context, bookID string, format Format, assembler Assembler, m *Manuscript) (string, int64, error) {
	dir := s.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create temp dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.%s", bookID, uuid.NewString(), format.Extension()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}

	bw := bufio.NewWriter(f)
	err = assembler.Assemble(ctx, m, bw)
	if err == nil {
		err = bw.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	var size int64
	if err == nil {
		var info os.FileInfo
		if info, err = os.Stat(path); err == nil {
			size = info.Size()
		}
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn(ctx, "failed to remove scratch file", "path", path, "error", rmErr.Error())
		}
		return "", 0, err
	}
	return path, size, nil
}

// Filename 下载文件名：书名中的字母数字保留，其余字符折叠为下划线
func Filename(title string, format Format) string {
	var b strings.Builder
	underscore := false
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	name := strings.TrimRight(b.String(), "_")
	if name == "" {
		name = "book"
	}
	if n := []rune(name); len(n) > 120 {
		name = string(n[:120])
	}
	return name + "." + format.Extension()
}

// ContentDisposition attachment 头，附带 ASCII 回退与 RFC 5987 编码文件名
func ContentDisposition(filename string) string {
	ascii := make([]rune, 0, len(filename))
	for _, r := range filename {
		if r < 0x80 && r != '"' && r != '\\' && unicode.IsPrint(r) {
			ascii = append(ascii, r)
		} else {
			ascii = append(ascii, '_')
		}
	}
	return `attachment; filename="` + string(ascii) + `"; filename*=UTF-8''` + pathEscape(filename)
}

func pathEscape(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if c < 0x80 && (unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) || strings.IndexByte("-._~", c) >= 0) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
