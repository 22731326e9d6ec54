package export

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"w4u-wizard-api/internal/application/editorial"
	"w4u-wizard-api/internal/domain/entity"
)

// Manuscript 已清洗的导出文稿，各格式共用同一份标题与章节
type Manuscript struct {
	BookID    string
	Title     string
	Author    string
	Publisher string
	Locale    *editorial.Locale
	// Identifier 每次导出新生成的唯一标识 (urn:uuid:...)
	Identifier string
	Modified   time.Time
	Chapters   []ManuscriptChapter
}

// ManuscriptChapter 文稿章节，Heading 只计算一次，目录与正文共用
type ManuscriptChapter struct {
	// Number 导出顺序中的 1 起序号
	Number   int
	Anchor   string
	Heading  string
	Markdown string
	HTML     string
}

// ManuscriptOptions 文稿构建参数
type ManuscriptOptions struct {
	Publisher string
	// Language 书籍 context_data 未指定语言时使用
	Language string
}

// Language 文稿语言代码
func (m *Manuscript) Language() string {
	return m.Locale.Code
}

// Byline 署名行，如 "di Mario Rossi"
func (m *Manuscript) Byline() string {
	if m.Author == "" {
		return ""
	}
	return m.Locale.ByLabel + " " + m.Author
}

// HeaderText 页眉文字 "{author} – {title}"
func (m *Manuscript) HeaderText() string {
	if m.Author == "" {
		return m.Title
	}
	return m.Author + " – " + m.Title
}

var leadingHeading = regexp.MustCompile(`^#{1,6}[ \t]+(.+?)[ \t#]*(?:\n|$)`)

// BuildManuscript 过滤 COMPLETED 章节并按 chapter_number 升序排列，清洗标题与正文并转为 XHTML
// 没有已完成章节时返回只有前言部分的文稿
func BuildManuscript(book *entity.Book, chapters []*entity.Chapter, opts ManuscriptOptions) (*Manuscript, error) {
	lang := book.ContextString("language")
	if lang == "" {
		lang = opts.Language
	}
	loc := editorial.LocaleFor(lang)

	title := loc.SanitizeLine(book.Title)
	if title == "" {
		title = loc.Untitled
	}

	m := &Manuscript{
		BookID:     book.ID,
		Title:      title,
		Author:     loc.SanitizeLine(book.Author),
		Publisher:  loc.SanitizeLine(opts.Publisher),
		Locale:     loc,
		Identifier: "urn:uuid:" + uuid.NewString(),
		Modified:   time.Now().UTC(),
	}

	completed := make([]*entity.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		if ch != nil && ch.IsCompleted() {
			completed = append(completed, ch)
		}
	}
	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].ChapterNumber < completed[j].ChapterNumber
	})

	m.Chapters = make([]ManuscriptChapter, 0, len(completed))
	for i, ch := range completed {
		body := dropLeadingHeading(editorial.SanitizeText(ch.Body()), loc.CleanTitle(ch.Title), loc)
		html, err := MarkdownToHTML(body)
		if err != nil {
			return nil, fmt.Errorf("convert chapter %d: %w", ch.ChapterNumber, err)
		}
		m.Chapters = append(m.Chapters, ManuscriptChapter{
			Number:   i + 1,
			Anchor:   fmt.Sprintf("ch%d", i+1),
			Heading:  loc.FormatChapterTitle(i, ch.Title),
			Markdown: body,
			HTML:     html,
		})
	}

	return m, nil
}

// dropLeadingHeading 正文首行若是与章节标题相同（或只有章节编号）的 Markdown 标题则去掉
func dropLeadingHeading(body, cleanTitle string, loc *editorial.Locale) string {
	idx := leadingHeading.FindStringSubmatchIndex(body)
	if idx == nil {
		return body
	}
	heading := loc.CleanTitle(body[idx[2]:idx[3]])
	if heading != "" && !strings.EqualFold(heading, cleanTitle) {
		return body
	}
	return strings.TrimSpace(body[idx[1]:])
}
