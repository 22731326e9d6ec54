package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"

	"w4u-wizard-api/internal/infrastructure/renderer"
)

// ErrRender 渲染服务失败，与数据读取失败区分
var ErrRender = errors.New("pdf render failed")

// PDFAssembler 生成 HTML 并交给无头浏览器渲染为 PDF
type PDFAssembler struct {
	renderer renderer.Renderer
}

// NewPDFAssembler 创建 PDF 组装器
func NewPDFAssembler(r renderer.Renderer) *PDFAssembler {
	return &PDFAssembler{renderer: r}
}

func (a *PDFAssembler) Format() Format { return FormatPDF }

// Assemble 渲染并写出 PDF，渲染失败返回包装了 ErrRender 的错误
func (a *PDFAssembler) Assemble(ctx context.Context, m *Manuscript, w io.Writer) error {
	doc, err := BuildPDFHTML(m)
	if err != nil {
		return err
	}
	if a.renderer == nil {
		return fmt.Errorf("%w: no renderer configured", ErrRender)
	}

	pdf, err := a.renderer.Render(ctx, renderer.Document{HTML: doc, HeaderText: m.HeaderText()})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	_, err = w.Write(pdf)
	return err
}

type pdfChapter struct {
	Anchor  string
	Heading string
	Body    template.HTML
}

type pdfView struct {
	Lang      string
	Title     string
	Byline    string
	Publisher string
	TOCLabel  string
	Chapters  []pdfChapter
}

// BuildPDFHTML 生成完整的 HTML 文档：标题页、目录页（#ch{n} 锚点）、每章一个 div
func BuildPDFHTML(m *Manuscript) (string, error) {
	view := pdfView{
		Lang:      m.Language(),
		Title:     m.Title,
		Byline:    m.Byline(),
		Publisher: m.Publisher,
		TOCLabel:  m.Locale.TOCLabel,
		Chapters:  make([]pdfChapter, 0, len(m.Chapters)),
	}
	for _, ch := range m.Chapters {
		view.Chapters = append(view.Chapters, pdfChapter{
			Anchor:  ch.Anchor,
			Heading: ch.Heading,
			// goldmark 已禁用原始 HTML
			Body: template.HTML(ch.HTML),
		})
	}

	var buf bytes.Buffer
	if err := pdfTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var pdfTemplate = template.Must(template.New("pdf").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: A4; margin: 2.5cm 2cm; }
html, body { margin: 0; padding: 0; }
body { font-family: Georgia, "Times New Roman", serif; font-size: 12pt; line-height: 1.6; color: #111; }
.title-page { height: 24cm; display: flex; flex-direction: column; justify-content: center; align-items: center; text-align: center; page-break-after: always; }
.title-page h1 { font-size: 30pt; margin: 0 0 0.5em; }
.title-page .author { font-size: 16pt; font-style: italic; margin: 0; }
.title-page .publisher { margin-top: 4em; font-size: 11pt; letter-spacing: 0.1em; }
.toc { page-break-after: always; }
.toc h2 { text-align: center; margin-bottom: 1.5em; }
.toc ol { list-style: none; padding: 0; }
.toc li { margin: 0.4em 0; }
.toc a { color: inherit; text-decoration: none; }
.chapter + .chapter { page-break-before: always; }
.chapter h2 { text-align: center; margin: 0 0 2em; }
.chapter p { text-align: justify; text-indent: 1.5em; margin: 0 0 0.4em; }
.chapter h2 + p { text-indent: 0; }
</style>
</head>
<body>
<section class="title-page">
<h1>{{.Title}}</h1>
{{- if .Byline}}
<p class="author">{{.Byline}}</p>
{{- end}}
{{- if .Publisher}}
<p class="publisher">{{.Publisher}}</p>
{{- end}}
</section>
<nav class="toc">
<h2>{{.TOCLabel}}</h2>
<ol>
{{- range .Chapters}}
<li><a href="#{{.Anchor}}">{{.Heading}}</a></li>
{{- end}}
</ol>
</nav>
{{- range .Chapters}}
<div class="chapter" id="{{.Anchor}}">
<h2>{{.Heading}}</h2>
{{.Body}}
</div>
{{- end}}
</body>
</html>
`))
