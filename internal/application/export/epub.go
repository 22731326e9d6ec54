package export

import (
	"context"
	"fmt"
	"io"
	"text/template"
)

// EPUBAssembler 生成 EPUB 3 电子书（附带 NCX 兼容 EPUB 2 阅读器）
type EPUBAssembler struct{}

// NewEPUBAssembler 创建 EPUB 组装器
func NewEPUBAssembler() *EPUBAssembler {
	return &EPUBAssembler{}
}

func (a *EPUBAssembler) Format() Format { return FormatEPUB }

// epubChapter 章节在容器中的文件信息
type epubChapter struct {
	ManuscriptChapter
	ID   string
	File string
}

type epubView struct {
	*Manuscript
	Lang     string
	TOCLabel string
	Modified string
	Items    []epubChapter
}

// Assemble 写出 EPUB，mimetype 为第一个且不压缩的条目
func (a *EPUBAssembler) Assemble(ctx context.Context, m *Manuscript, w io.Writer) error {
	view := &epubView{
		Manuscript: m,
		Lang:       m.Language(),
		TOCLabel:   m.Locale.TOCLabel,
		Modified:   m.Modified.UTC().Format("2006-01-02T15:04:05Z"),
		Items:      make([]epubChapter, 0, len(m.Chapters)),
	}
	for _, ch := range m.Chapters {
		view.Items = append(view.Items, epubChapter{
			ManuscriptChapter: ch,
			ID:                fmt.Sprintf("chapter-%03d", ch.Number),
			File:              fmt.Sprintf("ch%03d.xhtml", ch.Number),
		})
	}

	pw := newPackageWriter(w, m.Modified)
	pw.store("mimetype", []byte("application/epub+zip"))
	pw.deflate("META-INF/container.xml", []byte(epubContainer))
	pw.template("OEBPS/content.opf", epubOPF, view)
	pw.template("OEBPS/nav.xhtml", epubNav, view)
	pw.template("OEBPS/toc.ncx", epubNCX, view)
	pw.deflate("OEBPS/styles/book.css", []byte(epubCSS))
	pw.template("OEBPS/text/title.xhtml", epubTitle, view)
	for _, item := range view.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		pw.template("OEBPS/text/"+item.File, epubChapterPage, struct {
			epubChapter
			Lang string
		}{item, view.Lang})
	}
	return pw.close()
}

const epubContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

const epubCSS = `body {
  font-family: Georgia, "Times New Roman", serif;
  line-height: 1.5;
  margin: 0 5%;
}
p {
  text-align: justify;
  text-indent: 1.5em;
  margin: 0;
}
h1.chapter-title {
  page-break-before: always;
  break-before: page;
  text-align: center;
  margin: 3em 0 2em;
}
h1.chapter-title + p,
section.chapter > p:first-of-type {
  text-indent: 0;
}
.title-page {
  text-align: center;
  margin-top: 30%;
}
.title-page h1 {
  font-size: 2em;
  margin-bottom: 0.5em;
}
.title-page .author {
  font-style: italic;
  text-indent: 0;
  text-align: center;
}
.title-page .publisher {
  margin-top: 4em;
  text-indent: 0;
  text-align: center;
  font-size: 0.85em;
}
nav ol {
  list-style: none;
  padding: 0;
}
`

var epubOPF = template.Must(template.New("opf").Funcs(templateFuncs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="book-id" xml:lang="{{.Lang}}">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="book-id">{{x .Identifier}}</dc:identifier>
    <dc:title>{{x .Title}}</dc:title>
{{- if .Author}}
    <dc:creator>{{x .Author}}</dc:creator>
{{- end}}
{{- if .Publisher}}
    <dc:publisher>{{x .Publisher}}</dc:publisher>
{{- end}}
    <dc:language>{{.Lang}}</dc:language>
    <meta property="dcterms:modified">{{.Modified}}</meta>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="css" href="styles/book.css" media-type="text/css"/>
    <item id="title" href="text/title.xhtml" media-type="application/xhtml+xml"/>
{{- range .Items}}
    <item id="{{.ID}}" href="text/{{.File}}" media-type="application/xhtml+xml"/>
{{- end}}
  </manifest>
  <spine toc="ncx">
    <itemref idref="title"/>
    <itemref idref="nav"/>
{{- range .Items}}
    <itemref idref="{{.ID}}"/>
{{- end}}
  </spine>
</package>
`))

var epubNav = template.Must(template.New("nav").Funcs(templateFuncs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops" xml:lang="{{.Lang}}" lang="{{.Lang}}">
<head>
  <meta charset="UTF-8"/>
  <title>{{x .TOCLabel}}</title>
  <link rel="stylesheet" type="text/css" href="styles/book.css"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>{{x .TOCLabel}}</h1>
    <ol>
      <li><a href="text/title.xhtml">{{x .Title}}</a></li>
{{- range .Items}}
      <li><a href="text/{{.File}}#{{.Anchor}}">{{x .Heading}}</a></li>
{{- end}}
    </ol>
  </nav>
</body>
</html>
`))

var epubNCX = template.Must(template.New("ncx").Funcs(templateFuncs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1" xml:lang="{{.Lang}}">
  <head>
    <meta name="dtb:uid" content="{{x .Identifier}}"/>
    <meta name="dtb:depth" content="1"/>
    <meta name="dtb:totalPageCount" content="0"/>
    <meta name="dtb:maxPageNumber" content="0"/>
  </head>
  <docTitle><text>{{x .Title}}</text></docTitle>
  <navMap>
    <navPoint id="nav-title" playOrder="1">
      <navLabel><text>{{x .Title}}</text></navLabel>
      <content src="text/title.xhtml"/>
    </navPoint>
{{- range .Items}}
    <navPoint id="nav-{{.ID}}" playOrder="{{inc .Number}}">
      <navLabel><text>{{x .Heading}}</text></navLabel>
      <content src="text/{{.File}}#{{.Anchor}}"/>
    </navPoint>
{{- end}}
  </navMap>
</ncx>
`))

var epubTitle = template.Must(template.New("title").Funcs(templateFuncs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="{{.Lang}}" lang="{{.Lang}}">
<head>
  <meta charset="UTF-8"/>
  <title>{{x .Title}}</title>
  <link rel="stylesheet" type="text/css" href="../styles/book.css"/>
</head>
<body>
  <section class="title-page">
    <h1>{{x .Title}}</h1>
{{- if .Author}}
    <p class="author">{{x .Byline}}</p>
{{- end}}
{{- if .Publisher}}
    <p class="publisher">{{x .Publisher}}</p>
{{- end}}
  </section>
</body>
</html>
`))

// 章节正文为 goldmark 生成的 XHTML，原样写入
var epubChapterPage = template.Must(template.New("chapter").Funcs(templateFuncs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops" xml:lang="{{.Lang}}" lang="{{.Lang}}">
<head>
  <meta charset="UTF-8"/>
  <title>{{x .Heading}}</title>
  <link rel="stylesheet" type="text/css" href="../styles/book.css"/>
</head>
<body>
  <section class="chapter" epub:type="chapter" id="{{.Anchor}}">
    <h1 class="chapter-title">{{x .Heading}}</h1>
{{.HTML}}
  </section>
</body>
</html>
`))
