package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// 版面常量（twips，1 英寸 = 1440）
const (
	docxMargin          = 1440
	docxFirstLineIndent = 720
	docxPageWidthA4     = 11906
	docxPageHeightA4    = 16838
)

// DOCXAssembler 生成 Word 文档：标题页、带内部链接的目录、每章一节
type DOCXAssembler struct{}

// NewDOCXAssembler 创建 DOCX 组装器
func NewDOCXAssembler() *DOCXAssembler {
	return &DOCXAssembler{}
}

func (a *DOCXAssembler) Format() Format { return FormatDOCX }

// BookmarkName 章节书签名，目录链接与章节标题共用
func BookmarkName(ch ManuscriptChapter) string {
	return "_" + ch.Anchor
}

// Assemble 写出 DOCX 包
func (a *DOCXAssembler) Assemble(ctx context.Context, m *Manuscript, w io.Writer) error {
	document, err := buildDocumentXML(ctx, m)
	if err != nil {
		return err
	}

	pw := newPackageWriter(w, m.Modified)
	pw.deflate("[Content_Types].xml", []byte(docxContentTypes))
	pw.deflate("_rels/.rels", []byte(docxRootRels))
	pw.deflate("docProps/core.xml", []byte(buildCoreXML(m)))
	pw.deflate("docProps/app.xml", []byte(docxAppXML))
	pw.deflate("word/_rels/document.xml.rels", []byte(docxDocumentRels))
	pw.deflate("word/styles.xml", []byte(docxStyles))
	pw.deflate("word/settings.xml", []byte(docxSettings))
	pw.deflate("word/header1.xml", []byte(buildHeaderXML(m.HeaderText())))
	pw.deflate("word/footer1.xml", []byte(docxFooter))
	pw.deflate("word/document.xml", []byte(document))
	return pw.close()
}

// docxBody document.xml 正文构建器
type docxBody struct {
	b strings.Builder
}

func (d *docxBody) raw(s string) {
	d.b.WriteString(s)
}

func (d *docxBody) run(text, rPr string) {
	d.b.WriteString("<w:r>")
	if rPr != "" {
		d.b.WriteString("<w:rPr>" + rPr + "</w:rPr>")
	}
	d.b.WriteString(`<w:t xml:space="preserve">`)
	d.b.WriteString(xmlEscape(text))
	d.b.WriteString("</w:t></w:r>")
}

// paragraph 单 run 段落
func (d *docxBody) paragraph(pPr, text, rPr string) {
	d.b.WriteString("<w:p>")
	if pPr != "" {
		d.b.WriteString("<w:pPr>" + pPr + "</w:pPr>")
	}
	if text != "" {
		d.run(text, rPr)
	}
	d.b.WriteString("</w:p>")
}

func (d *docxBody) pageBreak() {
	d.b.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
}

const centered = `<w:jc w:val="center"/>`

func buildDocumentXML(ctx context.Context, m *Manuscript) (string, error) {
	var d docxBody
	d.raw(docxDocumentOpen)

	// 标题页
	d.paragraph(`<w:spacing w:before="2880" w:after="0"/>`, "", "")
	d.paragraph(`<w:pStyle w:val="Title"/>`+centered, m.Title, `<w:b/><w:sz w:val="56"/><w:szCs w:val="56"/>`)
	if byline := m.Byline(); byline != "" {
		d.paragraph(centered+`<w:spacing w:before="240"/>`, byline, `<w:i/><w:sz w:val="32"/><w:szCs w:val="32"/>`)
	}
	if m.Publisher != "" {
		d.paragraph(centered+`<w:spacing w:before="1440"/>`, m.Publisher, `<w:sz w:val="22"/><w:szCs w:val="22"/>`)
	}
	d.pageBreak()

	// 目录
	d.paragraph(`<w:pStyle w:val="TOCHeading"/>`+centered, m.Locale.TOCLabel, "")
	for _, ch := range m.Chapters {
		d.raw(`<w:p><w:pPr><w:pStyle w:val="TOC1"/></w:pPr>`)
		d.raw(fmt.Sprintf(`<w:hyperlink w:anchor="%s" w:history="1">`, BookmarkName(ch)))
		d.run(ch.Heading, `<w:rStyle w:val="Hyperlink"/>`)
		d.raw(`</w:hyperlink></w:p>`)
	}

	// 正文，每章前强制分页
	for i, ch := range m.Chapters {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		d.pageBreak()

		d.raw(`<w:p><w:pPr><w:pStyle w:val="Heading1"/>` + centered + `</w:pPr>`)
		d.raw(fmt.Sprintf(`<w:bookmarkStart w:id="%d" w:name="%s"/>`, i, BookmarkName(ch)))
		d.run(ch.Heading, "")
		d.raw(fmt.Sprintf(`<w:bookmarkEnd w:id="%d"/>`, i))
		d.raw(`</w:p>`)

		for _, line := range ExtractLines(ch.HTML) {
			d.paragraph(fmt.Sprintf(`<w:ind w:firstLine="%d"/><w:jc w:val="both"/>`, docxFirstLineIndent), line, "")
		}
	}

	d.raw(fmt.Sprintf(`<w:sectPr>`+
		`<w:headerReference w:type="default" r:id="rIdHeader1"/>`+
		`<w:footerReference w:type="default" r:id="rIdFooter1"/>`+
		`<w:pgSz w:w="%d" w:h="%d"/>`+
		`<w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="720" w:footer="720" w:gutter="0"/>`+
		`</w:sectPr>`,
		docxPageWidthA4, docxPageHeightA4, docxMargin, docxMargin, docxMargin, docxMargin))
	d.raw(docxDocumentClose)

	return d.b.String(), nil
}

// blockElements 提取文本时视为换行的元素
var blockElements = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "hr": true, "table": true, "tr": true,
}

// ExtractLines 从 HTML 中提取非空文本行：块级标签转为换行，实体反转义，行内空白合并
func ExtractLines(fragment string) []string {
	if strings.TrimSpace(fragment) == "" {
		return nil
	}

	var text strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return splitLines(text.String())
		case html.TextToken:
			text.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockElements[string(name)] {
				text.WriteByte('\n')
			}
		}
	}
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func buildCoreXML(m *Manuscript) string {
	created := m.Modified.UTC().Format("2006-01-02T15:04:05Z")
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + xmlEscape(m.Title) + `</dc:title>` +
		`<dc:creator>` + xmlEscape(m.Author) + `</dc:creator>` +
		`<dc:language>` + xmlEscape(m.Language()) + `</dc:language>` +
		`<dc:identifier>` + xmlEscape(m.Identifier) + `</dc:identifier>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + created + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + created + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

func buildHeaderXML(text string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:p><w:pPr><w:pStyle w:val="Header"/>` + centered + `</w:pPr>` +
		`<w:r><w:rPr><w:sz w:val="18"/></w:rPr><w:t xml:space="preserve">` + xmlEscape(text) + `</w:t></w:r></w:p>` +
		`</w:hdr>`
}

const docxDocumentOpen = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><w:body>`

const docxDocumentClose = `</w:body></w:document>`

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
  <Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
  <Override PartName="/word/settings.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.settings+xml"/>
  <Override PartName="/word/header1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.header+xml"/>
  <Override PartName="/word/footer1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>
  <Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>
  <Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>
</Types>`

const docxRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>
  <Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/extended-properties" Target="docProps/app.xml"/>
</Relationships>`

const docxDocumentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rIdStyles" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
  <Relationship Id="rIdSettings" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/settings" Target="settings.xml"/>
  <Relationship Id="rIdHeader1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/header" Target="header1.xml"/>
  <Relationship Id="rIdFooter1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer" Target="footer1.xml"/>
</Relationships>`

const docxAppXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties"><Application>W4U Wizard</Application></Properties>`

const docxSettings = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:settings xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:defaultTabStop w:val="720"/>
  <w:compat><w:compatSetting w:name="compatibilityMode" w:uri="http://schemas.microsoft.com/office/word" w:val="15"/></w:compat>
</w:settings>`

// footer 居中 PAGE 域
const docxFooter = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:ftr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
	`<w:p><w:pPr><w:pStyle w:val="Footer"/><w:jc w:val="center"/></w:pPr>` +
	`<w:r><w:fldChar w:fldCharType="begin"/></w:r>` +
	`<w:r><w:instrText xml:space="preserve"> PAGE </w:instrText></w:r>` +
	`<w:r><w:fldChar w:fldCharType="separate"/></w:r>` +
	`<w:r><w:t>1</w:t></w:r>` +
	`<w:r><w:fldChar w:fldCharType="end"/></w:r>` +
	`</w:p></w:ftr>`

const docxStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:docDefaults>
    <w:rPrDefault><w:rPr><w:rFonts w:ascii="Georgia" w:hAnsi="Georgia" w:cs="Georgia"/><w:sz w:val="24"/><w:szCs w:val="24"/></w:rPr></w:rPrDefault>
    <w:pPrDefault><w:pPr><w:spacing w:after="120" w:line="360" w:lineRule="auto"/></w:pPr></w:pPrDefault>
  </w:docDefaults>
  <w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
  <w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:pPr><w:jc w:val="center"/></w:pPr><w:rPr><w:sz w:val="56"/></w:rPr></w:style>
  <w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:pPr><w:keepNext/><w:spacing w:before="480" w:after="480"/><w:outlineLvl w:val="0"/></w:pPr><w:rPr><w:b/><w:sz w:val="36"/></w:rPr></w:style>
  <w:style w:type="paragraph" w:styleId="TOCHeading"><w:name w:val="TOC Heading"/><w:basedOn w:val="Normal"/><w:pPr><w:spacing w:after="360"/></w:pPr><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>
  <w:style w:type="paragraph" w:styleId="TOC1"><w:name w:val="toc 1"/><w:basedOn w:val="Normal"/></w:style>
  <w:style w:type="paragraph" w:styleId="Header"><w:name w:val="header"/><w:basedOn w:val="Normal"/></w:style>
  <w:style w:type="paragraph" w:styleId="Footer"><w:name w:val="footer"/><w:basedOn w:val="Normal"/></w:style>
  <w:style w:type="character" w:styleId="Hyperlink"><w:name w:val="Hyperlink"/><w:rPr><w:color w:val="1F3864"/><w:u w:val="single"/></w:rPr></w:style>
</w:styles>`
