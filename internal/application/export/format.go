// Package export 将书籍与章节组装为 EPUB、DOCX 和 PDF 文档
package export

import (
	"context"
	"io"
	"strings"
)

// Format 导出格式
type Format string

const (
	FormatEPUB Format = "epub"
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
)

// ParseFormat 解析导出格式，大小写不敏感
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatEPUB, FormatDOCX, FormatPDF:
		return f, true
	default:
		return "", false
	}
}

// Extension 文件扩展名
func (f Format) Extension() string {
	return string(f)
}

// Label 错误信息中使用的大写名称
func (f Format) Label() string {
	return strings.ToUpper(string(f))
}

// ContentType 下载响应的 MIME 类型
func (f Format) ContentType() string {
	switch f {
	case FormatEPUB:
		return "application/epub+zip"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Assembler 格式组装器，将文稿写入 w
type Assembler interface {
	Format() Format
	Assemble(ctx context.Context, m *Manuscript, w io.Writer) error
}
