package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"text/template"
	"time"
)

// xmlEscape 转义 XML 文本，非法字符替换为 U+FFFD
func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

var templateFuncs = template.FuncMap{
	"x":   xmlEscape,
	"inc": func(i int) int { return i + 1 },
}

// packageWriter zip 容器写入，记录第一个错误
type packageWriter struct {
	zw       *zip.Writer
	modified time.Time
	err      error
}

func newPackageWriter(w io.Writer, modified time.Time) *packageWriter {
	return &packageWriter{zw: zip.NewWriter(w), modified: modified}
}

// store 不压缩写入（EPUB mimetype 要求）
func (p *packageWriter) store(name string, data []byte) {
	p.write(&zip.FileHeader{Name: name, Method: zip.Store, Modified: p.modified}, data)
}

func (p *packageWriter) deflate(name string, data []byte) {
	p.write(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: p.modified}, data)
}

func (p *packageWriter) template(name string, tmpl *template.Template, data any) {
	if p.err != nil {
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		p.err = err
		return
	}
	p.deflate(name, buf.Bytes())
}

func (p *packageWriter) write(hdr *zip.FileHeader, data []byte) {
	if p.err != nil {
		return
	}
	w, err := p.zw.CreateHeader(hdr)
	if err != nil {
		p.err = err
		return
	}
	_, p.err = w.Write(data)
}

// close 结束 zip，返回过程中的第一个错误
func (p *packageWriter) close() error {
	if p.err != nil {
		return p.err
	}
	return p.zw.Close()
}
