// Package renderer 提供无头浏览器 PDF 渲染客户端
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"w4u-wizard-api/internal/config"
	"w4u-wizard-api/internal/infrastructure/retry"
	"w4u-wizard-api/pkg/metrics"
)

var tracer = otel.Tracer("renderer")

// PDF 输出上限
var maxPDFBytes int64 = 256 << 20

var (
	// ErrNotPDF 渲染服务返回的不是 PDF
	ErrNotPDF = errors.New("renderer returned a non-PDF payload")
	// ErrPDFTooLarge 渲染结果超过读取上限
	ErrPDFTooLarge = errors.New("rendered PDF exceeds size limit")
)

// Document 待渲染的 HTML 文档
type Document struct {
	// HTML 完整 HTML 文档
	HTML string
	// HeaderText 每页页眉文字（如 "作者 – 书名"）
	HeaderText string
}

// Renderer PDF 渲染接口
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// New 按配置创建渲染器
func New(cfg config.RendererConfig, httpClient *http.Client) (Renderer, error) {
	switch cfg.Provider {
	case config.RendererGotenberg:
		return NewGotenberg(cfg, httpClient), nil
	case config.RendererBrowserless:
		return NewBrowserless(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown renderer provider %q", cfg.Provider)
	}
}

// margins 页边距（厘米）
type margins struct {
	Top, Bottom, Side float64
}

func marginsFromConfig(cfg config.RendererConfig) margins {
	m := margins{Top: cfg.MarginTopCM, Bottom: cfg.MarginBottomCM, Side: cfg.MarginSideCM}
	if m.Top <= 0 {
		m.Top = 2.5
	}
	if m.Bottom <= 0 {
		m.Bottom = 2.5
	}
	if m.Side <= 0 {
		m.Side = 2
	}
	return m
}

func cm(v float64) string {
	return fmt.Sprintf("%gcm", v)
}

// requestBuilder 构建单次渲染请求
type requestBuilder func(ctx context.Context, doc Document) (*http.Request, error)

// httpRenderer 两种渲染服务共用的调用、超时与重试逻辑
type httpRenderer struct {
	provider   string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    retry.BackoffConfig
	build      requestBuilder
}

func newHTTPRenderer(provider string, cfg config.RendererConfig, httpClient *http.Client, build requestBuilder) *httpRenderer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpRenderer{
		provider:   provider,
		httpClient: httpClient,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    retry.FromConfig(cfg.Backoff),
		build:      build,
	}
}

// Render 渲染 PDF
func (r *httpRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "renderer.Render",
		trace.WithAttributes(
			attribute.String("renderer.provider", r.provider),
			attribute.Int("renderer.html_bytes", len(doc.HTML)),
		))
	defer span.End()

	start := time.Now()
	var pdf []byte
	err := retry.Do(ctx, r.maxRetries, r.backoff, func(attempt int) error {
		out, err := r.once(ctx, doc)
		if err != nil {
			return err
		}
		pdf = out
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	metrics.RendererDuration.WithLabelValues(r.provider, status).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("%s render failed: %w", r.provider, err)
	}
	span.SetAttributes(attribute.Int("renderer.pdf_bytes", len(pdf)))
	return pdf, nil
}

func (r *httpRenderer) once(ctx context.Context, doc Document) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := r.build(ctx, doc)
	if err != nil {
		return nil, &retry.Permanent{Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, err
	}
	tooLarge := int64(len(body)) > maxPDFBytes

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, &retry.Permanent{Err: statusErr}
	}

	if tooLarge {
		return nil, &retry.Permanent{Err: fmt.Errorf("%w (%d bytes)", ErrPDFTooLarge, maxPDFBytes)}
	}
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		return nil, &retry.Permanent{Err: ErrNotPDF}
	}
	return body, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}

// headerFragment Chromium 页眉模板片段，需要内联样式
func headerFragment(text string) string {
	return `<div style="width:100%;font-family:Georgia,serif;font-size:9px;color:#555;text-align:center;">` +
		html.EscapeString(text) + `</div>`
}

// footerFragment 页脚页码
func footerFragment() string {
	return `<div style="width:100%;font-family:Georgia,serif;font-size:9px;color:#555;text-align:center;">` +
		`<span class="pageNumber"></span></div>`
}

// wrapDocument 将片段包装为完整文档（Gotenberg 要求 header.html/footer.html 为完整 HTML）
func wrapDocument(fragment string) string {
	return "<!DOCTYPE html><html><head><meta charset=\"utf-8\"></head><body>" + fragment + "</body></html>"
}
