package renderer

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"w4u-wizard-api/internal/config"
)

// A4 纸张尺寸（英寸）
const (
	a4WidthIn  = "8.27"
	a4HeightIn = "11.7"
)

// NewGotenberg 创建 Gotenberg 渲染器（/forms/chromium/convert/html）
func NewGotenberg(cfg config.RendererConfig, httpClient *http.Client) Renderer {
	endpoint := strings.TrimRight(cfg.Endpoint, "/") + "/forms/chromium/convert/html"
	m := marginsFromConfig(cfg)
	token := cfg.Token

	build := func(ctx context.Context, doc Document) (*http.Request, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		files := []struct{ name, content string }{
			{"index.html", doc.HTML},
			{"header.html", wrapDocument(headerFragment(doc.HeaderText))},
			{"footer.html", wrapDocument(footerFragment())},
		}
		for _, f := range files {
			part, err := w.CreateFormFile("files", f.name)
			if err != nil {
				return nil, err
			}
			if _, err := part.Write([]byte(f.content)); err != nil {
				return nil, err
			}
		}

		fields := map[string]string{
			"paperWidth":        a4WidthIn,
			"paperHeight":       a4HeightIn,
			"marginTop":         cm(m.Top),
			"marginBottom":      cm(m.Bottom),
			"marginLeft":        cm(m.Side),
			"marginRight":       cm(m.Side),
			"printBackground":   "true",
			"preferCssPageSize": "false",
		}
		for k, v := range fields {
			if err := w.WriteField(k, v); err != nil {
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
		if err != nil {
			return nil, fmt.Errorf("failed to build gotenberg request: %w", err)
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, nil
	}

	return newHTTPRenderer(config.RendererGotenberg, cfg, httpClient, build)
}
