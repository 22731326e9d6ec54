package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"w4u-wizard-api/internal/config"
)

// browserlessRequest Browserless /pdf 请求体
type browserlessRequest struct {
	HTML    string             `json:"html"`
	Options browserlessOptions `json:"options"`
}

type browserlessOptions struct {
	Format              string            `json:"format"`
	PrintBackground     bool              `json:"printBackground"`
	DisplayHeaderFooter bool              `json:"displayHeaderFooter"`
	HeaderTemplate      string            `json:"headerTemplate"`
	FooterTemplate      string            `json:"footerTemplate"`
	Margin              map[string]string `json:"margin"`
}

// NewBrowserless 创建 Browserless 渲染器（/pdf）
func NewBrowserless(cfg config.RendererConfig, httpClient *http.Client) Renderer {
	endpoint := strings.TrimRight(cfg.Endpoint, "/") + "/pdf"
	if cfg.Token != "" {
		endpoint += "?token=" + url.QueryEscape(cfg.Token)
	}
	m := marginsFromConfig(cfg)

	build := func(ctx context.Context, doc Document) (*http.Request, error) {
		body, err := json.Marshal(browserlessRequest{
			HTML: doc.HTML,
			Options: browserlessOptions{
				Format:              "A4",
				PrintBackground:     true,
				DisplayHeaderFooter: true,
				HeaderTemplate:      headerFragment(doc.HeaderText),
				FooterTemplate:      footerFragment(),
				Margin: map[string]string{
					"top":    cm(m.Top),
					"bottom": cm(m.Bottom),
					"left":   cm(m.Side),
					"right":  cm(m.Side),
				},
			},
		})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build browserless request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/pdf")
		return req, nil
	}

	return newHTTPRenderer(config.RendererBrowserless, cfg, httpClient, build)
}
