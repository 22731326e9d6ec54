// Package webhook 提供外部工作流 Webhook 客户端
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"w4u-wizard-api/internal/config"
	"w4u-wizard-api/internal/infrastructure/retry"
	"w4u-wizard-api/pkg/metrics"
)

var tracer = otel.Tracer("webhook")

// 响应体读取上限
var maxResponseBytes int64 = 8 << 20

var (
	// ErrMissingURL 未配置 Webhook 地址
	ErrMissingURL = errors.New("webhook url is not configured")
	// ErrMalformedResponse 响应体不是合法 JSON
	ErrMalformedResponse = errors.New("webhook returned a non-JSON response")
	// ErrResponseTooLarge 响应体超过读取上限
	ErrResponseTooLarge = errors.New("webhook response exceeds size limit")
)

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook responded with status %d: %s", e.StatusCode, e.Body)
}

// Client Webhook 客户端
type Client struct {
	httpClient   *http.Client
	endpoint     string
	endpointErr  error
	apiKey       string
	apiKeyHeader string
	secret       string
	secretHeader string
	timeout      time.Duration
	maxRetries   int
	backoff      retry.BackoffConfig
	limiter      *rate.Limiter
}

// NewClient 创建 Webhook 客户端
// 地址解析失败不会阻止启动，错误在每次调用时返回并记录到任务
func NewClient(cfg config.WebhookConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "X-API-Key"
	}
	if cfg.SecretHeader == "" {
		cfg.SecretHeader = "X-Webhook-Secret"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	endpoint, err := ResolveURL(cfg.URL, cfg.BaseURL)

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Client{
		httpClient:   httpClient,
		endpoint:     endpoint,
		endpointErr:  err,
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		secret:       cfg.Secret,
		secretHeader: cfg.SecretHeader,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		backoff:      retry.FromConfig(cfg.Backoff),
		limiter:      limiter,
	}
}

// ResolveURL 解析 Webhook 地址：绝对地址原样返回，相对路径基于 base 解析
func ResolveURL(raw, base string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}

	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("relative webhook url %q requires webhook.base_url", raw)
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return "", fmt.Errorf("invalid webhook base url %q", base)
	}
	return b.ResolveReference(u).String(), nil
}

// Post 发送 JSON 请求并返回原始响应体
// 传输错误与 5xx 按退避重试；4xx 与非 JSON 响应立即失败
func (c *Client) Post(ctx context.Context, action string, body any) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "webhook.Post",
		trace.WithAttributes(attribute.String("webhook.action", action)))
	defer span.End()

	if c.endpointErr != nil {
		span.RecordError(c.endpointErr)
		return nil, c.endpointErr
	}

	payload, err := json.Marshal(body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	start := time.Now()
	var result json.RawMessage
	err = retry.Do(ctx, c.maxRetries, c.backoff, func(attempt int) error {
		span.SetAttributes(attribute.Int("webhook.attempt", attempt))
		raw, err := c.do(ctx, payload)
		if err != nil {
			return err
		}
		result = raw
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	metrics.WebhookDuration.WithLabelValues(action, status).Observe(time.Since(start).Seconds())

	return result, err
}

// do 执行单次请求
func (c *Client) do(ctx context.Context, payload []byte) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &retry.Permanent{Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &retry.Permanent{Err: fmt.Errorf("failed to build webhook request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}
	if c.secret != "" {
		req.Header.Set(c.secretHeader, c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}
	tooLarge := int64(len(raw)) > maxResponseBytes

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(raw)), 512)}
		if resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, &retry.Permanent{Err: statusErr}
	}

	if tooLarge {
		return nil, &retry.Permanent{Err: fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, maxResponseBytes)}
	}
	if !json.Valid(raw) {
		return nil, &retry.Permanent{Err: ErrMalformedResponse}
	}
	return json.RawMessage(raw), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
