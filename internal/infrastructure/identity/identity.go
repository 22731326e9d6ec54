// Package identity 提供 Bearer Token 校验
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"w4u-wizard-api/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	// ErrProviderUnavailable 身份提供方不可用，与无效 Token 区分
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Identity 已认证用户
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Verifier Token 校验接口
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// New 按配置创建校验器
func New(cfg config.SecurityConfig, httpClient *http.Client) (Verifier, error) {
	switch cfg.Identity.Mode {
	case config.IdentityModeJWT:
		if cfg.JWT.Secret == "" {
			return nil, fmt.Errorf("security.jwt.secret is required for identity mode %q", cfg.Identity.Mode)
		}
		return NewJWTVerifier(cfg.JWT), nil
	case config.IdentityModeRemote:
		if cfg.Identity.BaseURL == "" {
			return nil, fmt.Errorf("security.identity.base_url is required for identity mode %q", cfg.Identity.Mode)
		}
		return NewRemoteVerifier(cfg.Identity, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Identity.Mode)
	}
}
