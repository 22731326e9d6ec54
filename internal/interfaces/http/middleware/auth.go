// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"w4u-wizard-api/internal/infrastructure/identity"
	"w4u-wizard-api/internal/interfaces/http/dto"
	"w4u-wizard-api/pkg/logger"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Verifier 身份校验器
	Verifier identity.Verifier
	// Optional 为 true 时缺少 Token 的请求直接放行，携带的 Token 仍会校验
	Optional bool
}

// Auth 认证中间件，校验 Bearer Token 并注入 user_id
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 获取 Authorization Header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if cfg.Optional {
				c.Next()
				return
			}
			abortUnauthorized(c, "missing authorization header")
			return
		}

		// 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortUnauthorized(c, "invalid authorization format")
			return
		}

		if cfg.Verifier == nil {
			dto.AbortWithError(c, http.StatusServiceUnavailable, "identity provider unavailable")
			return
		}

		id, err := cfg.Verifier.Verify(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrProviderUnavailable):
				logger.Error(c.Request.Context(), "identity provider unavailable", err)
				dto.AbortWithError(c, http.StatusServiceUnavailable, "identity provider unavailable")
			case errors.Is(err, identity.ErrExpiredToken):
				abortUnauthorized(c, "token expired")
			default:
				abortUnauthorized(c, "invalid token")
			}
			return
		}

		// 注入用户信息到 Context
		c.Set("user_id", id.UserID)
		c.Set("role", id.Role)
		ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, id.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, msg string) {
	dto.AbortWithError(c, http.StatusUnauthorized, msg)
}
