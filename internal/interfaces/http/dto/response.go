// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"w4u-wizard-api/pkg/errors"
	"w4u-wizard-api/pkg/logger"
)

// ErrorDetail 错误详情
type ErrorDetail struct {
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// OK 返回 200 与原始数据（接口约定的响应体不包信封）
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error 返回错误响应
func Error(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, ErrorResponse{
		Code:    httpCode,
		Message: message,
		TraceID: c.GetString("trace_id"),
	})
}

// AbortWithError 终止请求并返回错误响应，供中间件使用
func AbortWithError(c *gin.Context, httpCode int, message string) {
	c.AbortWithStatusJSON(httpCode, ErrorResponse{
		Code:    httpCode,
		Message: message,
		TraceID: c.GetString("trace_id"),
	})
}

// AppError 将错误映射为 HTTP 响应；非 AppError 一律按 500 处理。
// 5xx 的底层错误只写日志，不返回给调用方
func AppError(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)

	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), appErr.Message, err, "code", string(appErr.Code))
	}

	resp := ErrorResponse{
		Code:    appErr.HTTPStatus,
		Message: appErr.Message,
		Error:   &ErrorDetail{ErrorCode: string(appErr.Code)},
		TraceID: c.GetString("trace_id"),
	}
	if appErr.HTTPStatus < http.StatusInternalServerError {
		resp.Error.Details = appErr.Detail
	}
	c.JSON(appErr.HTTPStatus, resp)
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized 返回 401 错误
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// NotFound 返回 404 错误
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// InternalError 返回 500 错误
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// ServiceUnavailable 返回 503 错误
func ServiceUnavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, message)
}
