package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ErrInvalidParam.HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, New(CodeTokenMissing, "token missing").HTTPStatus)
	assert.Equal(t, http.StatusForbidden, New(CodePermissionDenied, "denied").HTTPStatus)
	assert.Equal(t, http.StatusNotFound, ErrJobNotFound.HTTPStatus)
	// 导出数据缺失按服务端错误返回
	assert.Equal(t, http.StatusInternalServerError, ErrBookNotFound.HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, ErrChaptersNotFound.HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, ErrQueueFailed.HTTPStatus)
}

func TestAppError_WithDetailDoesNotMutateShared(t *testing.T) {
	e := ErrInvalidParam.WithDetail("bookId is required")
	assert.Equal(t, "bookId is required", e.Detail)
	assert.Empty(t, ErrInvalidParam.Detail)
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", ErrJobNotFound.WithError(stderrors.New("record not found")))
	assert.True(t, stderrors.Is(wrapped, ErrJobNotFound))
	assert.False(t, stderrors.Is(wrapped, ErrBookNotFound))
}

func TestExportFailed_Message(t *testing.T) {
	e := ExportFailed("DOCX", stderrors.New("zip closed"))
	assert.Equal(t, "Failed to generate DOCX", e.Message)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus)
}

func TestAsAppError_WrapsUnknown(t *testing.T) {
	e := AsAppError(stderrors.New("boom"))
	assert.Equal(t, CodeUnknown, e.Code)
	assert.True(t, IsAppError(fmt.Errorf("x: %w", ErrQueueFailed)))
}
