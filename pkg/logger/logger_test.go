package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_IncludesContextFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")

	ctx := WithContext(context.Background(), JobIDKey, "job-1")
	ctx = WithContext(ctx, UserIDKey, "user-1")
	Info(ctx, "forward started", "action", "interview")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "forward started", line["msg"])
	assert.Equal(t, "job-1", line["job_id"])
	assert.Equal(t, "user-1", line["user_id"])
	assert.Equal(t, "interview", line["action"])
}

func TestDetach_KeepsFieldsDropsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(WithContext(context.Background(), RequestIDKey, "req-9"))
	cancel()

	detached := Detach(ctx)
	assert.NoError(t, detached.Err())
	assert.Equal(t, "req-9", detached.Value(RequestIDKey))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "INFO", parseLevel("nonsense").String())
}
