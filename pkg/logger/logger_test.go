package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})

	assert.Same(t, l, l.Ctx(context.Background()))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	l.Ctx(ctx).Info("handled", "status", 200)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "handled", entry["message"])
}

func TestRequestIDFrom_Empty(t *testing.T) {
	_, ok := RequestIDFrom(ContextWithRequestID(context.Background(), ""))
	assert.False(t, ok)
}
