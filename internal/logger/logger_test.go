package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriter_JSONCarriesRequestID(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	require.NoError(t, InitWriter(&buf, "json", "debug"))

	ctx := WithRequestID(context.Background(), "req-42")
	Debug(ctx, "balance fetched", "status", 200)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "balance fetched", line["msg"])
	assert.Equal(t, "req-42", line["request_id"])
	assert.EqualValues(t, 200, line["status"])
}

func TestInitWriter_RejectsUnknownValues(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	assert.Error(t, InitWriter(&buf, "xml", "INFO"))
	assert.Error(t, InitWriter(&buf, "json", "TRACE"))
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}
