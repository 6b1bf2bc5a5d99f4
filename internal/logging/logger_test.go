package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WarnLevel, &buf)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn", map[string]interface{}{"proc_id": 1})
	logger.Error("error")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["message"])
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, float64(1), entries[0]["proc_id"])
	assert.Contains(t, entries[0]["caller"], "logging/logger_test.go")
	assert.Equal(t, "error", entries[1]["message"])
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(DebugLevel, &buf)
	child := base.WithField("num_proc", 4).WithError(errors.New("boom"))

	child.Info("evaluated")
	base.Info("plain")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, float64(4), entries[0]["num_proc"])
	assert.Equal(t, "boom", entries[0]["error"])
	assert.NotContains(t, entries[1], "num_proc")
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf).WithFormat(TextFormat)

	logger.Info("partition ready", map[string]interface{}{"proc_id": 2, "n_first": 10})

	line := buf.String()
	assert.Contains(t, line, "INFO  partition ready")
	assert.Less(t, strings.Index(line, "n_first=10"), strings.Index(line, "proc_id=2"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, logger.level)
	assert.Equal(t, TextFormat, logger.format)

	logger, err = NewLogger(nil)
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, logger.level)

	_, err = NewLogger(&Config{Format: "xml"})
	assert.Error(t, err)

	assert.Equal(t, InfoLevel, parseLevel("verbose"))
}

func TestZapAdapter(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZapLogger(New(InfoLevel, &buf)).With(zap.Int("proc_id", 3))

	zl.Debug("hidden")
	zl.Warn("evaluation failed",
		zap.Float64("objective", 1.5),
		zap.Bool("new_x", true),
		zap.Duration("took", 2*time.Millisecond),
		zap.Error(errors.New("nan")),
		zap.String("op", "objective"),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "WARN", e["level"])
	assert.Equal(t, float64(3), e["proc_id"])
	assert.Equal(t, 1.5, e["objective"])
	assert.Equal(t, true, e["new_x"])
	assert.Equal(t, "2ms", e["took"])
	assert.Equal(t, "nan", e["error"])
	assert.Equal(t, "objective", e["op"])
	assert.Contains(t, e["caller"], "logging/logger_test.go")
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := (&CtxLogger{New(InfoLevel, &buf)}).WithContext(context.Background())

	FromContext(ctx).Info("from context")
	assert.Contains(t, buf.String(), "from context")
	assert.NotNil(t, FromContext(context.Background()))
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(DebugLevel, &buf)

	handler := middleware.RequestID(Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusBadRequest)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", nil))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "inside", entries[0]["message"])
	assert.Equal(t, "/api/v1/evaluate", entries[0]["path"])
	assert.NotEmpty(t, entries[0]["request_id"])
	assert.Equal(t, "WARN", entries[1]["level"])
	assert.Equal(t, float64(http.StatusBadRequest), entries[1]["status"])
}
