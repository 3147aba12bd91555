package api

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leozerbib/gile-back-sub001/internal/observability"
)

type capturedLog struct {
	msg    string
	fields map[string]interface{}
}

type captureLogger struct {
	observability.Logger
	mu     sync.Mutex
	infos  []capturedLog
	errors []capturedLog
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{Logger: observability.NewNopLogger()}
}

func (l *captureLogger) Info(msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, capturedLog{msg: msg, fields: fields})
}

func (l *captureLogger) Error(msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, capturedLog{msg: msg, fields: fields})
}

func (l *captureLogger) WithPrefix(string) observability.Logger { return l }

func TestRequestIDGenerated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	id := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestRequestIDEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "caller-chosen")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "caller-chosen", w.Header().Get("X-Request-ID"))
}

func TestRequestLoggerRecordsOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := newCaptureLogger()
	r := gin.New()
	r.Use(RequestID(), RequestLogger(logger))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Len(t, logger.infos, 1)
	entry := logger.infos[0]
	assert.Equal(t, "GET", entry.fields["method"])
	assert.Equal(t, "/ping", entry.fields["path"])
	assert.Equal(t, http.StatusOK, entry.fields["status"])
	assert.NotEmpty(t, entry.fields["request_id"])
}

func TestRequestLoggerFlagsServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := newCaptureLogger()
	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Empty(t, logger.infos)
	require.Len(t, logger.errors, 1)
	assert.Equal(t, http.StatusInternalServerError, logger.errors[0].fields["status"])
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := newCaptureLogger()
	r := gin.New()
	r.Use(Recovery(logger))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success": false, "message": "internal server error"}`, w.Body.String())
	require.Len(t, logger.errors, 1)
	assert.Contains(t, logger.errors[0].fields["panic"], "boom")
}
