package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/hireboard/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		Logger: zap.New(core),
		ErrorClassifier: func(err error) (string, string) {
			return "payment_required", err.Error()
		},
	}))
	var seen string
	r.POST("/api/jobs", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		_ = c.Error(errors.New("insufficient_credits"))
		c.Status(http.StatusPaymentRequired)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "http_request", entry.Message)
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "/api/jobs", fields["route"])
	assert.Equal(t, "payment_required", fields["error_type"])
	assert.Equal(t, "req-42", fields["request_id"])
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, _ := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{Logger: zap.New(core)}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/jobs", 500, ""))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", 200, ""))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/payments/webhooks/:provider", 400, ""))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/admin/reports/summary", 403, ""))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/jobs/:id/addons", 409, "conflict"))
}
