package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/hireboard/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareRecordsRouteAndUser(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/api/jobs/:id/feature", func(c *gin.Context) {
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), "1001"))
		_ = c.Error(errors.New("insert job failed\nstack detail"))
		c.Status(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/42/feature", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "HTTP POST /api/jobs/:id/feature", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.String("enduser.id", "1001"))
	assert.Contains(t, span.Attributes(), attribute.String("http.route", "/api/jobs/:id/feature"))

	require.Len(t, span.Events(), 1)
	var message string
	for _, attr := range span.Events()[0].Attributes {
		if attr.Key == "exception.message" {
			message = attr.Value.AsString()
		}
	}
	assert.Equal(t, "insert job failed", message)
}
