package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/hireboard/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

type MiddlewareConfig struct {
	// Logger defaults to the zap global.
	Logger          *zap.Logger
	Debug           bool
	ErrorClassifier func(err error) (errorType string, errorCode string)
}

// GinMiddleware stamps a request id on the context and writes one
// http_request line per request once the handler chain has run.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		base := cfg.Logger
		if base == nil {
			base = zap.L()
		}
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		var errorType string
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int64("bytes_out", max(int64(c.Writer.Size()), 0)),
		}
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			var errorCode string
			errorType, errorCode = cfg.ErrorClassifier(last.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		if ce := WithContext(c.Request.Context(), base).Check(requestLevel(route, status, errorType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestIDFor(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}

// requestLevel keeps expected ledger outcomes (out of credits, already
// applied, still active) out of the warn and error streams.
func requestLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status == http.StatusPaymentRequired || errorType == "insufficient_credits":
		return zapcore.DebugLevel
	case strings.HasPrefix(route, "/api/payments/webhooks") && status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
