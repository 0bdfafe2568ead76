package observability

import (
	"testing"

	"github.com/smallbiznis/hireboard/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaultsFromAppConfig(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEPLOYMENT_ENV", "")

	cfg := LoadConfig(config.Config{
		AppName:      "hireboard-api",
		AppVersion:   "1.2.0",
		Environment:  "production",
		OTLPEndpoint: "collector:4317",
	})

	assert.Equal(t, "hireboard-api", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "collector:4317", cfg.OTel.Endpoint)
	assert.Equal(t, "grpc", cfg.OTel.TracesProtocol)
	assert.Equal(t, 0.1, cfg.OTel.SamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "1.5")
	t.Setenv("OTEL_ENABLED", "off")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := LoadConfig(config.Config{Environment: "production"})

	assert.Equal(t, "hireboard", cfg.ServiceName)
	assert.Equal(t, "http", cfg.OTel.Protocol)
	assert.Equal(t, "http", cfg.OTel.TracesProtocol)
	assert.Equal(t, 0.1, cfg.OTel.SamplingRatio)
	assert.False(t, cfg.OTel.Enabled)
	assert.True(t, cfg.Debug())
}
