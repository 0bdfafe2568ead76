package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/hireboard/internal/config"
)

// Config is the observability view of the process configuration. The
// OTEL_* and LOG_* variables override what config.Config carries.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Log  LogSettings
	OTel OTelSettings
}

type LogSettings struct {
	Level  string
	Format string
}

type OTelSettings struct {
	Enabled        bool
	Endpoint       string
	Protocol       string
	TracesProtocol string
	SamplingRatio  float64
}

func LoadConfig(cfg config.Config) Config {
	env := lookupEnv(os.LookupEnv)

	service := strings.TrimSpace(cfg.AppName)
	if service == "" {
		service = "hireboard"
	}
	protocol := strings.ToLower(env.str("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))

	return Config{
		ServiceName: service,
		Environment: env.str("DEPLOYMENT_ENV", cfg.Environment),
		Version:     env.str("SERVICE_VERSION", cfg.AppVersion),
		Log: LogSettings{
			Level:  strings.ToLower(env.str("LOG_LEVEL", "info")),
			Format: strings.ToLower(env.str("LOG_FORMAT", "json")),
		},
		OTel: OTelSettings{
			Enabled:        env.boolean("OTEL_ENABLED", true),
			Endpoint:       env.str("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
			Protocol:       protocol,
			TracesProtocol: strings.ToLower(env.str("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", protocol)),
			SamplingRatio:  env.ratio("OTEL_SAMPLING_RATIO", 0.1),
		},
	}
}

// Debug is true for debug logging or a development environment.
func (c Config) Debug() bool {
	if c.Log.Level == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

type lookupEnv func(string) (string, bool)

func (l lookupEnv) str(key, def string) string {
	if value, ok := l(key); ok {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return strings.TrimSpace(def)
}

func (l lookupEnv) boolean(key string, def bool) bool {
	switch strings.ToLower(l.str(key, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

// ratio accepts values in [0, 1]; anything else falls back to def.
func (l lookupEnv) ratio(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(l.str(key, ""), 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return def
	}
	return parsed
}
