package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	AuthJWTIssuer string

	// BootstrapOperatorID is granted the operator role on startup.
	BootstrapOperatorID int64
	// SnowflakeNode overrides the binary's default id node (0..1023).
	SnowflakeNode int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBAutoMigrate     bool

	Stripe    StripeConfig
	Checkout  CheckoutConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Analytics AnalyticsConfig
	Jobs      JobsConfig
	Sweep     SweepConfig
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type CheckoutConfig struct {
	UpgradeURL string
	Currency   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled       bool
	CheckoutRate  float64
	CheckoutBurst int
}

type QueueConfig struct {
	Enabled  bool
	Name     string
	MaxRetry int
}

type AnalyticsConfig struct {
	PostHogKey      string
	PostHogEndpoint string
}

type JobsConfig struct {
	FreeWindowDays int
	PaidWindowDays int
}

type SweepConfig struct {
	Enabled      bool
	Interval     time.Duration
	PendingAfter time.Duration
	BatchSize    int
	LockTTL      time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:       getenv("APP_SERVICE", "hireboard"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer: strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		BootstrapOperatorID: getenvInt64("BOOTSTRAP_OPERATOR_ID", 0),
		SnowflakeNode:       getenvInt64("SNOWFLAKE_NODE", -1),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "hireboard"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "hireboard.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		DBConnMaxIdleTime: getenvDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),

		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		Checkout: CheckoutConfig{
			UpgradeURL: strings.TrimSpace(getenv("CHECKOUT_UPGRADE_URL", "/pricing")),
			Currency:   strings.ToLower(getenv("CHECKOUT_CURRENCY", "usd")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			CheckoutRate:  getenvFloat("RATE_LIMIT_CHECKOUT_RATE", 0.2),
			CheckoutBurst: getenvInt("RATE_LIMIT_CHECKOUT_BURST", 5),
		},
		Queue: QueueConfig{
			Enabled:  getenvBool("QUEUE_ENABLED", false),
			Name:     getenv("QUEUE_NAME", "promotions"),
			MaxRetry: getenvInt("QUEUE_MAX_RETRY", 5),
		},
		Analytics: AnalyticsConfig{
			PostHogKey:      strings.TrimSpace(getenv("POSTHOG_API_KEY", "")),
			PostHogEndpoint: strings.TrimSpace(getenv("POSTHOG_ENDPOINT", "https://eu.i.posthog.com")),
		},
		Jobs: JobsConfig{
			FreeWindowDays: getenvInt("JOB_FREE_WINDOW_DAYS", 30),
			PaidWindowDays: getenvInt("JOB_PAID_WINDOW_DAYS", 60),
		},
		Sweep: SweepConfig{
			Enabled:      getenvBool("SWEEP_ENABLED", true),
			Interval:     getenvDuration("SWEEP_INTERVAL", 10*time.Minute),
			PendingAfter: getenvDuration("SWEEP_PENDING_AFTER", 24*time.Hour),
			BatchSize:    getenvInt("SWEEP_BATCH_SIZE", 200),
			LockTTL:      getenvDuration("SWEEP_LOCK_TTL", 5*time.Minute),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

// IDNode builds the snowflake node for a binary. SNOWFLAKE_NODE wins over
// the binary's default so replicas of one binary can be told apart.
func IDNode(cfg Config, binaryDefault int64) (*snowflake.Node, error) {
	node := binaryDefault
	if cfg.SnowflakeNode >= 0 {
		node = cfg.SnowflakeNode
	}
	return snowflake.NewNode(node)
}
