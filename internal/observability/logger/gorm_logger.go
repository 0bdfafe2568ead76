package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the zap-backed GORM logger.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// Conflict reports errors the ledger expects on its unique guards
	// (payment_events, add_on_applications, purchases.external_session_id).
	// Matching errors are logged at warn instead of error.
	Conflict func(error) bool
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

type GormLogger struct {
	base *zap.Logger
	cfg  GormLoggerConfig
}

func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &GormLogger{base: base.Named("gorm"), cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	var fields []zap.Field
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := WithContext(ctx, l.base).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Trace logs one line per statement: failures always, slow statements at
// warn and everything else at debug when the level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.cfg.Level >= gormlogger.Info {
			l.query(ctx, zapcore.DebugLevel, "gorm.not_found", fc, elapsed, nil)
		}
	case err != nil && l.cfg.Conflict != nil && l.cfg.Conflict(err):
		if l.cfg.Level >= gormlogger.Warn {
			l.query(ctx, zapcore.WarnLevel, "gorm.conflict", fc, elapsed, err)
		}
	case err != nil:
		if l.cfg.Level >= gormlogger.Error {
			l.query(ctx, zapcore.ErrorLevel, "gorm.query_failed", fc, elapsed, err)
		}
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold:
		if l.cfg.Level >= gormlogger.Warn {
			l.query(ctx, zapcore.WarnLevel, "gorm.slow_query", fc, elapsed, nil)
		}
	case l.cfg.Level >= gormlogger.Info:
		l.query(ctx, zapcore.DebugLevel, "gorm.query", fc, elapsed, nil)
	}
}

// ParamsFilter drops bound values; user ids and session ids stay out of logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) query(ctx context.Context, level zapcore.Level, msg string, fc func() (string, int64), elapsed time.Duration, err error) {
	ce := WithContext(ctx, l.base).Check(level, msg)
	if ce == nil {
		return
	}
	sql, rows := fc()
	op, table := describeSQL(sql)
	fields := []zap.Field{
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", op),
		zap.String("table", table),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// describeSQL returns the statement verb and the first table it touches.
func describeSQL(sql string) (string, string) {
	tokens := strings.Fields(strings.TrimSpace(sql))
	op, table := "UNKNOWN", ""
	for i, raw := range tokens {
		token := strings.ToUpper(strings.Trim(raw, "();"))
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			if op == "UNKNOWN" {
				op = token
			}
			if token == "UPDATE" && table == "" && i+1 < len(tokens) {
				table = tableName(tokens[i+1])
			}
		case "FROM", "INTO":
			if table == "" && i+1 < len(tokens) {
				table = tableName(tokens[i+1])
			}
		}
		if op != "UNKNOWN" && table != "" {
			break
		}
	}
	return op, table
}

func tableName(token string) string {
	token = strings.Trim(token, "();`\"")
	if idx := strings.LastIndex(token, "."); idx >= 0 {
		token = token[idx+1:]
	}
	return strings.ToLower(token)
}

var _ gormlogger.Interface = (*GormLogger)(nil)
