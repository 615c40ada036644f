package monitoring

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/logger"
)

var _ logger.Logger = (*ZapLogger)(nil)

// ZapLogger adapts zap to logger.Logger. Loggers derived through WithFields or
// WithComponent share the level of their parent.
type ZapLogger struct {
	l     *zap.Logger
	level zap.AtomicLevel
}

// NewZapLogger builds a JSON logger writing to stdout.
func NewZapLogger(cfg config.LogConfig) (*ZapLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	return &ZapLogger{
		l:     zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)),
		level: level,
	}, nil
}

// NewZapLoggerWithCore wraps an arbitrary core, e.g. zaptest/observer in tests.
func NewZapLoggerWithCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{
		l:     zap.New(core),
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

// SetLevel changes the level at runtime, e.g. after a config reload.
func (z *ZapLogger) SetLevel(level string) error {
	return z.level.UnmarshalText([]byte(level))
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.l.Sync()
}

func (z *ZapLogger) Debug(ctx context.Context, msg string, fields ...logger.Field) {
	z.l.Debug(msg, convertFields(ctx, fields)...)
}

func (z *ZapLogger) Info(ctx context.Context, msg string, fields ...logger.Field) {
	z.l.Info(msg, convertFields(ctx, fields)...)
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, fields ...logger.Field) {
	z.l.Warn(msg, convertFields(ctx, fields)...)
}

func (z *ZapLogger) Error(ctx context.Context, msg string, err error, fields ...logger.Field) {
	zf := convertFields(ctx, fields)
	if err != nil {
		zf = append(zf, zap.NamedError("error", err))
	}
	z.l.Error(msg, zf...)
}

func (z *ZapLogger) Fatal(ctx context.Context, msg string, err error, fields ...logger.Field) {
	zf := convertFields(ctx, fields)
	if err != nil {
		zf = append(zf, zap.NamedError("error", err))
	}
	z.l.Fatal(msg, zf...)
}

func (z *ZapLogger) WithFields(fields ...logger.Field) logger.Logger {
	return &ZapLogger{l: z.l.With(convertFields(context.Background(), fields)...), level: z.level}
}

func (z *ZapLogger) WithComponent(component string) logger.Logger {
	return &ZapLogger{l: z.l.With(zap.String("component", component)), level: z.level}
}

func convertFields(ctx context.Context, fields []logger.Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+2)
	if ctx != nil {
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok && requestID != "" {
			zapFields = append(zapFields, zap.String(string(constants.ContextKeyRequestID), requestID))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			zapFields = append(zapFields, zap.String(string(constants.ContextKeyTraceID), sc.TraceID().String()))
		} else if traceID, ok := ctx.Value(constants.ContextKeyTraceID).(string); ok && traceID != "" {
			zapFields = append(zapFields, zap.String(string(constants.ContextKeyTraceID), traceID))
		}
	}
	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, logger.Sanitize(f.Key, f.Value)))
	}
	return zapFields
}
