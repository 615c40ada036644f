package monitoring

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

func TestZapLogger_MasksSensitiveFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLoggerWithCore(core)

	log.Info(context.Background(), "logout",
		logger.String("token", "eyJhbGciOiJIUzI1NiJ9.payload.sig"),
		logger.String("token_hash", "0011223344556677"),
		logger.String("user_id", "u1"),
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "eyJh***.sig", fields["token"])
	assert.Equal(t, "0011223344556677", fields["token_hash"])
	assert.Equal(t, "u1", fields["user_id"])
}

func TestZapLogger_ErrorAndContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLoggerWithCore(core).WithComponent("registry")

	ctx := context.WithValue(context.Background(), constants.ContextKeyRequestID, "req-1")
	log.Error(ctx, "store failed", errors.ErrStoreUnavailable,
		logger.String(constants.LogFieldFailure, constants.FailureStoreUnavailable))

	entries := logs.FilterField(zapcore.Field{
		Key: constants.LogFieldFailure, Type: zapcore.StringType, String: constants.FailureStoreUnavailable,
	}).All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "registry", fields["component"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Contains(t, fields["error"], "unavailable")
}

func TestZapLogger_SetLevel(t *testing.T) {
	log, err := NewZapLogger(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, log.level.Enabled(zapcore.InfoLevel))

	child := log.WithComponent("x").(*ZapLogger)
	require.NoError(t, log.SetLevel("debug"))
	assert.True(t, child.level.Enabled(zapcore.DebugLevel), "children share the level")

	assert.Error(t, log.SetLevel("loud"))
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRateLimitDecision("auth", "allowed")
	m.RecordRateLimitDecision("auth", "denied")
	m.RecordRateLimitDecision("auth", "denied")
	m.RecordStoreFailure(constants.OpRateLimitCheck)
	m.RecordTokenRevocation(string(constants.RevocationReasonBulk))
	m.RecordBlacklistHit()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("auth", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreFailures.WithLabelValues(constants.OpRateLimitCheck)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRevocations.WithLabelValues("bulk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlacklistHits))

	// a second registry accepts the same collectors
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func TestTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(config.TracingConfig{Enabled: false}, logger.NewNoopLogger())
	require.NoError(t, err)

	ctx, span := tm.StartSpan(context.Background(), "op")
	defer span.End()
	assert.Empty(t, tm.GetTraceID(ctx))
	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tm := NewTracingManagerWithProvider(provider, logger.NewNoopLogger())

	ctx, span := tm.StartSpan(context.Background(), "registry.invalidate_all")
	assert.NotEmpty(t, tm.GetTraceID(ctx))
	tm.RecordError(ctx, errors.ErrStoreUnavailable)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "registry.invalidate_all", ended[0].Name())
	assert.NoError(t, tm.Shutdown(context.Background()))
}
