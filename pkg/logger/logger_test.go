package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "orderflow/internal/core/context"
)

func TestFromContext_EnrichesWithTraceAndActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := &Logger{zap.New(core).Sugar()}

	ctx := appctx.WithTrace(context.Background(), &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithActor(ctx, &appctx.Actor{ID: "planner"})
	ctx = WithLogger(ctx, base)

	Info(ctx, "tranche recorded", "line_id", "l-1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "planner", fields["actor_id"])
	assert.Equal(t, "l-1", fields["line_id"])
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "loud", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.True(t, l.Desugar().Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Desugar().Core().Enabled(zap.DebugLevel))
}

func TestSetDefault_UsedWithoutContextLogger(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	core, logs := observer.New(zap.DebugLevel)
	SetDefault(&Logger{zap.New(core).Sugar()})

	Warn(context.Background(), "stock below threshold", "product", "FRM-100")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "stock below threshold", logs.All()[0].Message)
	assert.NotContains(t, logs.All()[0].ContextMap(), "actor_id")
}
