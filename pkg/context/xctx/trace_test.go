package xctx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xlogpipe/pkg/context/xctx"
)

func TestTraceFields(t *testing.T) {
	tests := []struct {
		name   string
		setter func(context.Context, string) (context.Context, error)
		getter func(context.Context) string
	}{
		{"TraceID", xctx.WithTraceID, xctx.TraceID},
		{"SpanID", xctx.WithSpanID, xctx.SpanID},
		{"RequestID", xctx.WithRequestID, xctx.RequestID},
		{"TraceFlags", xctx.WithTraceFlags, xctx.TraceFlags},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, tt.getter(context.Background()))

			ctx, err := tt.setter(context.Background(), "v1")
			require.NoError(t, err)
			assert.Equal(t, "v1", tt.getter(ctx))

			var nilCtx context.Context
			_, err = tt.setter(nilCtx, "v")
			assert.ErrorIs(t, err, xctx.ErrNilContext)
			assert.Empty(t, tt.getter(nilCtx))
		})
	}
}

func TestRequireTraceID(t *testing.T) {
	_, err := xctx.RequireTraceID(context.Background())
	assert.ErrorIs(t, err, xctx.ErrMissingTraceID)

	ctx, _ := xctx.WithTraceID(context.Background(), "abc")
	v, err := xctx.RequireTraceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestEnsureTraceID(t *testing.T) {
	ctx, err := xctx.EnsureTraceID(context.Background())
	require.NoError(t, err)
	id := xctx.TraceID(ctx)
	assert.Len(t, id, 2*xctx.TraceIDSize)

	again, err := xctx.EnsureTraceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, xctx.TraceID(again))

	assert.Len(t, xctx.GenerateSpanID(), 2*xctx.SpanIDSize)
}
