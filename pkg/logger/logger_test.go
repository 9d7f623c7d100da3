package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsRequestAndUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithUserID(ctx, "u1")
	FromContext(ctx, base).Info("view served")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "u1", UserID(ctx))
}

func TestFromContextWithoutValuesReturnsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, FromContext(context.Background(), base))
}

func TestNewFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "loud", Encoding: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}
