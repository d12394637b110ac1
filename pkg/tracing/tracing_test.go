package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledIsNoop(t *testing.T) {
	require.NoError(t, Init(Config{Enabled: false}))
	assert.False(t, Enabled())

	ctx, span := StartSpan(context.Background(), "env.Step")
	defer span.End()
	_, _, ok := TraceFields(ctx)
	assert.False(t, ok)
}

func TestEnabledWritesSpans(t *testing.T) {
	out := filepath.Join(t.TempDir(), "spans.json")
	require.NoError(t, Init(Config{Enabled: true, ServiceName: "finreplay-test", Output: out}))
	assert.True(t, Enabled())

	ctx, span := StartSpan(context.Background(), "evaluation.split")
	traceID, spanID, ok := TraceFields(ctx)
	assert.True(t, ok)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, spanID)
	span.End()

	require.NoError(t, Shutdown(context.Background()))
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "evaluation.split")
	assert.False(t, Enabled())
}
