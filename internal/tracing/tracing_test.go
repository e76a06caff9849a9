package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`^[0-9A-F]{32}$`)

func TestNewID_Format(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.Regexp(t, idPattern, id)
		require.False(t, seen[id], "id %s generated twice", id)
		seen[id] = true
	}
}

func TestWithID_BindsIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithID(context.Background(), base, "tracing_id", "ABC123")

	id, ok := IDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "ABC123", id)

	Logger(ctx).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ABC123", line["tracing_id"])
	assert.Equal(t, "hello", line["message"])
}

func TestIDFromContext_Missing(t *testing.T) {
	_, ok := IDFromContext(context.Background())
	assert.False(t, ok)
}

func TestWithID_DoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	parent := context.Background()

	first := WithID(parent, base, "tracing_id", "FIRST")
	second := WithID(parent, base, "tracing_id", "SECOND")

	Logger(second).Info().Msg("b")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "SECOND", line["tracing_id"])

	id, _ := IDFromContext(first)
	assert.Equal(t, "FIRST", id)
	_, ok := IDFromContext(parent)
	assert.False(t, ok)
}
