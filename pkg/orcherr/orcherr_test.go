package orcherr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKind_MatchesWrappedKind(t *testing.T) {
	err := ProviderTransport("boom", errors.New("dial tcp: timeout"))
	assert.True(t, IsKind(err, KindProviderTransport))
	assert.False(t, IsKind(err, KindProviderAuth))
}

func TestIsKind_FalseForPlainError(t *testing.T) {
	assert.False(t, IsKind(errors.New("plain"), KindConfiguration))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindSchemaViolation, "bad json", cause)
	assert.ErrorIs(t, err, cause)
}

func TestCancellation_PreservesContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Cancellation(ctx.Err())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsKind(err, KindCancellation))
}

func TestUnknownTool_MessageNamesTheTool(t *testing.T) {
	err := UnknownTool("FETCH_URL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_URL")
	assert.True(t, IsKind(err, KindUnknownTool))
}

func TestError_IsMatchesSameKindOnly(t *testing.T) {
	a := New(KindToolError, "step failed")
	b := New(KindToolError, "different message, same kind")
	c := New(KindToolStop, "different kind")
	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}
