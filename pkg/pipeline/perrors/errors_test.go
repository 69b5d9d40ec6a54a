package perrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageFormatting(t *testing.T) {
	cause := errors.New("boom")
	e := New(KindIO, "op.name", cause)
	assert.Contains(t, e.Error(), "op.name")
	assert.Contains(t, e.Error(), "IoError")
	assert.Contains(t, e.Error(), "boom")

	f := Newf(KindCarWrite, "op2", "bad thing %d", 7)
	assert.Contains(t, f.Error(), "bad thing 7")
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	e := New(KindTransport, "op", cause)
	assert.Same(t, cause, errors.Unwrap(e))
}

func TestKindSentinelMatchesByKindOnly(t *testing.T) {
	e := New(KindAuthFailure, "cipher.flush", nil)
	assert.True(t, errors.Is(e, KindSentinel(KindAuthFailure)))
	assert.False(t, errors.Is(e, KindSentinel(KindIO)))
}

func TestToIOErrorPassesThroughIOKindUnwrapped(t *testing.T) {
	e := New(KindIO, "dirwalk.write", errors.New("disk full"))
	wrapped := ToIOError(e)
	assert.Same(t, error(e), wrapped, "a KindIO error travels as-is, no extra wrapping needed")
}

func TestToIOErrorWrapsNonIOKind(t *testing.T) {
	e := New(KindAuthFailure, "cipher.flush", nil)
	wrapped := ToIOError(e)
	require.Error(t, wrapped)
	assert.NotSame(t, error(e), wrapped)

	recovered := FromIOError(wrapped)
	var pe *Error
	require.True(t, errors.As(recovered, &pe))
	assert.Equal(t, KindAuthFailure, pe.Kind)
}

func TestToIOErrorNilIsNil(t *testing.T) {
	assert.NoError(t, ToIOError(nil))
}

func TestFromIOErrorPassesThroughNonPerrors(t *testing.T) {
	plain := errors.New("plain error")
	assert.Same(t, plain, FromIOError(plain))
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Kind(999).String())
}
