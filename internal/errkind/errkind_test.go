package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesKind(t *testing.T) {
	assert := require.New(t)
	err := New(HashMismatch, "piece 4 failed verification")
	assert.True(Is(err, HashMismatch))
	assert.False(Is(err, AuthFailed))
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	assert := require.New(t)
	cause := errors.New("disk full")
	err := Wrap(IoFailure, "writing piece", cause)
	assert.True(Is(err, IoFailure))
	assert.ErrorIs(err, cause)
}

func TestIsDoesNotMatchFlattenedMessage(t *testing.T) {
	assert := require.New(t)
	inner := New(Locked, "vault is locked")
	outer := errors.New("save credential: " + inner.Error())
	// A plain errors.New doesn't carry Unwrap, so Is correctly reports no match.
	assert.False(Is(outer, Locked))
	assert.True(Is(inner, Locked))
}

func TestIsNilErrorIsFalse(t *testing.T) {
	require.False(t, Is(nil, InvalidInput))
}
