package bitfield

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetClearAndCount(t *testing.T) {
	assert := require.New(t)
	bf := New(10)
	assert.Equal(0, bf.Count())
	assert.False(bf.Test(0))

	bf.Set(0)
	bf.Set(9)
	assert.True(bf.Test(0))
	assert.True(bf.Test(9))
	assert.Equal(2, bf.Count())

	bf.Set(0) // idempotent
	assert.Equal(2, bf.Count())

	bf.Clear(0)
	assert.False(bf.Test(0))
	assert.Equal(1, bf.Count())
}

func TestAllReportsCompletion(t *testing.T) {
	assert := require.New(t)
	bf := New(3)
	assert.False(bf.All())
	bf.Set(0)
	bf.Set(1)
	bf.Set(2)
	assert.True(bf.All())
}

func TestNewBytesRoundTrip(t *testing.T) {
	assert := require.New(t)
	bf := New(12)
	bf.Set(0)
	bf.Set(5)
	bf.Set(11)

	restored, err := NewBytes(bf.Bytes(), 12)
	assert.NoError(err)
	assert.Equal(bf.Count(), restored.Count())
	for i := 0; i < 12; i++ {
		assert.Equal(bf.Test(i), restored.Test(i))
	}
}

func TestNewBytesRejectsNonZeroPadding(t *testing.T) {
	// length 5 packs into 1 byte with 3 padding bits; set one of them.
	b := []byte{0x07} // low 3 bits set, which are the padding bits for length 5
	_, err := NewBytes(b, 5)
	require.Error(t, err)
}

func TestNewBytesRejectsLengthMismatch(t *testing.T) {
	_, err := NewBytes([]byte{0x00}, 20)
	require.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	assert := require.New(t)
	bf := New(8)
	bf.Set(0)
	clone := bf.Clone()
	clone.Set(1)
	assert.False(bf.Test(1))
	assert.True(clone.Test(1))
}
