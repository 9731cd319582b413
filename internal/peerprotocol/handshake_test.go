package peerprotocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadHandshakeRoundTrip(t *testing.T) {
	assert := require.New(t)
	h := &Handshake{}
	h.SetExtension(ExtensionBitFast)
	h.SetExtension(ExtensionBitExtension)
	copy(h.InfoHash[:], bytes.Repeat([]byte{0xAB}, 20))
	copy(h.PeerID[:], bytes.Repeat([]byte{0xCD}, 20))

	var buf bytes.Buffer
	assert.NoError(WriteHandshake(&buf, h))
	assert.Equal(HandshakeLength, buf.Len())

	got, err := ReadHandshake(&buf)
	assert.NoError(err)
	assert.Equal(h.InfoHash, got.InfoHash)
	assert.Equal(h.PeerID, got.PeerID)
	assert.True(got.HasExtension(ExtensionBitFast))
	assert.True(got.HasExtension(ExtensionBitExtension))
	assert.False(got.HasExtension(0))
}

func TestReadHandshakeRejectsWrongProtocolString(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(3)
	buf.WriteString("abc")
	buf.Write(make([]byte, 48))

	_, err := ReadHandshake(&buf)
	require.ErrorIs(t, err, ErrInvalidProtocol)
}

func TestSetExtensionIsIdempotentAndIsolatedPerBit(t *testing.T) {
	assert := require.New(t)
	h := &Handshake{}
	h.SetExtension(ExtensionBitFast)
	h.SetExtension(ExtensionBitFast)
	assert.True(h.HasExtension(ExtensionBitFast))
	assert.False(h.HasExtension(ExtensionBitExtension))
}
