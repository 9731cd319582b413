package magnet

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewParsesHexBTIH(t *testing.T) {
	assert := require.New(t)
	hash := "0123456789abcdef0123456789abcdef01234567"[:40]
	link := "magnet:?xt=urn:btih:" + hash + "&dn=Example&tr=http://tracker.example/announce&tr=udp://backup.example:80"

	m, err := New(link)
	assert.NoError(err)
	want, _ := hex.DecodeString(hash)
	assert.Equal(want, m.InfoHash[:])
	assert.Equal("Example", m.Name)
	assert.Equal([]string{"http://tracker.example/announce", "udp://backup.example:80"}, m.Trackers)
}

func TestNewParsesBase32BTIH(t *testing.T) {
	assert := require.New(t)
	// 32-char base32 encoding of a 20-byte hash.
	link := "magnet:?xt=urn:btih:CI2FM6A7KU5DE6EDNMZVC3LDNBUHYWSU"
	m, err := New(link)
	assert.NoError(err)
	assert.Len(m.InfoHash, 20)
}

func TestNewRejectsNonMagnetScheme(t *testing.T) {
	_, err := New("http://example.com/not-a-magnet")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestNewRejectsMissingBTIH(t *testing.T) {
	_, err := New("magnet:?dn=no-hash-here")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestNewRejectsMalformedHashLength(t *testing.T) {
	_, err := New("magnet:?xt=urn:btih:deadbeef")
	require.ErrorIs(t, err, ErrInvalid)
}
