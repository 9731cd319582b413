package metainfo

import (
	"bytes"
	"crypto/sha1" //nolint:gosec
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

func rawInfoBytes(t *testing.T, fields map[string]interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bencode.NewEncoder(&buf).Encode(fields))
	return buf.Bytes()
}

func TestNewInfoSingleFile(t *testing.T) {
	assert := require.New(t)
	raw := rawInfoBytes(t, map[string]interface{}{
		"name":         "example.iso",
		"piece length": int64(16384),
		"pieces":       string(make([]byte, 40)),
		"length":       int64(20000),
	})

	info, err := NewInfo(raw)
	assert.NoError(err)
	assert.Equal("example.iso", info.Name)
	assert.Equal(2, info.NumPieces)
	assert.Equal(int64(20000), info.TotalLength)
	assert.Equal(sha1.Sum(raw), info.Hash) //nolint:gosec
	assert.False(info.Private)
}

func TestNewInfoMultiFileLengthIsSumOfFiles(t *testing.T) {
	assert := require.New(t)
	raw := rawInfoBytes(t, map[string]interface{}{
		"name":         "pack",
		"piece length": int64(16384),
		"pieces":       string(make([]byte, 20)),
		"files": []map[string]interface{}{
			{"path": []string{"a.txt"}, "length": int64(100)},
			{"path": []string{"b.txt"}, "length": int64(250)},
		},
	})

	info, err := NewInfo(raw)
	assert.NoError(err)
	assert.Equal(int64(350), info.TotalLength)
	assert.Len(info.Files, 2)
}

func TestNewInfoRejectsMalformedPieces(t *testing.T) {
	raw := rawInfoBytes(t, map[string]interface{}{
		"name":         "bad",
		"piece length": int64(16384),
		"pieces":       "not-a-multiple-of-twenty",
		"length":       int64(1),
	})
	_, err := NewInfo(raw)
	require.Error(t, err)
}

func TestNewInfoRejectsMissingName(t *testing.T) {
	raw := rawInfoBytes(t, map[string]interface{}{
		"piece length": int64(16384),
		"pieces":       string(make([]byte, 20)),
		"length":       int64(1),
	})
	_, err := NewInfo(raw)
	require.ErrorIs(t, err, ErrMissingField)
}

func TestNewDecodesFullTorrentAndPreservesInfoHash(t *testing.T) {
	assert := require.New(t)
	info := map[string]interface{}{
		"name":         "example.iso",
		"piece length": int64(16384),
		"pieces":       string(make([]byte, 20)),
		"length":       int64(1000),
	}
	var infoBuf bytes.Buffer
	assert.NoError(bencode.NewEncoder(&infoBuf).Encode(info))

	torrent := map[string]interface{}{
		"announce":      "http://tracker.example/announce",
		"announce-list": [][]string{{"http://tracker.example/announce"}, {"udp://backup.example:80"}},
		"info":          bencode.RawMessage(infoBuf.Bytes()),
		"comment":       "test torrent",
	}
	var buf bytes.Buffer
	assert.NoError(bencode.NewEncoder(&buf).Encode(torrent))

	mi, err := New(&buf)
	assert.NoError(err)
	assert.Equal("example.iso", mi.Info.Name)
	assert.Equal(sha1.Sum(infoBuf.Bytes()), mi.Info.Hash) //nolint:gosec
	assert.Equal([]string{"http://tracker.example/announce", "udp://backup.example:80"}, mi.GetTrackers())
}

func TestEncodeBytesRoundTrip(t *testing.T) {
	assert := require.New(t)
	info := map[string]interface{}{
		"name":         "roundtrip.bin",
		"piece length": int64(32768),
		"pieces":       string(make([]byte, 20)),
		"length":       int64(5000),
	}
	var infoBuf bytes.Buffer
	assert.NoError(bencode.NewEncoder(&infoBuf).Encode(info))

	mi := &Metainfo{
		RawInfo:  bencode.RawMessage(infoBuf.Bytes()),
		Announce: "http://tracker.example/announce",
	}
	parsedInfo, err := NewInfo(infoBuf.Bytes())
	assert.NoError(err)
	mi.Info = parsedInfo

	encoded, err := EncodeBytes(mi)
	assert.NoError(err)

	decoded, err := New(bytes.NewReader(encoded))
	assert.NoError(err)
	assert.Equal(mi.Info.Hash, decoded.Info.Hash)
	assert.Equal(mi.Announce, decoded.Announce)
}

func TestTiersFallsBackToAnnounce(t *testing.T) {
	mi := &Metainfo{Announce: "http://solo.example/announce"}
	require.Equal(t, [][]string{{"http://solo.example/announce"}}, mi.Tiers())
}
