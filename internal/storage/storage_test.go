package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinayydv3695/SeedCore/internal/metainfo"
)

func multiFileInfo() *metainfo.Info {
	return &metainfo.Info{
		Name:        "pack",
		PieceLength: 10,
		NumPieces:   3,
		TotalLength: 25,
		Files: []metainfo.File{
			{Path: []string{"a.bin"}, Length: 15},
			{Path: []string{"b.bin"}, Length: 10},
		},
	}
}

func TestWritePieceSpanningTwoFiles(t *testing.T) {
	assert := require.New(t)
	sto, err := New(t.TempDir(), multiFileInfo())
	assert.NoError(err)
	defer sto.Close()

	// Piece 1 covers bytes [10,20): bytes [10,15) land in a.bin (its tail),
	// bytes [15,20) land in b.bin (its head).
	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	assert.NoError(sto.WritePiece(1, 10, data))

	got, err := sto.ReadPiece(1, 10)
	assert.NoError(err)
	assert.Equal(data, got)

	assert.Equal(int64(5), sto.Files()[0].BytesComplete())
	assert.Equal(int64(5), sto.Files()[1].BytesComplete())
}

func TestWritePieceTailPieceShorterThanPieceLength(t *testing.T) {
	assert := require.New(t)
	sto, err := New(t.TempDir(), multiFileInfo())
	assert.NoError(err)
	defer sto.Close()

	// Piece 2 is the final piece: total length 25, piece length 10, so it's
	// only 5 bytes and falls entirely within b.bin.
	data := []byte{1, 2, 3, 4, 5}
	assert.NoError(sto.WritePiece(2, 5, data))

	got, err := sto.ReadPiece(2, 5)
	assert.NoError(err)
	assert.Equal(data, got)
	assert.Equal(int64(5), sto.Files()[1].BytesComplete())
}

func TestReadPieceOfUnwrittenRegionReadsZero(t *testing.T) {
	assert := require.New(t)
	sto, err := New(t.TempDir(), multiFileInfo())
	assert.NoError(err)
	defer sto.Close()

	got, err := sto.ReadPiece(0, 10)
	assert.NoError(err)
	assert.Equal(make([]byte, 10), got)
}

func TestWritePieceSkipsSkipPriorityFile(t *testing.T) {
	assert := require.New(t)
	sto, err := New(t.TempDir(), multiFileInfo())
	assert.NoError(err)
	defer sto.Close()

	sto.Files()[1].SetPriority(Skip)
	data := make([]byte, 10)
	assert.NoError(sto.WritePiece(1, 10, data))

	assert.Equal(int64(5), sto.Files()[0].BytesComplete())
	assert.Equal(int64(0), sto.Files()[1].BytesComplete())
}

func TestPieceSkippedWhenEveryOverlappingFileIsSkip(t *testing.T) {
	assert := require.New(t)
	sto, err := New(t.TempDir(), multiFileInfo())
	assert.NoError(err)
	defer sto.Close()

	assert.False(sto.PieceSkipped(2, 5))
	sto.Files()[1].SetPriority(Skip)
	assert.True(sto.PieceSkipped(2, 5), "piece 2 falls entirely within b.bin")
	assert.False(sto.PieceSkipped(0, 10), "piece 0 falls entirely within a.bin, still Normal priority")
}

func TestReadRangeWithinPiece(t *testing.T) {
	assert := require.New(t)
	sto, err := New(t.TempDir(), multiFileInfo())
	assert.NoError(err)
	defer sto.Close()

	data := []byte{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	assert.NoError(sto.WritePiece(0, 10, data))

	got, err := sto.ReadRange(0, 3, 4)
	assert.NoError(err)
	assert.Equal(data[3:7], got)
}

func TestBytesCompleteNeverExceedsSize(t *testing.T) {
	sto, err := New(t.TempDir(), multiFileInfo())
	require.NoError(t, err)
	defer sto.Close()

	f := sto.Files()[1]
	f.addComplete(100)
	require.Equal(t, f.Size, f.BytesComplete())
}
