package piecepicker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinayydv3695/SeedCore/internal/bitfield"
	"github.com/vinayydv3695/SeedCore/internal/piece"
)

func fourPieces() []piece.Piece {
	return nPieces(4)
}

func nPieces(n int) []piece.Piece {
	var out []piece.Piece
	for i := 0; i < n; i++ {
		out = append(out, piece.Piece{
			Index:  i,
			Length: piece.BlockSize,
			Blocks: []piece.Block{{Index: 0, Begin: 0, Length: piece.BlockSize}},
		})
	}
	return out
}

func fullBitfield(n int) *bitfield.Bitfield {
	bf := bitfield.New(n)
	for i := 0; i < n; i++ {
		bf.Set(i)
	}
	return bf
}

func TestRarestFirstPrefersLeastAvailablePiece(t *testing.T) {
	assert := require.New(t)
	pk := New(fourPieces(), nil, RarestFirst, time.Minute)

	// peerA has every piece; peerC has every piece except 2, so piece 2 is
	// seen by only one peer while 0, 1 and 3 are seen by two.
	pk.AddPeer("peerA", fullBitfield(4))
	bfC := bitfield.New(4)
	bfC.Set(0)
	bfC.Set(1)
	bfC.Set(3)
	pk.AddPeer("peerC", bfC)

	reqs := pk.Select("peerA", 1)
	require.Len(t, reqs, 1)
	assert.Equal(2, reqs[0].PieceIndex, "piece 2 has availability 1 vs 2 for the rest, so it must be picked first")
}

func TestSequentialModeWalksInOrder(t *testing.T) {
	assert := require.New(t)
	pk := New(fourPieces(), nil, Sequential, time.Minute)
	pk.AddPeer("peerA", fullBitfield(4))

	reqs := pk.Select("peerA", 1)
	require.Len(t, reqs, 1)
	assert.Equal(0, reqs[0].PieceIndex)
}

func TestSelectSkipsAlreadyPendingBlockOutsideEndGame(t *testing.T) {
	// 25 remaining pieces keeps numPieces-completed above endGameThreshold.
	pk := New(nPieces(25), nil, RarestFirst, time.Minute)
	onlyPieceZero := func() *bitfield.Bitfield {
		bf := bitfield.New(25)
		bf.Set(0)
		return bf
	}
	pk.AddPeer("peerA", onlyPieceZero())
	pk.AddPeer("peerB", onlyPieceZero())

	first := pk.Select("peerA", 1)
	require.Len(t, first, 1)

	// The only block either peer can see is already pending on peerA; a
	// second peer gets nothing since end-game hasn't started yet.
	second := pk.Select("peerB", 1)
	require.Empty(t, second)
}

func TestEndGameAllowsDuplicateRequestUpToCap(t *testing.T) {
	assert := require.New(t)
	pk := New(fourPieces(), nil, RarestFirst, time.Minute) // 4 pieces, threshold 20 => always end-game
	pk.AddPeer("peerA", fullBitfield(4))
	pk.AddPeer("peerB", fullBitfield(4))
	pk.AddPeer("peerC", fullBitfield(4))

	first := pk.Select("peerA", 4)
	assert.Len(first, 4)
	second := pk.Select("peerB", 4)
	assert.Len(second, 4, "end-game allows a second requester per block")
	third := pk.Select("peerC", 4)
	assert.Empty(third, "a third duplicate requester is capped out")
}

func TestGotBlockReportsPieceDoneOnLastBlock(t *testing.T) {
	assert := require.New(t)
	pk := New(fourPieces(), nil, RarestFirst, time.Minute)
	assert.True(pk.GotBlock(0, 0))
}

func TestCompletePieceUpdatesCountAndDone(t *testing.T) {
	assert := require.New(t)
	pk := New(fourPieces(), nil, RarestFirst, time.Minute)
	assert.False(pk.Done())
	for i := 0; i < 4; i++ {
		pk.CompletePiece(i)
	}
	assert.Equal(4, pk.CompletedCount())
	assert.True(pk.Done())
}

func TestResetPieceClearsPendingBlocks(t *testing.T) {
	pk := New(fourPieces(), nil, RarestFirst, time.Minute)
	pk.AddPeer("peerA", fullBitfield(4))
	reqs := pk.Select("peerA", 1)
	require.Len(t, reqs, 1)

	pk.ResetPiece(reqs[0].PieceIndex)
	again := pk.Select("peerA", 1)
	require.Len(t, again, 1)
	require.Equal(t, reqs[0].PieceIndex, again[0].PieceIndex)
}

func TestHandleDisconnectReleasesRequestsAndAvailability(t *testing.T) {
	assert := require.New(t)
	pk := New(fourPieces(), nil, RarestFirst, time.Minute)
	pk.AddPeer("peerA", fullBitfield(4))
	reqs := pk.Select("peerA", 4)
	assert.Len(reqs, 4)

	pk.HandleDisconnect("peerA")

	pk.AddPeer("peerB", fullBitfield(4))
	again := pk.Select("peerB", 4)
	assert.Len(again, 4, "blocks freed by the disconnected peer must be re-selectable")
}

func TestTimedOutRequeuesStaleBlocks(t *testing.T) {
	assert := require.New(t)
	pk := New(fourPieces(), nil, RarestFirst, time.Millisecond)
	pk.AddPeer("peerA", fullBitfield(4))
	reqs := pk.Select("peerA", 1)
	require.Len(t, reqs, 1)

	time.Sleep(5 * time.Millisecond)
	timedOut := pk.TimedOut(time.Now())
	assert.Len(timedOut, 1)
	assert.Equal(reqs[0].PieceIndex, timedOut[0].PieceIndex)
}
