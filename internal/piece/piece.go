// Package piece defines the per-piece block layout shared by the piece
// picker, peer link and disk manager: a Piece is split into fixed-size
// Blocks (16 KiB, shorter for the final block of the final piece).
package piece

import "github.com/vinayydv3695/SeedCore/internal/metainfo"

// BlockSize is the unit of request on the wire (§4.B).
const BlockSize = 16 * 1024

// Block is a byte-range request/response unit within a Piece.
type Block struct {
	Index  int // piece-relative block index
	Begin  uint32
	Length uint32
}

// Piece is the static block layout for one piece of a torrent; it carries
// no mutable download state (that lives in piecepicker.pieceState).
type Piece struct {
	Index  int
	Length uint32
	Blocks []Block
}

// FromInfo derives each piece's block layout from the metainfo, splitting
// the last piece's trailing block correctly for a total length that isn't a
// multiple of BlockSize.
func FromInfo(info *metainfo.Info) []Piece {
	pieces := make([]Piece, info.NumPieces)
	for i := range pieces {
		length := uint32(info.PieceLength)
		if i == info.NumPieces-1 {
			rem := info.TotalLength - int64(i)*info.PieceLength
			length = uint32(rem)
		}
		pieces[i] = Piece{
			Index:  i,
			Length: length,
			Blocks: blocksFor(i, length),
		}
	}
	return pieces
}

func blocksFor(pieceIndex int, length uint32) []Block {
	n := int((length + BlockSize - 1) / BlockSize)
	blocks := make([]Block, n)
	for i := 0; i < n; i++ {
		begin := uint32(i) * BlockSize
		l := uint32(BlockSize)
		if begin+l > length {
			l = length - begin
		}
		blocks[i] = Block{Index: i, Begin: begin, Length: l}
	}
	return blocks
}
