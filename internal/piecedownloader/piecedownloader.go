// Package piecedownloader assembles the blocks of one piece as they arrive
// from (possibly several, in end-game) peers, generalized from the
// teacher's internal/downloader/piecedownloader/piecedownloader.go. The
// per-peer channel actor the teacher used is replaced by a plain buffer the
// engine's single run loop drives directly (internal/engine owns the
// map[pieceIndex]*Assembler), avoiding the peer/piece ownership cycle the
// design notes warn about (SPEC_FULL.md §9).
package piecedownloader

import (
	"bytes"
	"errors"

	"github.com/vinayydv3695/SeedCore/internal/piece"
)

// ErrUnknownBlock is returned when a peer delivers a block index outside
// the piece's layout.
var ErrUnknownBlock = errors.New("piecedownloader: unknown block index")

// Assembler buffers the blocks of one in-flight piece until every block has
// arrived (the "Piece assembly record" of spec.md §3).
type Assembler struct {
	Piece piece.Piece
	data  [][]byte

	// contributors records which peer key delivered each block, so a failed
	// hash verification can charge the corrupt piece to its source peers
	// (invariant 5, spec.md §3: banned after two corrupt pieces).
	contributors map[int]string
}

// New creates an assembler for pi with every block slot empty.
func New(pi piece.Piece) *Assembler {
	return &Assembler{Piece: pi, data: make([][]byte, len(pi.Blocks)), contributors: make(map[int]string)}
}

// PutBlock stores a block's bytes, attributing it to peerKey. It returns
// true once every block has been received.
func (a *Assembler) PutBlock(blockIndex int, peerKey string, data []byte) (bool, error) {
	if blockIndex < 0 || blockIndex >= len(a.data) {
		return false, ErrUnknownBlock
	}
	a.data[blockIndex] = data
	a.contributors[blockIndex] = peerKey
	for _, d := range a.data {
		if d == nil {
			return false, nil
		}
	}
	return true, nil
}

// Contributors returns the distinct peer keys that supplied at least one
// block of this piece, used to attribute a hash-mismatch failure.
func (a *Assembler) Contributors() []string {
	seen := make(map[string]struct{}, len(a.contributors))
	out := make([]string, 0, len(a.contributors))
	for _, k := range a.contributors {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// BlocksReceived reports how many of the piece's blocks have arrived so far.
func (a *Assembler) BlocksReceived() int {
	n := 0
	for _, d := range a.data {
		if d != nil {
			n++
		}
	}
	return n
}

// Bytes concatenates every block in order into the final piece buffer.
func (a *Assembler) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, a.Piece.Length))
	for _, d := range a.data {
		buf.Write(d)
	}
	return buf.Bytes()
}
