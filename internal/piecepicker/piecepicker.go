// Package piecepicker implements the piece selection contract of §4.B:
// rarest-first (default) or sequential piece order, a first-and-last bias
// useful for previews, and an end-game phase that tolerates duplicate block
// requests once a download is nearly done.
package piecepicker

import (
	"sort"
	"sync"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/bitfield"
	"github.com/vinayydv3695/SeedCore/internal/piece"
	"github.com/vinayydv3695/SeedCore/internal/storage"
)

// Mode selects the piece ordering strategy.
type Mode int

const (
	RarestFirst Mode = iota
	Sequential
)

// endGameThreshold is the remaining-piece count under which duplicate block
// requests are allowed to finish the last few pieces faster (§4.B).
const endGameThreshold = 20

// blockStatus is the per-block download state within a pieceState.
type blockStatus int

const (
	blockWant blockStatus = iota
	blockPending
	blockHave
)

// Request is one (piece, block) request to send to a specific peer.
type Request struct {
	PieceIndex int
	Begin      uint32
	Length     uint32
}

type requester struct {
	peer string
	at   time.Time
}

type pieceState struct {
	piece.Piece
	verified  bool
	started   bool // at least one block requested or received
	blocks    []blockStatus
	requested [][]requester // per-block list of peers with an outstanding request
}

// PiecePicker tracks local completion state, per-peer availability and
// outstanding block requests for one torrent.
type PiecePicker struct {
	mu sync.Mutex

	mode            Mode
	firstAndLast    bool
	blockTimeout    time.Duration
	storage         *storage.Storage
	numPieces       int
	completed       int
	pieces          []pieceState
	availability    []int
	buckets         [][]int // buckets[n] = piece indices currently seen by exactly n peers
	bucketPos       []int   // index of each piece within its current bucket
	peerBitfields   map[string]*bitfield.Bitfield
	sequentialFrom  int
}

// New builds a picker over the given static piece layout.
func New(pieces []piece.Piece, sto *storage.Storage, mode Mode, blockTimeout time.Duration) *PiecePicker {
	n := len(pieces)
	states := make([]pieceState, n)
	for i, p := range pieces {
		states[i] = pieceState{
			Piece:     p,
			blocks:    make([]blockStatus, len(p.Blocks)),
			requested: make([][]requester, len(p.Blocks)),
		}
	}
	pk := &PiecePicker{
		mode:          mode,
		blockTimeout:  blockTimeout,
		storage:       sto,
		numPieces:     n,
		pieces:        states,
		availability:  make([]int, n),
		buckets:       [][]int{make([]int, 0, n)},
		bucketPos:     make([]int, n),
		peerBitfields: make(map[string]*bitfield.Bitfield),
	}
	for i := range pk.bucketPos {
		pk.buckets[0] = append(pk.buckets[0], i)
		pk.bucketPos[i] = i
	}
	return pk
}

// SetMode switches between rarest-first and sequential selection.
func (pk *PiecePicker) SetMode(m Mode) {
	pk.mu.Lock()
	pk.mode = m
	pk.mu.Unlock()
}

// SetFirstAndLast toggles the preview bias (§4.B).
func (pk *PiecePicker) SetFirstAndLast(enabled bool) {
	pk.mu.Lock()
	pk.firstAndLast = enabled
	pk.mu.Unlock()
}

// MarkHave records a locally verified piece, e.g. restored from a trusted
// bitfield on resume, without going through the normal completion path.
func (pk *PiecePicker) MarkHave(index int) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	if pk.pieces[index].verified {
		return
	}
	pk.pieces[index].verified = true
	for b := range pk.pieces[index].blocks {
		pk.pieces[index].blocks[b] = blockHave
	}
	pk.completed++
	pk.removeFromBucket(index)
}

func (pk *PiecePicker) bucketOf(index int) int { return pk.availability[index] }

func (pk *PiecePicker) removeFromBucket(index int) {
	avail := pk.availability[index]
	if avail >= len(pk.buckets) {
		return
	}
	bucket := pk.buckets[avail]
	pos := pk.bucketPos[index]
	last := len(bucket) - 1
	bucket[pos] = bucket[last]
	pk.bucketPos[bucket[pos]] = pos
	pk.buckets[avail] = bucket[:last]
}

func (pk *PiecePicker) growBuckets(n int) {
	for len(pk.buckets) <= n {
		pk.buckets = append(pk.buckets, nil)
	}
}

func (pk *PiecePicker) bumpAvailability(index int, delta int) {
	if pk.pieces[index].verified {
		pk.availability[index] += delta
		return
	}
	pk.removeFromBucket(index)
	pk.availability[index] += delta
	if pk.availability[index] < 0 {
		pk.availability[index] = 0
	}
	pk.growBuckets(pk.availability[index])
	pk.buckets[pk.availability[index]] = append(pk.buckets[pk.availability[index]], index)
	pk.bucketPos[index] = len(pk.buckets[pk.availability[index]]) - 1
}

// AddPeer registers a peer's initial bitfield (sent once, immediately after
// handshake) and increments availability for every piece it has.
func (pk *PiecePicker) AddPeer(peerID string, bf *bitfield.Bitfield) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	pk.peerBitfields[peerID] = bf
	for i := 0; i < pk.numPieces; i++ {
		if bf.Test(i) {
			pk.bumpAvailability(i, 1)
		}
	}
}

// HandleHave records a peer's "have" announcement for a single piece.
func (pk *PiecePicker) HandleHave(peerID string, index int) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	bf, ok := pk.peerBitfields[peerID]
	if !ok {
		return
	}
	if bf.Test(index) {
		return
	}
	bf.Set(index)
	pk.bumpAvailability(index, 1)
}

// HandleDisconnect removes a peer's contribution to availability and frees
// any blocks it held outstanding requests for.
func (pk *PiecePicker) HandleDisconnect(peerID string) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	bf, ok := pk.peerBitfields[peerID]
	if ok {
		for i := 0; i < pk.numPieces; i++ {
			if bf.Test(i) {
				pk.bumpAvailability(i, -1)
			}
		}
		delete(pk.peerBitfields, peerID)
	}
	for i := range pk.pieces {
		pk.releasePeerFromPiece(i, peerID)
	}
}

func (pk *PiecePicker) releasePeerFromPiece(index int, peerID string) {
	ps := &pk.pieces[index]
	for b, reqs := range ps.requested {
		filtered := reqs[:0]
		for _, r := range reqs {
			if r.peer != peerID {
				filtered = append(filtered, r)
			}
		}
		ps.requested[b] = filtered
		if len(filtered) == 0 && ps.blocks[b] == blockPending {
			ps.blocks[b] = blockWant
		}
	}
}

// HandleCancelDownload releases all of a peer's outstanding requests for one
// piece, e.g. when its PieceDownloader is torn down.
func (pk *PiecePicker) HandleCancelDownload(peerID string, index int) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	pk.releasePeerFromPiece(index, peerID)
}

// HandleSnubbed is a hint that a peer is no longer a good source; the picker
// itself applies no extra penalty beyond what the caller (peer manager)
// already does by treating the peer as choked for selection purposes.
func (pk *PiecePicker) HandleSnubbed(peerID string, index int) {
	pk.HandleCancelDownload(peerID, index)
}

func (pk *PiecePicker) endGame() bool {
	return pk.numPieces-pk.completed <= endGameThreshold
}

// eligiblePieceIndices returns not-have pieces the peer has, ordered per the
// active mode. Sequential: ascending index. Rarest-first: partially-assembled
// pieces first, then the rest, each group in ascending availability with
// ties broken by ascending index.
func (pk *PiecePicker) eligiblePieceIndices(bf *bitfield.Bitfield) []int {
	var out []int
	if pk.mode == Sequential {
		for i := pk.sequentialFrom; i < pk.numPieces; i++ {
			if pk.pieceEligible(i, bf) {
				out = append(out, i)
			}
		}
		return out
	}
	for avail := 0; avail < len(pk.buckets); avail++ {
		bucket := append([]int(nil), pk.buckets[avail]...)
		sort.Ints(bucket)
		for _, idx := range bucket {
			if pk.pieceEligible(idx, bf) {
				out = append(out, idx)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := pk.pieces[out[i]].started, pk.pieces[out[j]].started
		if si != sj {
			return si // started pieces first
		}
		return false
	})
	return out
}

func (pk *PiecePicker) pieceEligible(index int, bf *bitfield.Bitfield) bool {
	ps := &pk.pieces[index]
	if ps.verified || !bf.Test(index) {
		return false
	}
	if pk.storage != nil && pk.storage.PieceSkipped(index, ps.Length) {
		return false
	}
	return true
}

// Select returns up to limit block requests to send to peerID, honoring the
// active mode, the first-and-last bias and end-game duplication.
func (pk *PiecePicker) Select(peerID string, limit int) []Request {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	bf, ok := pk.peerBitfields[peerID]
	if !ok || limit <= 0 {
		return nil
	}

	var out []Request
	endGame := pk.endGame()

	tryPiece := func(index int) {
		ps := &pk.pieces[index]
		for b := range ps.blocks {
			if len(out) >= limit {
				return
			}
			switch ps.blocks[b] {
			case blockHave:
				continue
			case blockPending:
				if !endGame {
					continue
				}
				if alreadyRequestedBy(ps.requested[b], peerID) {
					continue
				}
				if len(ps.requested[b]) >= 2 {
					continue // cap duplicate requesters even in end-game
				}
			}
			ps.blocks[b] = blockPending
			ps.started = true
			ps.requested[b] = append(ps.requested[b], requester{peer: peerID, at: time.Now()})
			blk := ps.Blocks[b]
			out = append(out, Request{PieceIndex: index, Begin: blk.Begin, Length: blk.Length})
		}
	}

	if pk.firstAndLast && pk.completed < 4 && pk.numPieces > 0 {
		for _, idx := range []int{0, pk.numPieces - 1} {
			if len(out) >= limit {
				break
			}
			if pk.pieceEligible(idx, bf) {
				tryPiece(idx)
			}
		}
	}

	for _, idx := range pk.eligiblePieceIndices(bf) {
		if len(out) >= limit {
			break
		}
		tryPiece(idx)
	}
	return out
}

func alreadyRequestedBy(reqs []requester, peerID string) bool {
	for _, r := range reqs {
		if r.peer == peerID {
			return true
		}
	}
	return false
}

// TimedOut returns blocks whose oldest outstanding request exceeds
// blockTimeout, re-queuing them as blockWant so they get re-selected.
func (pk *PiecePicker) TimedOut(now time.Time) []Request {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	var out []Request
	for i := range pk.pieces {
		ps := &pk.pieces[i]
		if ps.verified {
			continue
		}
		for b := range ps.blocks {
			if ps.blocks[b] != blockPending || len(ps.requested[b]) == 0 {
				continue
			}
			oldest := ps.requested[b][0].at
			for _, r := range ps.requested[b] {
				if r.at.Before(oldest) {
					oldest = r.at
				}
			}
			if now.Sub(oldest) > pk.blockTimeout {
				ps.blocks[b] = blockWant
				ps.requested[b] = nil
				blk := ps.Blocks[b]
				out = append(out, Request{PieceIndex: i, Begin: blk.Begin, Length: blk.Length})
			}
		}
	}
	return out
}

// GotBlock marks a block as delivered. It returns true once every block of
// the piece has data, signalling the caller to assemble and hash-verify.
func (pk *PiecePicker) GotBlock(index, blockIndex int) (pieceDone bool) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	ps := &pk.pieces[index]
	ps.blocks[blockIndex] = blockHave
	for _, st := range ps.blocks {
		if st != blockHave {
			return false
		}
	}
	return true
}

// ResetPiece reverts a piece to blockWant for every block, used when hash
// verification fails and the piece must be re-downloaded (§4.C HashMismatch).
func (pk *PiecePicker) ResetPiece(index int) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	ps := &pk.pieces[index]
	for b := range ps.blocks {
		ps.blocks[b] = blockWant
		ps.requested[b] = nil
	}
}

// CompletePiece marks a piece verified-have, removing it from availability
// bucket bookkeeping (invariant 2, spec.md §3).
func (pk *PiecePicker) CompletePiece(index int) {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	ps := &pk.pieces[index]
	if ps.verified {
		return
	}
	ps.verified = true
	pk.completed++
	pk.removeFromBucket(index)
}

// Done reports whether every piece has been verified.
func (pk *PiecePicker) Done() bool {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	return pk.completed == pk.numPieces
}

// CompletedCount returns the number of verified pieces.
func (pk *PiecePicker) CompletedCount() int {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	return pk.completed
}
