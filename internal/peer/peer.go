// Package peer wraps a connected peerconn.Conn with the higher-level state
// the spec's Peer record names (§3): choke/interest bits, the remote's
// bitfield, EWMA rate meters and the snubbed flag, generalized from the
// teacher's peer-related fields in session/torrent.go.
package peer

import (
	"strings"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/vinayydv3695/SeedCore/internal/bitfield"
	"github.com/vinayydv3695/SeedCore/internal/peerconn"
)

// pipelineLimit is the default bound on outstanding requests we'll send to
// one peer (invariant 6, spec.md §3).
const pipelineLimit = 16

// Peer is one remote connection's accounting, independent of transport.
type Peer struct {
	*peerconn.Conn

	mu sync.Mutex

	AmChoking      bool
	AmInterested   bool
	PeerChoking    bool
	PeerInterested bool

	Bitfield *bitfield.Bitfield

	Outstanding int
	PipelineMax int

	Snubbed            bool
	OptimisticUnchoked bool
	Downloading        bool

	ClientName string

	BytesDownloadedInChokePeriod int64
	BytesUploadedInChokePeriod   int64

	connectedAt time.Time
	lastPieceAt time.Time

	downEWMA metrics.EWMA
	upEWMA   metrics.EWMA
}

// New wraps conn as a Peer, inferring the client name from the standard
// Azureus-style "-XX1234-" peer-id prefix (§6).
func New(conn *peerconn.Conn, numPieces int) *Peer {
	id := conn.ID()
	return &Peer{
		Conn:        conn,
		AmChoking:   true,
		PeerChoking: true,
		Bitfield:    bitfield.New(numPieces),
		PipelineMax: pipelineLimit,
		ClientName:  clientNameFromID(id),
		connectedAt: time.Now(),
		downEWMA:    metrics.NewEWMA1(),
		upEWMA:      metrics.NewEWMA1(),
	}
}

func clientNameFromID(id [20]byte) string {
	s := string(id[:])
	if len(s) >= 8 && s[0] == '-' {
		if end := strings.IndexByte(s[1:], '-'); end >= 0 {
			return s[1 : end+1]
		}
	}
	return "unknown"
}

// TickRates advances the EWMA meters; callers call this on a fixed tick
// (the engine's speedCounterTicker), not per-byte, matching go-metrics'
// design.
func (p *Peer) TickRates() {
	p.downEWMA.Tick()
	p.upEWMA.Tick()
}

// RecordDownload accounts n bytes of piece data received from this peer.
func (p *Peer) RecordDownload(n int64) {
	p.downEWMA.Update(n)
	p.mu.Lock()
	p.BytesDownloadedInChokePeriod += n
	p.lastPieceAt = time.Now()
	p.mu.Unlock()
}

// RecordUpload accounts n bytes of piece data sent to this peer.
func (p *Peer) RecordUpload(n int64) {
	p.upEWMA.Update(n)
	p.mu.Lock()
	p.BytesUploadedInChokePeriod += n
	p.mu.Unlock()
}

// DownloadRate and UploadRate return the 1-minute EWMA in bytes/sec.
func (p *Peer) DownloadRate() float64 { return p.downEWMA.Rate() }
func (p *Peer) UploadRate() float64   { return p.upEWMA.Rate() }

// IdleFor reports how long it's been since the last piece was received,
// used to detect the "interested but not delivering for 60s" snub
// condition (§4.E).
func (p *Peer) IdleFor() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPieceAt.IsZero() {
		return time.Since(p.connectedAt)
	}
	return time.Since(p.lastPieceAt)
}

// CanRequest reports whether another outstanding request fits within the
// peer's advertised pipeline limit.
func (p *Peer) CanRequest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Outstanding < p.PipelineMax
}

func (p *Peer) AddOutstanding(n int) {
	p.mu.Lock()
	p.Outstanding += n
	p.mu.Unlock()
}
