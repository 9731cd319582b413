// Package addrlist is the queue of candidate peer addresses a torrent dials
// from, deduplicated and tagged by where each address came from.
// Generalized from the teacher's internal/addrlist, whose shape is visible
// through its call sites in session/run.go (Push/Pop/Reset) and
// session/torrent.go (the addrList field); the DHT source is kept only as an
// enum value since DHT discovery itself is out of scope (SPEC_FULL.md §9).
package addrlist

import "net"

// PeerSource records where a candidate address was learned from.
type PeerSource int

const (
	Tracker PeerSource = iota
	Manual
	DHT
)

type entry struct {
	addr   *net.TCPAddr
	source PeerSource
}

// AddrList is a FIFO queue of not-yet-dialed addresses with dedup against
// addresses already queued or already dialed this session.
type AddrList struct {
	maxLen int
	queue  []entry
	seen   map[string]struct{}
}

// New creates an AddrList that holds at most maxLen queued addresses.
func New(maxLen int) *AddrList {
	return &AddrList{maxLen: maxLen, seen: make(map[string]struct{})}
}

// Push enqueues any of addrs not already seen, tagged with source. Once the
// queue reaches maxLen, further pushes are dropped (lowest priority: a full
// queue means we already have plenty of candidates to try).
func (l *AddrList) Push(addrs []*net.TCPAddr, source PeerSource) {
	for _, a := range addrs {
		key := a.String()
		if _, ok := l.seen[key]; ok {
			continue
		}
		if l.maxLen > 0 && len(l.queue) >= l.maxLen {
			return
		}
		l.seen[key] = struct{}{}
		l.queue = append(l.queue, entry{addr: a, source: source})
	}
}

// Pop removes and returns the next address to dial, or nil if empty.
func (l *AddrList) Pop() *net.TCPAddr {
	if len(l.queue) == 0 {
		return nil
	}
	e := l.queue[0]
	l.queue = l.queue[1:]
	return e.addr
}

// Len returns the number of queued, not-yet-dialed addresses.
func (l *AddrList) Len() int { return len(l.queue) }

// Reset clears the queue and the seen set, allowing previously-seen
// addresses to be re-learned (the engine calls it when a torrent is
// paused).
func (l *AddrList) Reset() {
	l.queue = nil
	l.seen = make(map[string]struct{})
}
