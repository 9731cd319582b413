// Package tracker implements the HTTP(S) and UDP tracker announce
// protocols behind one Tracker interface, generalized from the teacher's
// internal/tracker/torrent.go announce-parameter struct (the teacher's
// excerpt stops at that struct; the HTTP/UDP client bodies below are
// written in its idiom against the same struct shape).
package tracker

import (
	"context"
	"net"
	"time"
)

// Event is the BEP 3 announce event.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventCompleted
	EventStopped
)

func (e Event) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventStopped:
		return "stopped"
	default:
		return ""
	}
}

// Torrent carries the per-announce parameters the teacher's
// internal/tracker/torrent.go struct named: info-hash, our peer-id, the
// counters BEP 3 requires, and the event being reported.
type Torrent struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       int
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
	NumWant    int
}

// Response is the normalized result of one announce, independent of
// transport (HTTP bencode vs UDP binary).
type Response struct {
	Interval   time.Duration
	MinInterval time.Duration
	Peers      []*net.TCPAddr
	Leechers   int
	Seeders    int
	Complete   int
	Incomplete int
	Warning    string
}

// Tracker is implemented by httpTracker and udpTracker; State (§4.F) is
// layered on top by internal/announcer, which owns the timing/retry state
// machine and only calls Announce here.
type Tracker interface {
	// URL returns the tracker's announce URL, used for tier bookkeeping and
	// display in get_tracker_list (§4.F, §6).
	URL() string
	Announce(ctx context.Context, t *Torrent) (*Response, error)
}

// New constructs an HTTP or UDP tracker client for rawURL, picking the
// implementation by scheme, per §6 ("HTTP(S)/UDP announce").
func New(rawURL string, timeout time.Duration, userAgent string) (Tracker, error) {
	scheme, err := schemeOf(rawURL)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "http", "https":
		return newHTTPTracker(rawURL, timeout, userAgent), nil
	case "udp":
		return newUDPTracker(rawURL, timeout)
	default:
		return nil, ErrUnsupportedScheme
	}
}
