package tracker

import (
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"net"
	"time"
)

// connectMagic is the fixed protocol_id for the connect request (BEP 15).
const connectMagic = 0x41727101980

const (
	actionConnect  int32 = 0
	actionAnnounce int32 = 1
	actionError    int32 = 3
)

// ErrTransactionMismatch is returned when a UDP reply's transaction id
// doesn't match the one we sent, the core integrity check BEP 15 mandates.
var ErrTransactionMismatch = errors.New("tracker: udp transaction id mismatch")

// udpTracker implements BEP 15: a connect/announce two-step over UDP with
// validated transaction ids (§6).
type udpTracker struct {
	addr    *net.UDPAddr
	rawURL  string
	timeout time.Duration

	connectionID int64
	connectedAt  time.Time
}

func newUDPTracker(rawURL string, timeout time.Duration) (*udpTracker, error) {
	u, err := urlHostPort(rawURL)
	if err != nil {
		return nil, err
	}
	addr, err := net.ResolveUDPAddr("udp", u)
	if err != nil {
		return nil, err
	}
	return &udpTracker{addr: addr, rawURL: rawURL, timeout: timeout}, nil
}

func (u *udpTracker) URL() string { return u.rawURL }

// connectionValidity is how long a connection id from BEP 15 may be reused
// before a fresh connect is required.
const connectionValidity = 60 * time.Second

func (u *udpTracker) Announce(ctx context.Context, t *Torrent) (*Response, error) {
	conn, err := net.DialUDP("udp", nil, u.addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(u.timeout))
	}

	if time.Since(u.connectedAt) > connectionValidity {
		cid, err := u.connect(conn)
		if err != nil {
			return nil, err
		}
		u.connectionID = cid
		u.connectedAt = time.Now()
	}
	return u.announce(conn, t)
}

func (u *udpTracker) connect(conn *net.UDPConn) (int64, error) {
	txID := rand.Int31()
	req := make([]byte, 16)
	binary.BigEndian.PutUint64(req[0:8], connectMagic)
	binary.BigEndian.PutUint32(req[8:12], uint32(actionConnect))
	binary.BigEndian.PutUint32(req[12:16], uint32(txID))
	if _, err := conn.Write(req); err != nil {
		return 0, err
	}

	resp := make([]byte, 16)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, err
	}
	if n < 16 {
		return 0, errors.New("tracker: udp connect response too short")
	}
	action := int32(binary.BigEndian.Uint32(resp[0:4]))
	gotTx := int32(binary.BigEndian.Uint32(resp[4:8]))
	if gotTx != txID {
		return 0, ErrTransactionMismatch
	}
	if action == actionError {
		return 0, errors.New("tracker: udp connect error: " + string(resp[8:n]))
	}
	if action != actionConnect {
		return 0, errors.New("tracker: udp unexpected action in connect response")
	}
	return int64(binary.BigEndian.Uint64(resp[8:16])), nil
}

func (u *udpTracker) announce(conn *net.UDPConn, t *Torrent) (*Response, error) {
	txID := rand.Int31()
	req := make([]byte, 98)
	binary.BigEndian.PutUint64(req[0:8], uint64(u.connectionID))
	binary.BigEndian.PutUint32(req[8:12], uint32(actionAnnounce))
	binary.BigEndian.PutUint32(req[12:16], uint32(txID))
	copy(req[16:36], t.InfoHash[:])
	copy(req[36:56], t.PeerID[:])
	binary.BigEndian.PutUint64(req[56:64], uint64(t.Downloaded))
	binary.BigEndian.PutUint64(req[64:72], uint64(t.Left))
	binary.BigEndian.PutUint64(req[72:80], uint64(t.Uploaded))
	binary.BigEndian.PutUint32(req[80:84], uint32(udpEvent(t.Event)))
	// IP address (0 = let tracker use sender's), key, num_want (-1 = default).
	binary.BigEndian.PutUint32(req[84:88], 0)
	binary.BigEndian.PutUint32(req[88:92], rand.Uint32())
	numWant := int32(-1)
	if t.NumWant > 0 {
		numWant = int32(t.NumWant)
	}
	binary.BigEndian.PutUint32(req[92:96], uint32(numWant))
	binary.BigEndian.PutUint16(req[96:98], uint16(t.Port))

	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	resp := make([]byte, 20+6*100) // room for up to 100 compact peers.
	n, err := conn.Read(resp)
	if err != nil {
		return nil, err
	}
	if n < 20 {
		return nil, errors.New("tracker: udp announce response too short")
	}
	action := int32(binary.BigEndian.Uint32(resp[0:4]))
	gotTx := int32(binary.BigEndian.Uint32(resp[4:8]))
	if gotTx != txID {
		return nil, ErrTransactionMismatch
	}
	if action == actionError {
		return nil, errors.New("tracker: udp announce error: " + string(resp[8:n]))
	}
	if action != actionAnnounce {
		return nil, errors.New("tracker: udp unexpected action in announce response")
	}

	interval := binary.BigEndian.Uint32(resp[8:12])
	leechers := binary.BigEndian.Uint32(resp[12:16])
	seeders := binary.BigEndian.Uint32(resp[16:20])
	peerBytes := resp[20:n]
	peers, err := decodeCompactBinary(peerBytes)
	if err != nil {
		return nil, err
	}
	return &Response{
		Interval:   time.Duration(interval) * time.Second,
		Leechers:   int(leechers),
		Seeders:    int(seeders),
		Complete:   int(seeders),
		Incomplete: int(leechers),
		Peers:      peers,
	}, nil
}

func decodeCompactBinary(b []byte) ([]*net.TCPAddr, error) {
	if len(b)%6 != 0 {
		b = b[:len(b)-len(b)%6]
	}
	n := len(b) / 6
	out := make([]*net.TCPAddr, 0, n)
	for i := 0; i < n; i++ {
		ip := net.IP(append([]byte(nil), b[i*6:i*6+4]...))
		port := binary.BigEndian.Uint16(b[i*6+4 : i*6+6])
		out = append(out, &net.TCPAddr{IP: ip, Port: int(port)})
	}
	return out, nil
}

func udpEvent(e Event) int32 {
	switch e {
	case EventCompleted:
		return 1
	case EventStarted:
		return 2
	case EventStopped:
		return 3
	default:
		return 0
	}
}

func urlHostPort(rawURL string) (string, error) {
	const prefix = "udp://"
	if len(rawURL) < len(prefix) || rawURL[:len(prefix)] != prefix {
		return "", errors.New("tracker: not a udp url")
	}
	rest := rawURL[len(prefix):]
	for i, c := range rest {
		if c == '/' {
			rest = rest[:i]
			break
		}
	}
	return rest, nil
}
