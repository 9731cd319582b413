package tracker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/zeebo/bencode"
)

// ErrUnsupportedScheme is returned by New for anything other than
// http(s)/udp (§6, §4.F).
var ErrUnsupportedScheme = errors.New("tracker: unsupported scheme")

func schemeOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Scheme, nil
}

// httpTracker implements the GET-based HTTP(S) announce protocol (§6):
// query parameters info_hash, peer_id, port, uploaded, downloaded, left,
// compact=1, event; bencoded response with interval and compact 6-byte
// peer entries.
type httpTracker struct {
	rawURL    string
	client    *http.Client
	userAgent string
}

func newHTTPTracker(rawURL string, timeout time.Duration, userAgent string) *httpTracker {
	return &httpTracker{
		rawURL:    rawURL,
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (h *httpTracker) URL() string { return h.rawURL }

type httpAnnounceResponse struct {
	FailureReason string             `bencode:"failure reason"`
	Warning       string             `bencode:"warning message"`
	Interval      int64              `bencode:"interval"`
	MinInterval   int64              `bencode:"min interval"`
	Complete      int64              `bencode:"complete"`
	Incomplete    int64              `bencode:"incomplete"`
	Peers         bencode.RawMessage `bencode:"peers"`
}

func (h *httpTracker) Announce(ctx context.Context, t *Torrent) (*Response, error) {
	u, err := url.Parse(h.rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("info_hash", string(t.InfoHash[:]))
	q.Set("peer_id", string(t.PeerID[:]))
	q.Set("port", strconv.Itoa(t.Port))
	q.Set("uploaded", strconv.FormatInt(t.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(t.Downloaded, 10))
	q.Set("left", strconv.FormatInt(t.Left, 10))
	q.Set("compact", "1")
	if t.NumWant > 0 {
		q.Set("numwant", strconv.Itoa(t.NumWant))
	}
	if ev := t.Event.String(); ev != "" {
		q.Set("event", ev)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker: http status %d", resp.StatusCode)
	}

	var ar httpAnnounceResponse
	if err := bencode.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, err
	}
	if ar.FailureReason != "" {
		return nil, errors.New("tracker: " + ar.FailureReason)
	}

	peers, err := decodeCompactPeers([]byte(ar.Peers))
	if err != nil {
		return nil, err
	}
	return &Response{
		Interval:    time.Duration(ar.Interval) * time.Second,
		MinInterval: time.Duration(ar.MinInterval) * time.Second,
		Peers:       peers,
		Complete:    int(ar.Complete),
		Incomplete:  int(ar.Incomplete),
		Warning:     ar.Warning,
	}, nil
}

// decodeCompactPeers parses the compact 6-byte-per-peer binary format.
// Peers is a bencode.RawMessage because the field can be either this binary
// string (compact=1) or a bencoded list of dicts (non-compact trackers);
// only the binary form is a plain bencode string, which RawMessage carries
// as its raw bytes including the length prefix, so strip that here.
func decodeCompactPeers(raw []byte) ([]*net.TCPAddr, error) {
	var s string
	if err := bencode.DecodeBytes(raw, &s); err != nil {
		// Non-compact dict-list response; not produced by any tracker this
		// client announces compact=1 to, so treat as empty rather than fail.
		return nil, nil
	}
	b := []byte(s)
	if len(b)%6 != 0 {
		return nil, errors.New("tracker: malformed compact peer list")
	}
	n := len(b) / 6
	out := make([]*net.TCPAddr, 0, n)
	for i := 0; i < n; i++ {
		ip := net.IP(b[i*6 : i*6+4])
		port := binary.BigEndian.Uint16(b[i*6+4 : i*6+6])
		out = append(out, &net.TCPAddr{IP: ip, Port: int(port)})
	}
	return out, nil
}
