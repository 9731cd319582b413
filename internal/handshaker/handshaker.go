// Package handshaker dials or accepts a raw TCP connection and drives it
// through the BitTorrent handshake, generalized from the teacher's
// internal/btconn (the plaintext connection wrapper) and its
// handshaker/incominghandshaker + handshaker/outgoinghandshaker packages.
//
// Message Stream Encryption is not implemented; rwConn below is kept as the
// seam a future encrypted-handshake mode would wrap, matching the shape the
// teacher already built for that purpose.
package handshaker

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/peerprotocol"
)

var (
	ErrOwnConnection = errors.New("handshaker: dropped own connection")
	ErrInfoHashMismatch = errors.New("handshaker: info hash mismatch")
)

type readWriter struct {
	io.Reader
	io.Writer
}

type rwConn struct {
	rw io.ReadWriter
	net.Conn
}

func (c *rwConn) Read(p []byte) (int, error)  { return c.rw.Read(p) }
func (c *rwConn) Write(p []byte) (int, error) { return c.rw.Write(p) }

func wrap(conn net.Conn) net.Conn {
	return &rwConn{rw: readWriter{Reader: conn, Writer: conn}, Conn: conn}
}

// OutgoingResult is the outcome of a dial-and-handshake attempt.
type OutgoingResult struct {
	Addr       *net.TCPAddr
	Conn       net.Conn
	PeerID     [20]byte
	Handshake  *peerprotocol.Handshake
	Error      error
}

// Dial connects to addr, completes the outgoing handshake for infoHash and
// returns the outcome as an OutgoingResult. It blocks for the whole attempt;
// the engine runs it in its own goroutine, one per dial attempt (§4.D
// "dialing -> handshaking").
func Dial(addr *net.TCPAddr, connectTimeout, handshakeTimeout time.Duration, ourID, infoHash [20]byte, extensions [8]byte) OutgoingResult {
	res := OutgoingResult{Addr: addr}
	conn, err := net.DialTimeout("tcp", addr.String(), connectTimeout)
	if err != nil {
		res.Error = err
		return res
	}
	conn = wrap(conn)
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer func() {
		if res.Error != nil {
			conn.Close()
		}
	}()

	if err := peerprotocol.WriteHandshake(conn, &peerprotocol.Handshake{
		Extensions: extensions,
		InfoHash:   infoHash,
		PeerID:     ourID,
	}); err != nil {
		res.Error = err
		return res
	}
	hs, err := peerprotocol.ReadHandshake(conn)
	if err != nil {
		res.Error = err
		return res
	}
	if hs.InfoHash != infoHash {
		res.Error = ErrInfoHashMismatch
		return res
	}
	if hs.PeerID == ourID {
		res.Error = ErrOwnConnection
		return res
	}
	_ = conn.SetDeadline(time.Time{})
	res.Conn = conn
	res.PeerID = hs.PeerID
	res.Handshake = hs
	return res
}

// IncomingResult is the outcome of accepting and handshaking an inbound
// connection.
type IncomingResult struct {
	Conn      net.Conn
	InfoHash  [20]byte
	PeerID    [20]byte
	Handshake *peerprotocol.Handshake
	Error     error
}

// Accept completes the incoming handshake on an already-accepted conn.
// checkInfoHash decides whether we're serving the torrent the remote asked
// for; returning false is treated as a handshake failure.
func Accept(conn net.Conn, handshakeTimeout time.Duration, ourID [20]byte, checkInfoHash func([20]byte) bool, extensions [8]byte) IncomingResult {
	res := IncomingResult{}
	conn = wrap(conn)
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer func() {
		if res.Error != nil {
			conn.Close()
		}
	}()

	hs, err := peerprotocol.ReadHandshake(conn)
	if err != nil {
		res.Error = err
		return res
	}
	if !checkInfoHash(hs.InfoHash) {
		res.Error = ErrInfoHashMismatch
		return res
	}
	if hs.PeerID == ourID {
		res.Error = ErrOwnConnection
		return res
	}
	if err := peerprotocol.WriteHandshake(conn, &peerprotocol.Handshake{
		Extensions: extensions,
		InfoHash:   hs.InfoHash,
		PeerID:     ourID,
	}); err != nil {
		res.Error = err
		return res
	}
	_ = conn.SetDeadline(time.Time{})
	res.Conn = conn
	res.InfoHash = hs.InfoHash
	res.PeerID = hs.PeerID
	res.Handshake = hs
	return res
}
