// Package peerconn owns one TCP connection to a remote peer after the
// handshake completes: a reader goroutine parsing the length-prefixed
// message stream and a writer goroutine serializing outgoing messages,
// generalized from the teacher's torrent/internal/peerconn/peer.go.
package peerconn

import (
	"net"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/logger"
	"github.com/vinayydv3695/SeedCore/internal/peerprotocol"
	"golang.org/x/time/rate"
)

// keepAliveInterval is how often we send a zero-length message; the
// teacher's own timers use the same 2-minute cadence (§4.D).
const keepAliveInterval = 2 * time.Minute

// Conn is one connected peer link (§4.D "connected" state).
type Conn struct {
	conn              net.Conn
	id                [20]byte
	FastExtension     bool
	ExtensionProtocol bool

	reader *Reader
	writer *Writer
	log    logger.Logger

	closeC  chan struct{}
	closedC chan struct{}
}

// New wraps conn (already past the handshake) as a Conn; nothing runs until
// Run starts the reader, the writer and its keepalive ticker. uploadLimiter
// may be nil to disable metering.
func New(conn net.Conn, id [20]byte, hs *peerprotocol.Handshake, l logger.Logger, uploadLimiter *rate.Limiter) *Conn {
	fast := hs.HasExtension(peerprotocol.ExtensionBitFast)
	ext := hs.HasExtension(peerprotocol.ExtensionBitExtension)
	c := &Conn{
		conn:              conn,
		id:                id,
		FastExtension:     fast,
		ExtensionProtocol: ext,
		reader:            NewReader(conn, l, fast),
		writer:            NewWriter(conn, l, uploadLimiter),
		log:               l,
		closeC:            make(chan struct{}),
		closedC:           make(chan struct{}),
	}
	return c
}

func (c *Conn) ID() [20]byte           { return c.id }
func (c *Conn) String() string         { return c.conn.RemoteAddr().String() }
func (c *Conn) RemoteAddr() net.Addr   { return c.conn.RemoteAddr() }
func (c *Conn) Logger() logger.Logger  { return c.log }
func (c *Conn) Messages() <-chan *peerprotocol.RawMessage { return c.reader.Messages() }
func (c *Conn) ReadErrors() <-chan error                  { return c.reader.Errors() }

// SendMessage queues a non-piece control message.
func (c *Conn) SendMessage(m peerprotocol.Message) { c.writer.SendMessage(m) }

// SendPiece queues a piece payload; the writer waits on the upload rate
// limiter before writing each queued piece (§4.D). The queue holds 8
// pieces, and a piece sent while it is full is discarded.
func (c *Conn) SendPiece(m peerprotocol.PieceMessage) { c.writer.SendPiece(m) }

// Close tears down both goroutines and the socket, blocking until they exit.
func (c *Conn) Close() {
	select {
	case <-c.closeC:
		return
	default:
		close(c.closeC)
	}
	<-c.closedC
}

// Run drives the reader and writer goroutines until either exits or Close
// is called.
func (c *Conn) Run() {
	defer close(c.closedC)

	readerDone := make(chan struct{})
	go func() {
		c.reader.Run(c.closeC)
		close(readerDone)
	}()

	writerDone := make(chan struct{})
	go func() {
		c.writer.Run(c.closeC, keepAliveInterval)
		close(writerDone)
	}()

	select {
	case <-c.closeC:
		c.conn.Close()
		<-readerDone
		<-writerDone
	case <-readerDone:
		c.conn.Close()
		<-writerDone
	case <-writerDone:
		c.conn.Close()
		<-readerDone
	}
}
