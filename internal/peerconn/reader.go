package peerconn

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/logger"
	"github.com/vinayydv3695/SeedCore/internal/peerprotocol"
)

// readTimeout bounds a single Read call so a missing keepalive for over 2
// minutes is detected and closes the link (§4.D).
const readTimeout = 2*time.Minute + 10*time.Second

// Reader parses the framed message stream off conn into RawMessages.
type Reader struct {
	conn net.Conn
	log  logger.Logger
	fast bool

	messages chan *peerprotocol.RawMessage
	errors   chan error
}

func NewReader(conn net.Conn, l logger.Logger, fast bool) *Reader {
	return &Reader{
		conn:     conn,
		log:      l,
		fast:     fast,
		messages: make(chan *peerprotocol.RawMessage, 8),
		errors:   make(chan error, 1),
	}
}

func (r *Reader) Messages() <-chan *peerprotocol.RawMessage { return r.messages }
func (r *Reader) Errors() <-chan error                       { return r.errors }

// Run reads messages until closeC is closed or a fatal read error occurs.
func (r *Reader) Run(closeC chan struct{}) {
	for {
		_ = r.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := peerprotocol.ReadMessage(r.conn)
		if err != nil {
			select {
			case <-closeC:
			default:
				if !errors.Is(err, io.EOF) {
					r.log.Debugln("peer read error:", err)
				}
				select {
				case r.errors <- err:
				default:
				}
			}
			return
		}
		if msg == nil {
			continue // keepalive
		}
		select {
		case r.messages <- msg:
		case <-closeC:
			return
		}
	}
}
