package peerconn

import (
	"context"
	"net"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/logger"
	"github.com/vinayydv3695/SeedCore/internal/peerprotocol"
	"golang.org/x/time/rate"
)

// Writer serializes outgoing messages onto conn. Piece payloads go through a
// separate, lower-priority channel so they can be metered against the
// global upload ceiling without blocking control messages (choke/unchoke,
// have, request) behind a slow token bucket.
type Writer struct {
	conn    net.Conn
	log     logger.Logger
	limiter *rate.Limiter

	control chan peerprotocol.Message
	pieces  chan peerprotocol.PieceMessage
}

func NewWriter(conn net.Conn, l logger.Logger, limiter *rate.Limiter) *Writer {
	return &Writer{
		conn:    conn,
		log:     l,
		limiter: limiter,
		control: make(chan peerprotocol.Message, 32),
		pieces:  make(chan peerprotocol.PieceMessage, 8),
	}
}

func (w *Writer) SendMessage(m peerprotocol.Message) {
	select {
	case w.control <- m:
	default:
		// Control channel is bounded; a peer that can't keep up with choke
		// state traffic will see the link closed by the reader's timeout.
	}
}

func (w *Writer) SendPiece(m peerprotocol.PieceMessage) {
	select {
	case w.pieces <- m:
	default:
	}
}

// Run writes queued messages until closeC closes, sending a keepalive when
// idle for interval.
func (w *Writer) Run(closeC chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case m := <-w.control:
			if err := peerprotocol.WriteMessage(w.conn, m); err != nil {
				return
			}
		case pm := <-w.pieces:
			if w.limiter != nil {
				if err := w.limiter.WaitN(context.Background(), len(pm.Block)); err != nil {
					return
				}
			}
			if err := peerprotocol.WriteMessage(w.conn, pm); err != nil {
				return
			}
		case <-ticker.C:
			if err := peerprotocol.WriteKeepAlive(w.conn); err != nil {
				return
			}
		case <-closeC:
			return
		}
	}
}
