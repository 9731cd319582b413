// Package acceptor owns the single process-wide inbound TCP listener and
// demultiplexes each accepted connection to the torrent it names by
// info-hash during the handshake, hoisted out of the teacher's per-torrent
// incomingConnC handling (session/run.go) to process scope per SPEC_FULL.md
// §9 (one listening port is shared by every torrent in the session).
package acceptor

import (
	"net"
	"strconv"

	"github.com/vinayydv3695/SeedCore/internal/logger"
)

// Acceptor listens on one TCP port and hands every accepted connection to
// Handler, which is responsible for running the handshake and routing the
// result to the correct torrent (or rejecting it).
type Acceptor struct {
	listener net.Listener
	log      logger.Logger

	closeC  chan struct{}
	closedC chan struct{}
}

// Listen binds port on every interface. port == 0 lets the OS choose, and
// the bound port can be read back via Port().
func Listen(port int, l logger.Logger) (*Acceptor, error) {
	ln, err := net.Listen("tcp", portAddr(port))
	if err != nil {
		return nil, err
	}
	return &Acceptor{
		listener: ln,
		log:      l,
		closeC:   make(chan struct{}),
		closedC:  make(chan struct{}),
	}, nil
}

func portAddr(port int) string {
	if port <= 0 {
		return ":0"
	}
	return ":" + strconv.Itoa(port)
}

// Port returns the bound TCP port.
func (a *Acceptor) Port() int {
	return a.listener.Addr().(*net.TCPAddr).Port
}

// Run accepts connections until Close is called, passing each one to
// handle in its own goroutine so one slow handshake never stalls Accept.
func (a *Acceptor) Run(handle func(net.Conn)) {
	defer close(a.closedC)
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-a.closeC:
				return
			default:
				a.log.Warningln("accept error:", err)
				continue
			}
		}
		go handle(conn)
	}
}

// Close stops accepting new connections and blocks until Run returns.
func (a *Acceptor) Close() error {
	close(a.closeC)
	err := a.listener.Close()
	<-a.closedC
	return err
}
