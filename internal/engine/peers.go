package engine

import (
	"net"

	"github.com/vinayydv3695/SeedCore/internal/bitfield"
	"github.com/vinayydv3695/SeedCore/internal/handshaker"
	"github.com/vinayydv3695/SeedCore/internal/peer"
	"github.com/vinayydv3695/SeedCore/internal/peerconn"
	"github.com/vinayydv3695/SeedCore/internal/peerprotocol"
	"github.com/vinayydv3695/SeedCore/internal/piecedownloader"
	"github.com/vinayydv3695/SeedCore/internal/piecewriter"
)

// maxOutstandingDials caps how many new outgoing dials one dialAddresses
// pass starts. Each pass is further limited by this torrent's own
// Config.MaxPeerDial minus its currently connected peers.
const maxOutstandingDials = 20

func (e *Engine) extensionBits() [8]byte {
	var h peerprotocol.Handshake
	h.SetExtension(peerprotocol.ExtensionBitFast)
	h.SetExtension(peerprotocol.ExtensionBitExtension)
	return h.Extensions
}

// dialAddresses pops candidate addresses off the queue and dials each in its
// own goroutine, generalized from the teacher's torrent.dialAddresses
// (session/run.go).
func (e *Engine) dialAddresses() {
	if len(e.peers) >= e.deps.Config.MaxPeerDial {
		return
	}
	budget := minInt(maxOutstandingDials, e.deps.Config.MaxPeerDial-len(e.peers))
	for i := 0; i < budget; i++ {
		addr := e.addrs.Pop()
		if addr == nil {
			return
		}
		if e.deps.Blocklist != nil && e.deps.Blocklist.Blocked(addr.IP) {
			continue
		}
		e.startOutgoingDial(addr)
	}
}

func (e *Engine) startOutgoingDial(addr *net.TCPAddr) {
	cfg := e.deps.Config
	infoHash := e.infoHash
	peerID := e.deps.PeerID
	ext := e.extensionBits()
	go func() {
		res := handshaker.Dial(addr, cfg.PeerConnectTimeout, cfg.PeerHandshakeTimeout, peerID, infoHash, ext)
		select {
		case e.handshakeResultC <- res:
		case <-e.stopC:
		}
	}()
}

// HandleIncoming is called by the registry's acceptor demux once it has
// matched an inbound connection's info-hash to this engine and completed
// the handshake. Non-blocking: a torrent whose run loop is stuck drops the
// connection rather than stalling the shared acceptor.
func (e *Engine) HandleIncoming(res handshaker.IncomingResult) {
	select {
	case e.incomingC <- res:
	case <-e.stopC:
		if res.Conn != nil {
			res.Conn.Close()
		}
	default:
		if res.Conn != nil {
			res.Conn.Close()
		}
	}
}

func (e *Engine) handleOutgoingHandshake(res handshaker.OutgoingResult) {
	if res.Error != nil || res.Conn == nil {
		return
	}
	if e.deps.Config.MaxPeerDial > 0 && len(e.peers) >= e.deps.Config.MaxPeerDial {
		res.Conn.Close()
		return
	}
	e.spawnPeer(res.Conn, res.PeerID, res.Handshake, true)
}

func (e *Engine) handleIncomingHandshake(res handshaker.IncomingResult) {
	if res.Error != nil || res.Conn == nil {
		return
	}
	if e.deps.Config.MaxPeerAccept > 0 && len(e.peers) >= e.deps.Config.MaxPeerAccept {
		res.Conn.Close()
		return
	}
	e.spawnPeer(res.Conn, res.PeerID, res.Handshake, false)
}

func (e *Engine) spawnPeer(conn net.Conn, peerID [20]byte, hs *peerprotocol.Handshake, outgoing bool) {
	key := conn.RemoteAddr().String()
	if e.banned[key] {
		conn.Close()
		return
	}
	if _, ok := e.peers[key]; ok {
		conn.Close()
		return
	}
	pc := peerconn.New(conn, peerID, hs, e.log, e.deps.Buckets.Upload)
	pe := peer.New(pc, e.info.NumPieces)
	go pc.Run()
	go e.pumpPeer(key, pc)
	select {
	case e.peerUpC <- connectedPeer{key: key, pe: pe, conn: pc, outgoing: outgoing}:
	case <-e.stopC:
		pc.Close()
	}
}

// pumpPeer fans one connection's Messages()/ReadErrors() channels into the
// engine's shared channels, the glue the teacher's run() loop didn't need
// because it selected directly over each peerconn -- here it lets a dynamic
// peer set share one select statement in the run loop.
func (e *Engine) pumpPeer(key string, pc *peerconn.Conn) {
	for {
		select {
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			select {
			case e.peerMsgC <- msgEnvelope{key: key, msg: msg}:
			case <-e.stopC:
				return
			}
		case err := <-pc.ReadErrors():
			select {
			case e.peerGoneC <- peerGone{key: key, err: err}:
			case <-e.stopC:
			}
			return
		case <-e.stopC:
			return
		}
	}
}

func (e *Engine) addPeer(cp connectedPeer) {
	if _, ok := e.peers[cp.key]; ok {
		cp.conn.Close()
		return
	}
	e.peers[cp.key] = cp.pe
	e.picker.AddPeer(cp.key, cp.pe.Bitfield)
	e.sendFirstMessage(cp.pe)
}

// sendFirstMessage announces our have-set immediately after the handshake
// (§9 decision 3: one bitfield message, sent once; no retroactive per-piece
// have for pieces verified before this connection existed).
func (e *Engine) sendFirstMessage(pe *peer.Peer) {
	pe.SendMessage(peerprotocol.BitfieldMessage{Data: e.have.Bytes()})
}

func (e *Engine) disconnectPeer(key string, err error) {
	pe, ok := e.peers[key]
	if !ok {
		return
	}
	delete(e.peers, key)
	delete(e.corrupt, key)
	e.picker.HandleDisconnect(key)
	for idx, a := range e.assemblers {
		_ = a
		e.picker.HandleCancelDownload(key, idx)
	}
	pe.Close()
	_ = err
}

// banPeer marks key as permanently unwelcome on this torrent (invariant 5)
// and drops its connection if still open. The ban is scoped to this engine's
// in-memory set, not the process-wide blocklist, since a peer sending bad
// data for one torrent says nothing about its behavior on another.
func (e *Engine) banPeer(key string) {
	if e.banned[key] {
		return
	}
	e.banned[key] = true
	e.log.Warningln("banning peer", key, "after", corruptPieceLimit, "corrupt pieces")
	e.closePeerConn(key)
}

func (e *Engine) closePeerConn(key string) {
	pe, ok := e.peers[key]
	if !ok {
		return
	}
	delete(e.peers, key)
	e.picker.HandleDisconnect(key)
	pe.Close()
}

// handlePeerMessage dispatches one raw wire message, generalized from the
// teacher's per-connection message switch in session/run.go.
func (e *Engine) handlePeerMessage(env msgEnvelope) {
	pe, ok := e.peers[env.key]
	if !ok {
		return
	}
	switch env.msg.ID {
	case peerprotocol.Choke:
		pe.PeerChoking = true
	case peerprotocol.Unchoke:
		pe.PeerChoking = false
		e.fillPipelineFor(env.key, pe)
	case peerprotocol.Interested:
		pe.PeerInterested = true
	case peerprotocol.NotInterested:
		pe.PeerInterested = false
	case peerprotocol.Have:
		idx, err := peerprotocol.DecodeHave(env.msg.Payload)
		if err != nil {
			e.closePeerConn(env.key)
			return
		}
		pe.Bitfield.Set(int(idx))
		e.picker.HandleHave(env.key, int(idx))
		e.maybeShowInterest(env.key, pe)
	case peerprotocol.Bitfield:
		bf, err := bitfieldFromMessage(env.msg.Payload, e.info.NumPieces)
		if err != nil {
			e.closePeerConn(env.key)
			return
		}
		pe.Bitfield = bf
		e.maybeShowInterest(env.key, pe)
	case peerprotocol.Request:
		e.handleRequest(env.key, pe, env.msg.Payload)
	case peerprotocol.Piece:
		e.handlePieceMessage(env.key, pe, env.msg.Payload)
	case peerprotocol.Cancel:
		// Best-effort: the writer may already have queued the piece; dropping
		// a cancelled request late is harmless (§8 boundary case).
	default:
		// Unknown message ids are silently ignored, per §4.D forward
		// compatibility.
	}
}

func (e *Engine) maybeShowInterest(key string, pe *peer.Peer) {
	interesting := false
	for i := 0; i < e.have.Len(); i++ {
		if pe.Bitfield.Test(i) && !e.have.Test(i) {
			interesting = true
			break
		}
	}
	if interesting && !pe.AmInterested {
		pe.AmInterested = true
		pe.SendMessage(peerprotocol.InterestedMessage)
	} else if !interesting && pe.AmInterested {
		pe.AmInterested = false
		pe.SendMessage(peerprotocol.NotInterestedMessage)
	}
	if !pe.PeerChoking {
		e.fillPipelineFor(key, pe)
	}
}

func (e *Engine) handleRequest(key string, pe *peer.Peer, payload []byte) {
	if pe.AmChoking {
		return
	}
	index, begin, length, err := peerprotocol.DecodeRequest(payload)
	if err != nil {
		e.closePeerConn(key)
		return
	}
	if length == 0 || length > peerprotocol.MaxBlockLength {
		return
	}
	if !e.have.Test(int(index)) {
		return
	}
	data, err := e.sto.ReadRange(int(index), begin, length)
	if err != nil {
		return
	}
	pe.SendPiece(peerprotocol.PieceMessage{Index: index, Begin: begin, Block: data})
	pe.RecordUpload(int64(len(data)))
	e.upEWMA.Update(int64(len(data)))
	e.bytesUp += int64(len(data))
}

func (e *Engine) handlePieceMessage(key string, pe *peer.Peer, payload []byte) {
	index, begin, block, err := peerprotocol.DecodePiece(payload)
	if err != nil {
		e.closePeerConn(key)
		return
	}
	pe.AddOutstanding(-1)
	pe.RecordDownload(int64(len(block)))
	e.downEWMA.Update(int64(len(block)))
	e.bytesDown += int64(len(block))

	blockIndex := int(begin) / pieceBlockSize
	a, ok := e.assemblers[int(index)]
	if !ok {
		a = piecedownloader.New(e.pieces[index])
		e.assemblers[int(index)] = a
	}
	done, err := a.PutBlock(blockIndex, key, block)
	if err != nil {
		return
	}
	e.picker.GotBlock(int(index), blockIndex)
	if done {
		select {
		case e.writerJobsC <- piecewriter.Job{PieceIndex: int(index), Data: a.Bytes()}:
		case <-e.stopC:
		}
	}
	e.fillPipelineFor(key, pe)
}

// fillPipelines tops up every peer's outstanding-request pipeline, called
// after a block timeout re-queues work.
func (e *Engine) fillPipelines() {
	for key, pe := range e.peers {
		if !pe.PeerChoking {
			e.fillPipelineFor(key, pe)
		}
	}
}

func (e *Engine) fillPipelineFor(key string, pe *peer.Peer) {
	for pe.CanRequest() {
		reqs := e.picker.Select(key, 1)
		if len(reqs) == 0 {
			return
		}
		for _, r := range reqs {
			pe.SendMessage(peerprotocol.RequestMessage{Index: uint32(r.PieceIndex), Begin: r.Begin, Length: r.Length})
			pe.AddOutstanding(1)
		}
	}
}

// broadcastHave announces a newly verified piece to every connected peer
// (§9 decision 3: only pieces verified after connection, never retroactive).
func (e *Engine) broadcastHave(index int) {
	msg := peerprotocol.HaveMessage{Index: uint32(index)}
	for _, pe := range e.peers {
		pe.SendMessage(msg)
	}
}

func bitfieldFromMessage(data []byte, numPieces int) (*bitfield.Bitfield, error) {
	return bitfield.NewBytes(data, numPieces)
}

const pieceBlockSize = 16 * 1024 // same value as internal/piece.BlockSize
