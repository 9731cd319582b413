package engine

import (
	"time"

	"github.com/vinayydv3695/SeedCore/internal/allocator"
	"github.com/vinayydv3695/SeedCore/internal/bitfield"
	"github.com/vinayydv3695/SeedCore/internal/piece"
	"github.com/vinayydv3695/SeedCore/internal/piecepicker"
	"github.com/vinayydv3695/SeedCore/internal/piecewriter"
	"github.com/vinayydv3695/SeedCore/internal/storage"
	"github.com/vinayydv3695/SeedCore/internal/tracker"
	"github.com/vinayydv3695/SeedCore/internal/verifier"
)

// runP2P is the single goroutine owning this torrent's entire mutable
// state, generalized from the teacher's torrent.run() (session/run.go): one
// big select over commands and network/disk events, no locks on the hot
// path.
func (e *Engine) runP2P() {
	defer close(e.done)
	defer e.sto.Close()

	go piecewriter.Run(piecewriter.New(e.sto, e.info), e.writerJobsC, e.writerResultC)

	chokeTicker := time.NewTicker(10 * time.Second)
	defer chokeTicker.Stop()
	optimisticTicker := time.NewTicker(30 * time.Second)
	defer optimisticTicker.Stop()
	timeoutTicker := time.NewTicker(5 * time.Second)
	defer timeoutTicker.Stop()
	persistInterval := e.deps.Config.BitfieldWriteInterval
	if persistInterval <= 0 {
		persistInterval = 30 * time.Second
	}
	persistTicker := time.NewTicker(persistInterval)
	defer persistTicker.Stop()
	dialTicker := time.NewTicker(2 * time.Second)
	defer dialTicker.Stop()
	announceTicker := time.NewTicker(5 * time.Second)
	defer announceTicker.Stop()
	speedCounterTicker := time.NewTicker(time.Second)
	defer speedCounterTicker.Stop()

	if e.completed {
		e.state = Seeding
	}

	for {
		select {
		case req := <-e.startC:
			req.respC <- e.handleStart()
		case req := <-e.pauseC:
			req.respC <- e.handlePause()
		case req := <-e.removeC:
			req.respC <- e.handleRemove(req.deleteFiles)
			return
		case req := <-e.snapshotC:
			req.respC <- e.buildSnapshot()
		case req := <-e.priorityC:
			req.respC <- e.handleSetPriority(req.fileIndex, req.priority)

		case cp := <-e.checkProgressC:
			e.handleCheckProgress(cp)

		case res := <-e.handshakeResultC:
			e.handleOutgoingHandshake(res)
		case res := <-e.incomingC:
			e.handleIncomingHandshake(res)
		case cp := <-e.peerUpC:
			e.addPeer(cp)
		case env := <-e.peerMsgC:
			e.handlePeerMessage(env)
		case g := <-e.peerGoneC:
			e.disconnectPeer(g.key, g.err)

		case res := <-e.writerResultC:
			e.handleWriteResult(res)

		case ar := <-e.announceResultC:
			e.handleAnnounceResult(ar)

		case <-dialTicker.C:
			if e.state == Downloading || e.state == Seeding {
				e.dialAddresses()
			}
		case <-announceTicker.C:
			if e.state == Downloading || e.state == Seeding {
				e.runDueAnnouncers()
			}
		case <-timeoutTicker.C:
			e.reassignTimedOut()
		case <-chokeTicker.C:
			e.tickUnchoke()
		case <-optimisticTicker.C:
			e.tickOptimisticUnchoke()
		case <-persistTicker.C:
			e.persist()
		case <-speedCounterTicker.C:
			e.downEWMA.Tick()
			e.upEWMA.Tick()
			for _, pe := range e.peers {
				pe.TickRates()
			}

		case <-e.stopC:
			return
		}
	}
}

// handleStart moves the engine from Queued/Paused into Checking (if the
// resume bitfield couldn't be trusted) or straight into Downloading/Seeding.
func (e *Engine) handleStart() error {
	switch e.state {
	case Downloading, Seeding, Checking:
		return nil
	}
	e.activityCtx, e.activityCancel = contextBackground()

	if e.have.Count() == 0 && !e.completed {
		e.state = Checking
		go e.runCheck()
		return nil
	}
	return e.beginNetworking()
}

// runCheck optionally preallocates every file to its final size, then
// re-hashes every piece, all in its own goroutine (§4.C "Checking"),
// reporting back through checkProgressC so the run loop never blocks on
// disk I/O.
func (e *Engine) runCheck() {
	if e.deps.Config.PreallocateFiles {
		allocProgressC := make(chan allocator.Progress, 4)
		go func() {
			for range allocProgressC {
			}
		}()
		if err := allocator.Allocate(e.sto, allocProgressC, e.stopC); err != nil {
			e.log.Warningln("preallocation failed:", err)
		}
	}

	progressC := make(chan verifier.Progress, 16)
	stopC := make(chan struct{})
	go func() {
		for p := range progressC {
			if p.Done {
				return
			}
		}
	}()
	go func() {
		<-e.activityCtx.Done()
		close(stopC)
	}()
	bf := verifier.Verify(e.info, e.sto, progressC, stopC)
	select {
	case e.checkProgressC <- checkProgress{bf: bf, done: true}:
	case <-e.stopC:
	}
}

func (e *Engine) handleCheckProgress(cp checkProgress) {
	if e.state != Checking {
		return
	}
	e.have = cp.bf
	if e.picker != nil {
		for i := 0; i < e.have.Len(); i++ {
			if e.have.Test(i) {
				e.picker.MarkHave(i)
			}
		}
	}
	_ = e.beginNetworking()
}

// beginNetworking wires up the piece picker, address list and trackers and
// transitions into Downloading (or Seeding if already complete).
func (e *Engine) beginNetworking() error {
	if e.picker == nil {
		e.picker = newPicker(e.pieces, e.sto, e.have)
	}
	e.setupTrackers()
	e.completed = e.have.All()
	if e.completed {
		e.state = Seeding
	} else {
		e.state = Downloading
	}
	e.startAnnouncers(true)
	return nil
}

func (e *Engine) handlePause() error {
	switch e.state {
	case Queued, Paused:
		return nil
	}
	if e.activityCancel != nil {
		e.activityCancel()
	}
	e.stopAnnouncers()
	for key := range e.peers {
		e.closePeerConn(key)
	}
	e.addrs.Reset()
	e.persist()
	e.state = Paused
	return nil
}

func (e *Engine) handleRemove(deleteFiles bool) error {
	if e.activityCancel != nil {
		e.activityCancel()
	}
	e.stopAnnouncers()
	for key := range e.peers {
		e.closePeerConn(key)
	}
	e.closeStop()
	if e.deps.Store != nil {
		_ = e.deps.Store.DeleteTorrent(e.id)
	}
	if deleteFiles {
		_ = removeAll(e.sto.Dest())
	}
	return nil
}

func (e *Engine) handleSetPriority(fileIndex int, p storage.Priority) error {
	files := e.sto.Files()
	if fileIndex < 0 || fileIndex >= len(files) {
		return errInvalidFileIndex
	}
	files[fileIndex].SetPriority(p)
	return nil
}

// corruptPieceLimit bans a peer once it has contributed to this many
// hash-mismatched pieces (invariant 5: "ban peer after 2 corrupt pieces").
const corruptPieceLimit = 2

func (e *Engine) handleWriteResult(res piecewriter.Result) {
	a := e.assemblers[res.PieceIndex]
	delete(e.assemblers, res.PieceIndex)
	if res.Error != nil {
		e.log.Warningln("piece", res.PieceIndex, "failed verification:", res.Error)
		e.picker.ResetPiece(res.PieceIndex)
		if a != nil {
			for _, key := range a.Contributors() {
				e.corrupt[key]++
				if e.corrupt[key] >= corruptPieceLimit {
					e.banPeer(key)
				}
			}
		}
		return
	}
	e.have.Set(res.PieceIndex)
	e.picker.CompletePiece(res.PieceIndex)
	e.broadcastHave(res.PieceIndex)
	if e.picker.Done() && !e.completed {
		e.completed = true
		e.state = Seeding
		e.announceEvent(tracker.EventCompleted)
		e.persist()
	}
}

func (e *Engine) persist() {
	if e.deps.Store == nil {
		return
	}
	rec, err := e.deps.Store.ReadTorrent(e.id)
	if err != nil {
		rec = e.baseRecord()
	}
	rec.Bitfield = e.have.Bytes()
	rec.BytesDownloaded = e.bytesDown
	rec.BytesUploaded = e.bytesUp
	rec.Started = e.state == Downloading || e.state == Seeding
	_ = e.deps.Store.SaveTorrent(rec)
}

func newPicker(pieces []piece.Piece, sto *storage.Storage, have *bitfield.Bitfield) *piecepicker.PiecePicker {
	pk := piecepicker.New(pieces, sto, piecepicker.RarestFirst, 60*time.Second)
	for i := 0; i < have.Len(); i++ {
		if have.Test(i) {
			pk.MarkHave(i)
		}
	}
	return pk
}

// reassignTimedOut re-queues blocks whose request has been outstanding too
// long (§4.E "no data for piece-timeout"), letting Select pick them up for
// any eligible peer on the next selection pass; no separate re-dial is
// needed here since Select is driven per-peer as pipeline slots free up.
func (e *Engine) reassignTimedOut() {
	if e.picker == nil {
		return
	}
	e.picker.TimedOut(time.Now())
	e.fillPipelines()
}
