package engine

import (
	"context"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/addrlist"
	"github.com/vinayydv3695/SeedCore/internal/announcer"
	"github.com/vinayydv3695/SeedCore/internal/tracker"
)

// backgroundCtx is used for fire-and-forget announce goroutines started
// outside any per-activity cancellation scope (e.g. the final "stopped"
// announce after activityCtx has already been cancelled).
var backgroundCtx = context.Background()

// setupTrackers builds one PeriodicalAnnouncer per tracker URL, grouped into
// BEP 12 failover tiers, generalized from the teacher's per-tracker setup in
// session/session.go (s.trackerManager.Get(tr, timeout, userAgent)). Safe to
// call more than once; later calls are no-ops once tiers are populated.
func (e *Engine) setupTrackers() {
	if e.tiers != nil {
		return
	}
	tiers := e.trackerTiers
	if len(tiers) == 0 && len(e.trackerURLs) > 0 {
		tiers = [][]string{e.trackerURLs}
	}
	cfg := e.deps.Config
	for tierIndex, urls := range tiers {
		tier := &announcer.Tier{}
		for _, u := range urls {
			tr, err := e.deps.TrackerMgr.Get(u, cfg.TrackerHTTPTimeout, cfg.TrackerHTTPUserAgent)
			if err != nil {
				e.log.Debugln("skipping unsupported tracker", u, ":", err)
				continue
			}
			tier.Announcers = append(tier.Announcers, announcer.New(tr, tierIndex, e.log))
		}
		if len(tier.Announcers) > 0 {
			e.tiers = append(e.tiers, tier)
		}
	}
}

// announceParams builds the BEP 3 parameter set for the next announce.
func (e *Engine) announceParams(ev tracker.Event) *tracker.Torrent {
	var left int64
	if e.info != nil {
		left = e.info.TotalLength
		for _, f := range e.sto.Files() {
			left -= f.BytesComplete()
		}
		if left < 0 {
			left = 0
		}
	}
	return &tracker.Torrent{
		InfoHash:   e.infoHash,
		PeerID:     e.deps.PeerID,
		Port:       e.deps.ListenPort,
		Uploaded:   e.bytesUp,
		Downloaded: e.bytesDown,
		Left:       left,
		Event:      ev,
		NumWant:    50,
	}
}

// startAnnouncers fires an initial announce against the first tracker of
// every tier; started announces the "started" event (§4.F), otherwise no
// event is sent. beginNetworking passes true on every start, including a
// resume from Paused.
func (e *Engine) startAnnouncers(started bool) {
	e.setupTrackers()
	ev := tracker.EventNone
	if started {
		ev = tracker.EventStarted
	}
	for ti, tier := range e.tiers {
		if len(tier.Announcers) == 0 {
			continue
		}
		e.fireAnnounce(ti, 0, ev)
	}
}

// fireAnnounce runs one announce attempt in its own goroutine, posting the
// result back to announceResultC so the run loop stays off the network
// (§5 "no blocking I/O on a task holding shared state").
func (e *Engine) fireAnnounce(tierIndex, idx int, ev tracker.Event) {
	a := e.tiers[tierIndex].Announcers[idx]
	params := e.announceParams(ev)
	timeout := e.deps.Config.TrackerHTTPTimeout
	ctx := e.activityCtx
	if ctx == nil {
		ctx = backgroundCtx
	}
	go func() {
		resp, err := a.AnnounceOnce(ctx, params, timeout)
		select {
		case e.announceResultC <- announceResult{tierIndex: tierIndex, idx: idx, resp: resp, err: err}:
		case <-e.stopC:
		}
	}()
}

// handleAnnounceResult processes one completed announce: queues the
// returned peer addresses, and on success promotes the winning tracker to
// the front of its tier (BEP 12).
func (e *Engine) handleAnnounceResult(ar announceResult) {
	if ar.tierIndex >= len(e.tiers) {
		return
	}
	if ar.err != nil {
		// Tier failover: try the next tracker in this tier immediately.
		tier := e.tiers[ar.tierIndex]
		next := ar.idx + 1
		if next < len(tier.Announcers) {
			e.fireAnnounce(ar.tierIndex, next, tracker.EventNone)
		}
		return
	}
	e.tiers[ar.tierIndex].PromoteWinner(ar.idx)
	if ar.resp != nil {
		e.addrs.Push(ar.resp.Peers, addrlist.Tracker)
		e.dialAddresses()
	}
}

// runDueAnnouncers re-fires any tier whose front tracker's next-announce
// time has passed, called off a short engine-wide ticker rather than one
// timer per tracker.
func (e *Engine) runDueAnnouncers() {
	now := time.Now()
	for ti, tier := range e.tiers {
		if len(tier.Announcers) == 0 {
			continue
		}
		front := tier.Announcers[0]
		if front.NextAnnounceAt().IsZero() || now.Before(front.NextAnnounceAt()) {
			continue
		}
		e.fireAnnounce(ti, 0, tracker.EventNone)
	}
}

// announceEvent fires a one-shot event (completed) against every tier's
// current front tracker, e.g. on reaching 100% (§4.F).
func (e *Engine) announceEvent(ev tracker.Event) {
	for ti, tier := range e.tiers {
		if len(tier.Announcers) == 0 {
			continue
		}
		e.fireAnnounce(ti, 0, ev)
	}
}

// stopAnnouncers sends a best-effort "stopped" announce to every tracker
// from a background goroutine. The tier state is kept, so the next start()
// reuses it (setupTrackers is a no-op once tiers are populated).
func (e *Engine) stopAnnouncers() {
	if len(e.tiers) == 0 {
		return
	}
	var trackers []tracker.Tracker
	for _, tier := range e.tiers {
		for _, a := range tier.Announcers {
			trackers = append(trackers, a.Tr)
		}
	}
	params := e.announceParams(tracker.EventStopped)
	go announcer.StopAnnouncer(backgroundCtx, trackers, params, 5*time.Second)
}

// trackerSnapshots flattens every tier's announcer snapshots for
// get_tracker_list (§4.F, §6), tier order preserved.
func (e *Engine) trackerSnapshots() []announcer.Snapshot {
	var out []announcer.Snapshot
	for _, tier := range e.tiers {
		for _, a := range tier.Announcers {
			out = append(out, a.Snapshot())
		}
	}
	return out
}
