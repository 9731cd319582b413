// Package announcer drives the per-tracker state machine of §4.F: periodic
// re-announce on a server-provided (clamped) interval, exponential backoff
// on error, and BEP 12 multi-tier failover with winner promotion.
// Generalized from the teacher's announcer.PeriodicalAnnouncer /
// announcer.StopAnnouncer referenced in session/torrent.go.
package announcer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/vinayydv3695/SeedCore/internal/logger"
	"github.com/vinayydv3695/SeedCore/internal/tracker"
)

// State is the tracker record's lifecycle state (§3 Tracker record).
type State int

const (
	Idle State = iota
	Announcing
	Working
	Error
)

func (s State) String() string {
	switch s {
	case Announcing:
		return "announcing"
	case Working:
		return "working"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

// minInterval/maxInterval clamp the server-provided re-announce interval
// (§4.F, §8 boundary case: "interval=5 -> clamped to >= 60s").
const (
	minInterval     = 60 * time.Second
	maxInterval     = time.Hour
	defaultInterval = 30 * time.Minute
)

// Snapshot is the published view of one tracker (§3, get_tracker_list).
type Snapshot struct {
	URL            string
	TierIndex      int
	State          State
	LastMessage    string
	LastAnnounceAt time.Time
	NextAnnounceAt time.Time
	Seeds          int
	Leechers       int
	Downloaded     int64
	LastError      string
}

// PeriodicalAnnouncer owns one tracker's state machine. It has no timer of
// its own: the caller runs AnnounceOnce when NextAnnounceAt has passed and
// receives the result as its return value.
type PeriodicalAnnouncer struct {
	Tr        tracker.Tracker
	TierIndex int

	state          State
	lastMessage    string
	lastAnnounceAt time.Time
	nextAnnounceAt time.Time
	seeds          int
	leechers       int
	downloaded     int64
	lastError      string

	backoff backoff.BackOff

	log logger.Logger
}

// New wraps tr as a periodically re-announcing tracker at the given tier.
func New(tr tracker.Tracker, tierIndex int, l logger.Logger) *PeriodicalAnnouncer {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 30 * time.Second
	bo.MaxInterval = 30 * time.Minute
	bo.MaxElapsedTime = 0 // retry indefinitely; the tier failover is what moves on.
	return &PeriodicalAnnouncer{
		Tr:        tr,
		TierIndex: tierIndex,
		backoff:   bo,
		log:       l,
		state:     Idle,
	}
}

// Snapshot returns the current published view (§4.F get_tracker_list).
func (a *PeriodicalAnnouncer) Snapshot() Snapshot {
	return Snapshot{
		URL:            a.Tr.URL(),
		TierIndex:      a.TierIndex,
		State:          a.state,
		LastMessage:    a.lastMessage,
		LastAnnounceAt: a.lastAnnounceAt,
		NextAnnounceAt: a.nextAnnounceAt,
		Seeds:          a.seeds,
		Leechers:       a.leechers,
		Downloaded:     a.downloaded,
		LastError:      a.lastError,
	}
}

// AnnounceOnce performs one announce attempt, updating state and returning
// the response (or error) for the caller (internal/engine's run loop) to
// act on — queue new peer addresses, schedule the next tick, etc. Keeping
// the state machine callable synchronously from the engine's single
// goroutine avoids a second mutex over tracker state (§5 ordering notes).
func (a *PeriodicalAnnouncer) AnnounceOnce(ctx context.Context, t *tracker.Torrent, timeout time.Duration) (*tracker.Response, error) {
	a.state = Announcing
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.Tr.Announce(cctx, t)
	a.lastAnnounceAt = time.Now()
	if err != nil {
		a.state = Error
		a.lastError = err.Error()
		d := a.backoff.NextBackOff()
		if d < 0 {
			d = maxInterval
		}
		a.nextAnnounceAt = a.lastAnnounceAt.Add(d)
		a.log.Debugln("announce error:", err)
		return nil, err
	}

	a.backoff.Reset()
	a.state = Working
	a.lastError = ""
	a.seeds = resp.Complete
	a.leechers = resp.Incomplete
	interval := clampInterval(resp.Interval)
	a.nextAnnounceAt = a.lastAnnounceAt.Add(interval)
	return resp, nil
}

func clampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultInterval
	}
	if d < minInterval {
		return minInterval
	}
	if d > maxInterval {
		return maxInterval
	}
	return d
}

// NextAnnounceAt returns when this tracker should next be announced to.
func (a *PeriodicalAnnouncer) NextAnnounceAt() time.Time { return a.nextAnnounceAt }

// Tier groups trackers that share a failover tier (BEP 12): on a
// successful announce, PromoteWinner moves the winning tracker to the
// front of its tier so it's tried first next time.
type Tier struct {
	Announcers []*PeriodicalAnnouncer
}

// PromoteWinner moves the tracker at index i to the front of the tier
// (§4.F "on success, promote the winning tracker to the front of its
// tier").
func (t *Tier) PromoteWinner(i int) {
	if i <= 0 || i >= len(t.Announcers) {
		return
	}
	winner := t.Announcers[i]
	copy(t.Announcers[1:i+1], t.Announcers[0:i])
	t.Announcers[0] = winner
}

// StopAnnouncer sends a single best-effort "stopped" event announcement
// with a short timeout and discards the result, generalized from the
// teacher's announcer.StopAnnouncer (used when the engine pauses or is
// removed, after all periodic announcers have already been torn down).
func StopAnnouncer(ctx context.Context, trackers []tracker.Tracker, t *tracker.Torrent, timeout time.Duration) {
	t.Event = tracker.EventStopped
	for _, tr := range trackers {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		_, _ = tr.Announce(cctx, t)
		cancel()
	}
}
