package engine

import (
	"math/rand"
	"sort"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/peer"
	"github.com/vinayydv3695/SeedCore/internal/peerprotocol"
)

// snubThreshold is how long an interested, unchoked peer may go without
// delivering data before it's treated as choked for fairness accounting
// (§4.E).
const snubThreshold = 60 * time.Second

// tickUnchoke runs the choke algorithm every 10s (§4.E): keep the
// best-performing interested peers unchoked, choke everyone else. The
// optimistic-unchoke slot is left untouched here; tickOptimisticUnchoke
// owns it.
func (e *Engine) tickUnchoke() {
	regularSlots := e.deps.Config.UnchokedPeers - 1
	if regularSlots < 0 {
		regularSlots = 0
	}

	e.updateSnubbed()

	var candidates []*peer.Peer
	for key, pe := range e.peers {
		if key == e.optimisticKey {
			continue
		}
		if !pe.PeerInterested || pe.Snubbed {
			continue
		}
		candidates = append(candidates, pe)
	}

	seeding := e.state == Seeding
	sort.Slice(candidates, func(i, j int) bool {
		if seeding {
			return candidates[i].UploadRate() > candidates[j].UploadRate()
		}
		return candidates[i].DownloadRate() > candidates[j].DownloadRate()
	})

	keep := make(map[*peer.Peer]bool, regularSlots)
	for i, pe := range candidates {
		if i >= regularSlots {
			break
		}
		keep[pe] = true
	}

	for key, pe := range e.peers {
		if key == e.optimisticKey {
			continue
		}
		wantUnchoke := keep[pe]
		e.setChoke(pe, !wantUnchoke)
	}
}

// tickOptimisticUnchoke rotates the optimistic-unchoke slot every 30s
// (§4.E): pick one peer uniformly at random from interested, choked peers.
func (e *Engine) tickOptimisticUnchoke() {
	if e.optimisticKey != "" {
		if pe, ok := e.peers[e.optimisticKey]; ok {
			e.setChoke(pe, true)
		}
		e.optimisticKey = ""
	}

	var pool []string
	for key, pe := range e.peers {
		if pe.PeerInterested && pe.AmChoking {
			pool = append(pool, key)
		}
	}
	if len(pool) == 0 {
		return
	}
	e.optimisticKey = pool[rand.Intn(len(pool))]
	e.setChoke(e.peers[e.optimisticKey], false)
}

// setChoke sends a choke/unchoke message only when the local bit actually
// changes, avoiding redundant wire traffic.
func (e *Engine) setChoke(pe *peer.Peer, choke bool) {
	if pe.AmChoking == choke {
		return
	}
	pe.AmChoking = choke
	if choke {
		pe.SendMessage(peerprotocol.ChokeMessage)
	} else {
		pe.SendMessage(peerprotocol.UnchokeMessage)
	}
}

// updateSnubbed marks any interested, unchoked peer that hasn't delivered
// data in snubThreshold as snubbed, per §4.E.
func (e *Engine) updateSnubbed() {
	for _, pe := range e.peers {
		pe.Snubbed = pe.PeerInterested && !pe.AmChoking && pe.IdleFor() > snubThreshold
	}
}
