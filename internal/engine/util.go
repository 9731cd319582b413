package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"os"

	"github.com/vinayydv3695/SeedCore/internal/persistence"
)

var errInvalidFileIndex = errors.New("engine: invalid file index")

// contextBackground returns a fresh cancellable context for one activity
// session (the span between Start and the next Pause/Remove), per §5
// cancellation notes.
func contextBackground() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

func removeAll(path string) error { return os.RemoveAll(path) }

// GeneratePeerID builds an Azureus-style ("-SC1000-" + 12 random bytes) peer
// id, generated once per process by the registry and shared by every engine
// (§6 data model: one client identity per running SeedCore instance).
func GeneratePeerID() ([20]byte, error) {
	var id [20]byte
	copy(id[:], "-SC1000-")
	if _, err := rand.Read(id[8:]); err != nil {
		return id, err
	}
	return id, nil
}

// BaseRecord exposes baseRecord to the registry, which needs it to persist
// a freshly constructed engine before its run goroutine has ever called
// persist()/persistCloud() itself.
func (e *Engine) BaseRecord() *persistence.TorrentRecord {
	return e.baseRecord()
}

// SetName overrides the display name derived at construction time, used
// when a magnet link or cloud submission carries a name the constructor
// didn't have yet.
func (e *Engine) SetName(name string) { e.name = name }

// SetRemoteID seeds the debrid remote transfer id for a cloud engine being
// restored from a persisted record, so runCloudPipeline skips re-Submit.
func (e *Engine) SetRemoteID(id string) { e.remoteID = id }

func (e *Engine) baseRecord() *persistence.TorrentRecord {
	rec := &persistence.TorrentRecord{
		ID:        e.id,
		Dest:      e.savePath,
		Name:      e.name,
		CreatedAt: e.addedAt,
	}
	switch e.source {
	case SourceCloud:
		rec.Kind = persistence.KindCloud
		rec.DebridProvider = e.provider
		rec.DebridRemoteID = e.remoteID
		rec.InfoHash = e.infoHash[:]
	default:
		rec.Kind = persistence.KindP2P
		rec.InfoHash = e.infoHash[:]
		rec.Trackers = e.trackerURLs
		if e.info != nil {
			rec.Info = e.info.Bytes
		}
	}
	return rec
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
