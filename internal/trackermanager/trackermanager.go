// Package trackermanager is the process-wide pool of tracker.Tracker
// clients, deduplicated by URL so two torrents sharing a tracker share one
// client (and, for UDP, one cached connection id). Generalized from the
// `s.trackerManager.Get(tr, timeout, userAgent)` call shape in the
// teacher's session/session.go.
package trackermanager

import (
	"sync"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/tracker"
)

// TrackerManager hands out a shared tracker.Tracker per URL.
type TrackerManager struct {
	mu       sync.Mutex
	trackers map[string]tracker.Tracker
}

// New creates an empty manager.
func New() *TrackerManager {
	return &TrackerManager{trackers: make(map[string]tracker.Tracker)}
}

// Get returns the shared Tracker for rawURL, constructing it on first use.
func (m *TrackerManager) Get(rawURL string, timeout time.Duration, userAgent string) (tracker.Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trackers[rawURL]; ok {
		return t, nil
	}
	t, err := tracker.New(rawURL, timeout, userAgent)
	if err != nil {
		return nil, err
	}
	m.trackers[rawURL] = t
	return t, nil
}

// Close releases every cached tracker client by emptying the cache. Tracker
// implementations hold no long-lived sockets between announces, so nothing
// else is torn down.
func (m *TrackerManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers = make(map[string]tracker.Tracker)
}
