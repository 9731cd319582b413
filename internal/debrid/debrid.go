// Package debrid defines the common capability set every cloud "debrid"
// provider adapter implements (§4.J): cache probe, submit, file selection,
// progress polling, link materialization, and listing/deletion of remote
// transfers. Modeled structurally on the teacher's tracker.Tracker
// interface — one interface, multiple HTTP-backed implementations, pooled
// the same way trackermanager pools trackers — applied to a different
// provider domain.
package debrid

import (
	"context"
	"time"
)

// Status is the remote transfer's lifecycle state (§4.J progress()).
type Status string

const (
	WaitingFilesSelection Status = "WaitingFilesSelection"
	Queued                Status = "Queued"
	Downloading           Status = "Downloading"
	Downloaded            Status = "Downloaded"
	Compressing           Status = "Compressing"
	Uploading             Status = "Uploading"
	Error                 Status = "Error"
	Dead                  Status = "Dead"
	MagnetConversion      Status = "MagnetConversion"
)

// CacheFile is one file a provider reports as part of a cached or
// submitted torrent.
type CacheFile struct {
	Index int
	Path  string
	Size  int64
}

// CacheResult is the response of check_cache (§4.J, §6).
type CacheResult struct {
	IsCached bool
	Files    []CacheFile
}

// Progress is the normalized response of progress() (§4.J).
type Progress struct {
	Status  Status
	Percent float64
	Speed   int64 // bytes/sec, provider-reported
	ETA     time.Duration
}

// ETAUnknown is the total-order sentinel for "infinite"/unknown ETA
// (resolves the Open Question in spec.md §9 / SPEC_FULL.md decision 2):
// plain int64 duration comparisons, never string parsing of a "∞" field.
const ETAUnknown = time.Duration(1<<63 - 1)

// DownloadLink is one file's direct HTTPS URL, ready for internal/cloudtransfer.
type DownloadLink struct {
	Path string
	Size int64
	URL  string
}

// RemoteTransfer is a summary entry from list() (§4.J).
type RemoteTransfer struct {
	ID       string
	Name     string
	InfoHash string
	Status   Status
	Progress float64
}

// Client is the common interface every provider adapter implements (§4.J).
type Client interface {
	// Name identifies the provider, e.g. "real-debrid", "torbox" (§6
	// add_cloud_torrent's provider argument).
	Name() string

	Validate(ctx context.Context) (bool, error)
	CheckCache(ctx context.Context, infoHash string) (*CacheResult, error)
	Submit(ctx context.Context, magnetOrHash string) (remoteID string, err error)
	SelectFiles(ctx context.Context, remoteID string, fileIndices []int) error
	Progress(ctx context.Context, remoteID string) (*Progress, error)
	Links(ctx context.Context, remoteID string) ([]DownloadLink, error)
	List(ctx context.Context) ([]RemoteTransfer, error)
	Delete(ctx context.Context, remoteID string) error
}

// Registry is a process-wide pool of configured Client instances keyed by
// provider name, generalized from trackermanager's dedup-by-key shape.
type Registry struct {
	clients map[string]Client
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register installs a configured client under its Name().
func (r *Registry) Register(c Client) {
	r.clients[c.Name()] = c
}

// Get returns the client for provider, or (nil, false) if unregistered
// (e.g. no credentials saved yet).
func (r *Registry) Get(provider string) (Client, bool) {
	c, ok := r.clients[provider]
	return c, ok
}

// Providers lists every registered provider name.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	return out
}

// Unregister removes provider, e.g. after delete_debrid_credentials (§6).
func (r *Registry) Unregister(provider string) {
	delete(r.clients, provider)
}
