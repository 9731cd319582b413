// Package session is the process-wide engine registry (§4.H): one
// Session owns every running engine.Engine, the single shared acceptor
// listening for inbound peer connections, and admission control over how
// many torrents may be Downloading at once. Generalized from the teacher's
// session.Session (session/session.go): the same torrents map (one shared
// listen port, no per-torrent port pool), with engine.Engine standing in for the
// teacher's *Torrent and a debrid registry/vault/cloud-transfer limiter
// added for the cloud path SPEC_FULL.md introduces.
package session

import (
	"net"
	"os"
	"sync"

	uuid "github.com/satori/go.uuid"
	seedcore "github.com/vinayydv3695/SeedCore"
	"github.com/vinayydv3695/SeedCore/internal/acceptor"
	"github.com/vinayydv3695/SeedCore/internal/blocklist"
	"github.com/vinayydv3695/SeedCore/internal/debrid"
	"github.com/vinayydv3695/SeedCore/internal/engine"
	"github.com/vinayydv3695/SeedCore/internal/handshaker"
	"github.com/vinayydv3695/SeedCore/internal/logger"
	"github.com/vinayydv3695/SeedCore/internal/peerprotocol"
	"github.com/vinayydv3695/SeedCore/internal/persistence"
	"github.com/vinayydv3695/SeedCore/internal/platformdir"
	"github.com/vinayydv3695/SeedCore/internal/ratelimit"
	"github.com/vinayydv3695/SeedCore/internal/trackermanager"
	"github.com/vinayydv3695/SeedCore/internal/vault"
	"github.com/zeebo/bencode"
)

// Session is the process-wide registry of torrent/cloud engines.
type Session struct {
	config *seedcore.Config
	log    logger.Logger

	store     *persistence.Store
	vault     *vault.Vault
	debrid    *debrid.Registry
	blocklist *blocklist.Blocklist
	trackers  *trackermanager.TrackerManager
	buckets   *ratelimit.Buckets
	acceptor  *acceptor.Acceptor
	peerID    [20]byte

	mu                 sync.RWMutex
	torrents           map[string]*engine.Engine
	torrentsByInfoHash map[[20]byte]string

	// activeCount tracks how many engines are currently Downloading/
	// submitting, guarding the max-active-downloads admission policy
	// (§4.H). Plain atomic rather than mu-guarded since Start/Pause only
	// ever adjust it by one and never need to read it alongside the maps.
	activeCount int32

	closeC chan struct{}
}

// New builds a Session from cfg: opens the acceptor listener and restores
// the credential vault. It loads no persisted torrents; callers call
// LoadSavedTorrents for that.
func New(cfg *seedcore.Config, store *persistence.Store) (*Session, error) {
	peerID, err := newPeerID()
	if err != nil {
		return nil, err
	}
	l := logger.New("session")
	bl := blocklist.New()

	v := vault.New()
	if raw, rerr := store.LoadCredentialBlob(); rerr == nil && len(raw) > 0 {
		if blob, derr := decodeVaultBlob(raw); derr == nil {
			v = vault.Load(blob)
		}
	}

	dataDir, err := platformdir.Expand(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, err
	}

	acc, err := acceptor.Listen(int(cfg.Port), logger.New("acceptor"))
	if err != nil {
		return nil, err
	}

	s := &Session{
		config:             cfg,
		log:                l,
		store:              store,
		vault:              v,
		debrid:             debrid.NewRegistry(),
		blocklist:          bl,
		trackers:           trackermanager.New(),
		buckets:            ratelimit.New(cfg.DownloadCeiling, cfg.UploadCeiling, scheduleRulesFrom(cfg.ScheduleRules), l),
		acceptor:           acc,
		peerID:             peerID,
		torrents:           make(map[string]*engine.Engine),
		torrentsByInfoHash: make(map[[20]byte]string),
		closeC:             make(chan struct{}),
	}
	go acc.Run(s.handleIncoming)
	return s, nil
}

func newPeerID() ([20]byte, error) {
	return engine.GeneratePeerID()
}

// deps bundles this session's shared singletons into the per-engine Deps
// value, generalizing the single-field closures the teacher's Torrent
// struct captured inline from its parent Session.
func (s *Session) deps() engine.Deps {
	return engine.Deps{
		Config:     s.config,
		TrackerMgr: s.trackers,
		Buckets:    s.buckets,
		Debrid:     s.debrid,
		Store:      s.store,
		Blocklist:  s.blocklist,
		PeerID:     s.peerID,
		ListenPort: s.acceptor.Port(),
		Log:        s.log,
	}
}

// handleIncoming completes the inbound handshake on an already-accepted
// connection and routes it to the matching engine by info-hash, the
// process-wide demultiplexing §4.H calls for (hoisted out of the teacher's
// per-torrent t.incomingConnC handling).
func (s *Session) handleIncoming(conn net.Conn) {
	ext := peerprotocol.Handshake{}
	ext.SetExtension(peerprotocol.ExtensionBitFast)
	ext.SetExtension(peerprotocol.ExtensionBitExtension)

	res := handshaker.Accept(conn, s.config.PeerHandshakeTimeout, s.peerID, s.hasTorrent, ext.Extensions)
	if res.Error != nil {
		return
	}
	e := s.engineByInfoHash(res.InfoHash)
	if e == nil {
		res.Conn.Close()
		return
	}
	e.HandleIncoming(res)
}

func (s *Session) hasTorrent(ih [20]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.torrentsByInfoHash[ih]
	return ok
}

func (s *Session) engineByInfoHash(ih [20]byte) *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.torrentsByInfoHash[ih]
	if !ok {
		return nil
	}
	return s.torrents[id]
}

// Close tears down the acceptor and every engine, used on process
// shutdown.
func (s *Session) Close() error {
	close(s.closeC)
	_ = s.acceptor.Close()
	s.mu.RLock()
	engines := make([]*engine.Engine, 0, len(s.torrents))
	for _, e := range s.torrents {
		engines = append(engines, e)
	}
	s.mu.RUnlock()
	for _, e := range engines {
		_ = e.Pause()
	}
	return s.store.Close()
}

func newTorrentID() string {
	return uuid.NewV4().String()
}

func decodeVaultBlob(raw []byte) (vault.Blob, error) {
	var blob vault.Blob
	err := bencode.DecodeBytes(raw, &blob)
	return blob, err
}

func scheduleRulesFrom(in []seedcore.ScheduleRule) []ratelimit.ScheduleRule {
	out := make([]ratelimit.ScheduleRule, len(in))
	for i, r := range in {
		out[i] = ratelimit.ScheduleRule{
			Days:            r.Days,
			StartHour:       r.StartHour,
			EndHour:         r.EndHour,
			DownloadCeiling: r.DownloadCeiling,
			UploadCeiling:   r.UploadCeiling,
		}
	}
	return out
}
