// Torrent lifecycle operations (§6 "torrent operations"): parsing, adding,
// starting, pausing, removing and inspecting engines, generalized from the
// teacher's Session.AddTorrent/AddMagnet/RemoveTorrent family (session/
// add.go, session/session.go) onto engine.Engine's P2P/Cloud split.
package session

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/vinayydv3695/SeedCore/internal/engine"
	"github.com/vinayydv3695/SeedCore/internal/errkind"
	"github.com/vinayydv3695/SeedCore/internal/magnet"
	"github.com/vinayydv3695/SeedCore/internal/metainfo"
	"github.com/vinayydv3695/SeedCore/internal/persistence"
	"github.com/vinayydv3695/SeedCore/internal/storage"
)

// ParseTorrentFile decodes raw .torrent bytes without adding anything,
// backing parse_torrent_file (§6): callers use this to preview name, size
// and file list before committing to add_torrent_file.
func ParseTorrentFile(raw []byte) (*metainfo.Metainfo, error) {
	mi, err := metainfo.New(bytes.NewReader(raw))
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidMetadata, "parsing torrent file", err)
	}
	return mi, nil
}

// ParseMagnetLink decodes a magnet: URI without adding anything, backing
// parse_magnet_link (§6).
func ParseMagnetLink(uri string) (*magnet.Magnet, error) {
	m, err := magnet.New(uri)
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidInput, "parsing magnet link", err)
	}
	return m, nil
}

// AddTorrentFile registers a new P2P engine from already-fetched metainfo
// and launches it, queued until Start() is called (§6 add_torrent_file).
func (s *Session) AddTorrentFile(raw []byte, savePath string) (string, error) {
	mi, err := ParseTorrentFile(raw)
	if err != nil {
		return "", err
	}
	id := newTorrentID()
	s.mu.Lock()
	if existingID, exists := s.torrentsByInfoHash[mi.Info.Hash]; exists {
		if _, live := s.torrents[existingID]; live {
			s.mu.Unlock()
			return "", errkind.New(errkind.InvalidInput, "torrent already added")
		}
		// A magnet placeholder was added for this info-hash but never
		// resolved to full metainfo; this call supplies it now, so the
		// placeholder record is superseded rather than duplicated.
		id = existingID
	}
	s.mu.Unlock()

	e, err := engine.NewP2P(id, mi, savePath, s.deps())
	if err != nil {
		return "", errkind.Wrap(errkind.IoFailure, "laying out storage", err)
	}
	s.registerEngine(e)
	if s.store != nil {
		_ = s.store.SaveTorrent(e.BaseRecord())
	}
	return id, nil
}

// AddMagnetLink registers a placeholder from a magnet URI (§6
// add_magnet_link). Full metainfo acquisition over the wire (BEP 9
// ut_metadata) is out of scope, so no engine is created: only a persisted
// record and the info-hash entry exist, and the torrent is not listed by
// GetTorrents until the caller supplies the .torrent file via
// AddTorrentFile for the same info-hash.
func (s *Session) AddMagnetLink(uri, savePath string) (string, error) {
	m, err := ParseMagnetLink(uri)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if _, exists := s.torrentsByInfoHash[m.InfoHash]; exists {
		s.mu.Unlock()
		return "", errkind.New(errkind.InvalidInput, "torrent already added")
	}
	s.mu.Unlock()

	id := newTorrentID()
	rec := &persistence.TorrentRecord{
		ID:       id,
		Kind:     persistence.KindP2P,
		InfoHash: m.InfoHash[:],
		Dest:     savePath,
		Name:     m.Name,
		Trackers: m.Trackers,
	}
	if s.store != nil {
		if err := s.store.SaveTorrent(rec); err != nil {
			return "", errkind.Wrap(errkind.IoFailure, "persisting magnet placeholder", err)
		}
	}
	s.mu.Lock()
	s.torrentsByInfoHash[m.InfoHash] = id
	s.mu.Unlock()
	return id, nil
}

// AddCloudTorrent registers and launches a debrid-backed engine (§6
// add_cloud_torrent): magnetOrHash may be a magnet URI or a bare
// info-hash, the same argument shape internal/debrid.Client.Submit takes.
func (s *Session) AddCloudTorrent(magnetOrHash, provider, savePath string) (string, error) {
	if _, ok := s.debrid.Get(provider); !ok {
		return "", errkind.New(errkind.InvalidInput, "debrid provider not configured: "+provider)
	}
	infoHash, name := parseCloudIdentity(magnetOrHash)

	id := newTorrentID()
	e := engine.NewCloud(id, infoHash, magnetOrHash, provider, savePath, s.deps())
	if name != "" {
		e.SetName(name)
	}
	s.registerEngine(e)
	if s.store != nil {
		_ = s.store.SaveTorrent(e.BaseRecord())
	}
	return id, nil
}

func parseCloudIdentity(magnetOrHash string) (infoHash [20]byte, name string) {
	if m, err := magnet.New(magnetOrHash); err == nil {
		return m.InfoHash, m.Name
	}
	b, err := hexDecode20(magnetOrHash)
	if err == nil {
		return b, ""
	}
	return infoHash, ""
}

func hexDecode20(s string) ([20]byte, error) {
	var out [20]byte
	if len(s) != 40 {
		return out, fmt.Errorf("session: not a 40-character hex info-hash")
	}
	for i := 0; i < 20; i++ {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return out, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return out, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

const hexDigits = "0123456789abcdef"

func hexEncode20(b [20]byte) string {
	out := make([]byte, 40)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0xf]
	}
	return string(out)
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("session: invalid hex digit %q", c)
	}
}

// registerEngine indexes e and launches its run goroutine; callers hold no
// lock across Launch since the run loop itself never touches s.mu.
func (s *Session) registerEngine(e *engine.Engine) {
	s.mu.Lock()
	s.torrents[e.ID()] = e
	s.torrentsByInfoHash[e.InfoHash()] = e.ID()
	s.mu.Unlock()
	e.Launch()
}

func (s *Session) lookup(id string) (*engine.Engine, error) {
	s.mu.RLock()
	e, ok := s.torrents[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errkind.New(errkind.InvalidInput, "no such torrent: "+id)
	}
	return e, nil
}

// StartTorrent transitions id into active download/cloud-submit, subject
// to admission control: once max-active-downloads engines are already
// Downloading, the request is accepted but the engine is left Queued
// (§4.H admission policy), surfaced to the caller as QueueRejected so the
// UI can explain the wait rather than silently doing nothing.
func (s *Session) StartTorrent(id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if s.config.MaxActiveDownloads > 0 && int(atomic.LoadInt32(&s.activeCount)) >= s.config.MaxActiveDownloads {
		return errkind.New(errkind.QueueRejected, "max active downloads reached; torrent stays queued")
	}
	if err := e.Start(); err != nil {
		return err
	}
	atomic.AddInt32(&s.activeCount, 1)
	return nil
}

// PauseTorrent halts id's network activity (§6 pause_torrent).
func (s *Session) PauseTorrent(id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	err = e.Pause()
	atomic.AddInt32(&s.activeCount, -1)
	return err
}

// RemoveTorrent tears id down permanently, optionally deleting its files
// (§6 remove_torrent).
func (s *Session) RemoveTorrent(id string, deleteFiles bool) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.torrents, id)
	delete(s.torrentsByInfoHash, e.InfoHash())
	s.mu.Unlock()
	return e.Remove(deleteFiles)
}

// GetTorrents returns every registered engine's snapshot (§6 get_torrents).
func (s *Session) GetTorrents() []engine.Snapshot {
	s.mu.RLock()
	engines := make([]*engine.Engine, 0, len(s.torrents))
	for _, e := range s.torrents {
		engines = append(engines, e)
	}
	s.mu.RUnlock()
	out := make([]engine.Snapshot, len(engines))
	for i, e := range engines {
		out[i] = e.Snapshot()
	}
	return out
}

// GetTorrentDetails returns one engine's snapshot (§6 get_torrent_details,
// get_peer_list, get_tracker_list and get_file_list are all views over this
// same Snapshot).
func (s *Session) GetTorrentDetails(id string) (engine.Snapshot, error) {
	e, err := s.lookup(id)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return e.Snapshot(), nil
}

// GetPiecesInfo reports the per-piece assembly state of a P2P torrent (§6
// get_pieces_info), another view over Snapshot, this time of Snapshot.Pieces.
func (s *Session) GetPiecesInfo(id string) ([]engine.PieceState, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if e.Source() != engine.SourceP2P {
		return nil, errkind.New(errkind.InvalidInput, "not a p2p torrent: "+id)
	}
	return e.Snapshot().Pieces, nil
}

// GetCloudFileProgress reports per-file byte counts for a cloud transfer
// (§6 get_cloud_file_progress), a thin view over Snapshot.Files.
func (s *Session) GetCloudFileProgress(id string) ([]engine.FileStatus, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if e.Source() != engine.SourceCloud {
		return nil, errkind.New(errkind.InvalidInput, "not a cloud transfer: "+id)
	}
	return e.Snapshot().Files, nil
}

// SetFilePriority updates one file's priority on a P2P engine (§6
// set_file_priority).
func (s *Session) SetFilePriority(id string, fileIndex int, p storage.Priority) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.SetFilePriority(fileIndex, p)
}

// LoadSavedTorrents restores every persisted record as an engine and
// starts those whose TorrentRecord.Started is set, generalizing the
// teacher's Session.loadExistingTorrents (session/session.go). Magnet
// placeholders without metainfo are skipped.
func (s *Session) LoadSavedTorrents() error {
	ids, err := s.store.ListTorrentIDs()
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "listing persisted torrents", err)
	}
	for _, id := range ids {
		rec, err := s.store.ReadTorrent(id)
		if err != nil {
			s.log.Warningln("skipping unreadable torrent record", id, err)
			continue
		}
		e, err := s.restoreEngine(rec)
		if err != nil {
			s.log.Warningln("skipping torrent", id, "restore failed:", err)
			continue
		}
		s.mu.Lock()
		s.torrents[e.ID()] = e
		s.torrentsByInfoHash[e.InfoHash()] = e.ID()
		s.mu.Unlock()
		e.Launch()
		if rec.Started {
			_ = s.StartTorrent(e.ID())
		}
	}
	return nil
}

func (s *Session) restoreEngine(rec *persistence.TorrentRecord) (*engine.Engine, error) {
	if rec.Kind == persistence.KindCloud {
		var ih [20]byte
		copy(ih[:], rec.InfoHash)
		e := engine.NewCloud(rec.ID, ih, hexEncode20(ih), rec.DebridProvider, rec.Dest, s.deps())
		e.SetRemoteID(rec.DebridRemoteID)
		if rec.Name != "" {
			e.SetName(rec.Name)
		}
		return e, nil
	}
	if len(rec.Info) == 0 {
		return nil, errkind.New(errkind.InvalidMetadata, "magnet placeholder has no metainfo yet")
	}
	info, err := metainfo.NewInfo(rec.Info)
	if err != nil {
		return nil, err
	}
	mi := &metainfo.Metainfo{Info: info}
	if len(rec.Trackers) > 0 {
		mi.AnnounceList = [][]string{rec.Trackers}
	}
	return engine.RestoreP2P(rec.ID, mi, rec.Dest, rec.Bitfield, s.deps())
}
