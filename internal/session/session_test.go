package session

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	seedcore "github.com/vinayydv3695/SeedCore"
	"github.com/vinayydv3695/SeedCore/internal/errkind"
	"github.com/vinayydv3695/SeedCore/internal/persistence"
	"github.com/zeebo/bencode"
)

func testTorrentBytes(t *testing.T, name string) []byte {
	t.Helper()
	info := map[string]interface{}{
		"name":         name,
		"piece length": int64(16384),
		"pieces":       string(make([]byte, 20)),
		"length":       int64(1000),
	}
	var infoBuf bytes.Buffer
	require.NoError(t, bencode.NewEncoder(&infoBuf).Encode(info))

	torrent := map[string]interface{}{
		"announce": "http://tracker.example/announce",
		"info":     bencode.RawMessage(infoBuf.Bytes()),
	}
	var buf bytes.Buffer
	require.NoError(t, bencode.NewEncoder(&buf).Encode(torrent))
	return buf.Bytes()
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	dir := t.TempDir()
	store, err := persistence.Open(filepath.Join(dir, "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := seedcore.DefaultConfig
	cfg.Port = 0
	cfg.DataDir = filepath.Join(dir, "downloads")
	cfg.MaxActiveDownloads = 1

	s, err := New(&cfg, store)
	require.NoError(t, err)
	t.Cleanup(func() {
		// Close tears the store down too. Cleanups run LIFO, so this runs
		// first and the outer store.Close runs after it, its error ignored.
		_ = s.Close()
	})
	return s
}

func torrentSavePath(t *testing.T) string {
	return t.TempDir()
}

func TestAddTorrentFileAssignsUniqueIDPerInfoHash(t *testing.T) {
	assert := require.New(t)
	s := newTestSession(t)

	id, err := s.AddTorrentFile(testTorrentBytes(t, "one.iso"), torrentSavePath(t))
	assert.NoError(err)
	assert.NotEmpty(id)

	_, err = s.AddTorrentFile(testTorrentBytes(t, "one.iso"), torrentSavePath(t))
	assert.Error(err, "the same info-hash cannot be added twice while a live engine exists")
	assert.True(errkind.Is(err, errkind.InvalidInput))
}

func TestAddMagnetThenAddTorrentFileUpgradesPlaceholder(t *testing.T) {
	assert := require.New(t)
	s := newTestSession(t)
	raw := testTorrentBytes(t, "upgrade.iso")

	mi, err := ParseTorrentFile(raw)
	assert.NoError(err)
	hashHex := fmt.Sprintf("%x", mi.Info.Hash)
	magnetURI := "magnet:?xt=urn:btih:" + hashHex + "&dn=upgrade.iso"

	placeholderID, err := s.AddMagnetLink(magnetURI, torrentSavePath(t))
	assert.NoError(err)
	assert.NotEmpty(placeholderID)

	// The placeholder has no live engine yet, so it must not be registered
	// in s.torrents -- only the by-hash lookup.
	_, live := s.torrents[placeholderID]
	assert.False(live)

	upgradedID, err := s.AddTorrentFile(raw, torrentSavePath(t))
	assert.NoError(err)
	assert.Equal(placeholderID, upgradedID, "supplying metainfo for an existing magnet placeholder reuses its id")

	_, err = s.GetTorrentDetails(upgradedID)
	assert.NoError(err)
}

func TestAddMagnetLinkTwiceRejected(t *testing.T) {
	assert := require.New(t)
	s := newTestSession(t)
	raw := testTorrentBytes(t, "dup.iso")
	mi, err := ParseTorrentFile(raw)
	assert.NoError(err)
	hashHex := fmt.Sprintf("%x", mi.Info.Hash)
	magnetURI := "magnet:?xt=urn:btih:" + hashHex

	_, err = s.AddMagnetLink(magnetURI, torrentSavePath(t))
	assert.NoError(err)

	_, err = s.AddMagnetLink(magnetURI, torrentSavePath(t))
	assert.Error(err)
}

func TestStartTorrentAdmissionControlQueueRejected(t *testing.T) {
	assert := require.New(t)
	s := newTestSession(t) // MaxActiveDownloads == 1

	id1, err := s.AddTorrentFile(testTorrentBytes(t, "first.iso"), torrentSavePath(t))
	assert.NoError(err)
	id2, err := s.AddTorrentFile(testTorrentBytes(t, "second.iso"), torrentSavePath(t))
	assert.NoError(err)

	assert.NoError(s.StartTorrent(id1))

	err = s.StartTorrent(id2)
	assert.Error(err)
	assert.True(errkind.Is(err, errkind.QueueRejected))

	assert.NoError(s.PauseTorrent(id1))
	assert.NoError(s.StartTorrent(id2), "pausing the first frees the admission budget for the second")
}

func TestStartTorrentUnknownID(t *testing.T) {
	s := newTestSession(t)
	err := s.StartTorrent("does-not-exist")
	require.Error(t, err)
	require.True(t, errkind.Is(err, errkind.InvalidInput))
}

func TestRemoveTorrentClearsRegistry(t *testing.T) {
	assert := require.New(t)
	s := newTestSession(t)
	id, err := s.AddTorrentFile(testTorrentBytes(t, "remove-me.iso"), torrentSavePath(t))
	assert.NoError(err)

	assert.NoError(s.RemoveTorrent(id, false))

	_, err = s.GetTorrentDetails(id)
	assert.Error(err)
}

func TestGetTorrentsListsEveryRegisteredEngine(t *testing.T) {
	assert := require.New(t)
	s := newTestSession(t)
	_, err := s.AddTorrentFile(testTorrentBytes(t, "a.iso"), torrentSavePath(t))
	assert.NoError(err)
	_, err = s.AddTorrentFile(testTorrentBytes(t, "b.iso"), torrentSavePath(t))
	assert.NoError(err)

	assert.Len(s.GetTorrents(), 2)
}
