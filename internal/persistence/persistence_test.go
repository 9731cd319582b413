package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndReadTorrentRoundTrip(t *testing.T) {
	assert := require.New(t)
	s := openTestStore(t)

	rec := &TorrentRecord{
		ID:        "abc-123",
		Kind:      KindP2P,
		InfoHash:  []byte{1, 2, 3, 4},
		Dest:      "/downloads/abc",
		Name:      "example.iso",
		Trackers:  []string{"http://tracker.example/announce"},
		CreatedAt: time.Now().Truncate(time.Second),
	}
	assert.NoError(s.SaveTorrent(rec))

	got, err := s.ReadTorrent("abc-123")
	assert.NoError(err)
	assert.Equal(rec.ID, got.ID)
	assert.Equal(rec.Kind, got.Kind)
	assert.Equal(rec.InfoHash, got.InfoHash)
	assert.Equal(rec.Name, got.Name)
	assert.Equal(rec.Trackers, got.Trackers)
}

func TestReadTorrentUnknownIDFails(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ReadTorrent("missing")
	require.Error(t, err)
}

func TestListTorrentIDsReflectsAllSaved(t *testing.T) {
	assert := require.New(t)
	s := openTestStore(t)
	assert.NoError(s.SaveTorrent(&TorrentRecord{ID: "t1"}))
	assert.NoError(s.SaveTorrent(&TorrentRecord{ID: "t2"}))

	ids, err := s.ListTorrentIDs()
	assert.NoError(err)
	assert.ElementsMatch([]string{"t1", "t2"}, ids)
}

func TestDeleteTorrentRemovesRecord(t *testing.T) {
	assert := require.New(t)
	s := openTestStore(t)
	assert.NoError(s.SaveTorrent(&TorrentRecord{ID: "t1"}))
	assert.NoError(s.DeleteTorrent("t1"))

	_, err := s.ReadTorrent("t1")
	assert.Error(err)

	// Deleting an already-absent torrent is a no-op, not an error.
	assert.NoError(s.DeleteTorrent("t1"))
}

func TestSetStartedPersistsFlag(t *testing.T) {
	assert := require.New(t)
	s := openTestStore(t)
	assert.NoError(s.SaveTorrent(&TorrentRecord{ID: "t1", Started: false}))
	assert.NoError(s.SetStarted("t1", true))

	got, err := s.ReadTorrent("t1")
	assert.NoError(err)
	assert.True(got.Started)
}

func TestSaveAndLoadSettings(t *testing.T) {
	assert := require.New(t)
	s := openTestStore(t)

	type fakeConfig struct {
		Port int `bencode:"port"`
	}
	found, err := s.LoadSettings("config", &fakeConfig{})
	assert.NoError(err)
	assert.False(found)

	assert.NoError(s.SaveSettings("config", fakeConfig{Port: 6881}))

	var got fakeConfig
	found, err = s.LoadSettings("config", &got)
	assert.NoError(err)
	assert.True(found)
	assert.Equal(6881, got.Port)
}

func TestSaveAndLoadCredentialBlob(t *testing.T) {
	assert := require.New(t)
	s := openTestStore(t)

	raw, err := s.LoadCredentialBlob()
	assert.NoError(err)
	assert.Nil(raw)

	assert.NoError(s.SaveCredentialBlob([]byte("opaque-vault-blob")))
	raw, err = s.LoadCredentialBlob()
	assert.NoError(err)
	assert.Equal([]byte("opaque-vault-blob"), raw)
}

func TestSaveAndLoadScheduleRules(t *testing.T) {
	assert := require.New(t)
	s := openTestStore(t)

	rules := []ScheduleRule{
		{Name: "night", Weekdays: []int{0, 6}, StartHHMM: "22:00", EndHHMM: "06:00", DownCap: 1000},
	}
	assert.NoError(s.SaveScheduleRules(rules))

	got, err := s.LoadScheduleRules()
	assert.NoError(err)
	assert.Equal(rules, got)
}
