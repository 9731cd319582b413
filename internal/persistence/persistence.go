// Package persistence is the durable store backing process restart (§5
// "must survive process restart"): torrent specs, file priorities, schedule
// rules, settings and the encrypted credential vault blob, all in one bolt
// database. Generalized from the teacher's internal/resumer and
// internal/resumer/boltdbresumer, whose call-site shapes are still visible
// in session/session.go (boltdbresumer.New(db, torrentsBucket, []byte(id)),
// res.Write(spec), res.Read(), tx.Bucket(torrentsBucket).DeleteBucket(...)).
// Record encoding uses zeebo/bencode, the same codec internal/metainfo
// already depends on, rather than introducing a second serialization format.
package persistence

import (
	"bytes"
	"time"

	"github.com/boltdb/bolt"
	"github.com/vinayydv3695/SeedCore/internal/errkind"
	"github.com/vinayydv3695/SeedCore/internal/storage"
	"github.com/zeebo/bencode"
)

// encodeBytes bencodes v into a byte slice; zeebo/bencode exposes a decoder
// convenience (bencode.DecodeBytes) but not the encoder counterpart, so
// this mirrors internal/metainfo.EncodeBytes's NewEncoder(&buf) pattern.
func encodeBytes(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	metaBucket        = []byte("meta")
	torrentsBucket    = []byte("torrents")
	settingsBucket    = []byte("settings")
	credentialsBucket = []byte("credentials")
	scheduleBucket    = []byte("schedule-rules")
)

// schemaVersion is bumped whenever a migration changes the on-disk layout
// of any bucket below. migrate() walks forward from whatever version is
// stored in metaBucket["schema-version"] up to this one; there is no
// downgrade path.
const schemaVersion = 1

var schemaVersionKey = []byte("schema-version")

// TorrentKind distinguishes a peer-to-peer swarm download from a
// debrid-backed cloud transfer (§4.K, §9 decision on the tagged-variant
// split between Link-set and Cloud-transfer engines).
type TorrentKind int

const (
	KindP2P TorrentKind = iota
	KindCloud
)

// TorrentRecord is one persisted torrent: enough to reconstruct an engine
// after a restart without re-fetching metainfo or re-announcing from
// scratch. Generalizes boltdbresumer.Spec (InfoHash/Dest/Port/Name/
// Trackers/CreatedAt plus the teacher's resumer.Stats fields) with the
// fields SeedCore's cloud-transfer and debrid paths need.
type TorrentRecord struct {
	ID        string `bencode:"id"`
	Kind      TorrentKind `bencode:"kind"`
	InfoHash  []byte `bencode:"info_hash,omitempty"`
	Info      []byte `bencode:"info,omitempty"`    // raw bencoded info dict, empty until metadata is known
	Bitfield  []byte `bencode:"bitfield,omitempty"`
	Dest      string `bencode:"dest"`
	Port      int    `bencode:"port"`
	Name      string `bencode:"name"`
	Trackers  []string `bencode:"trackers,omitempty"`
	CreatedAt time.Time `bencode:"created_at"`
	Started   bool      `bencode:"started"`

	BytesDownloaded int64         `bencode:"bytes_downloaded"`
	BytesUploaded   int64         `bencode:"bytes_uploaded"`
	BytesWasted     int64         `bencode:"bytes_wasted"`
	SeededFor       time.Duration `bencode:"seeded_for"`

	FilePriorities map[int]storage.Priority `bencode:"file_priorities,omitempty"`

	// DebridProvider/DebridRemoteID are set only for KindCloud records
	// (§4.J, §6 add_cloud_torrent).
	DebridProvider string `bencode:"debrid_provider,omitempty"`
	DebridRemoteID string `bencode:"debrid_remote_id,omitempty"`
}

// ScheduleRule is a persisted time-window rate override (§4.D). The store
// only saves and loads the rule list in order; it does not evaluate rules
// or resolve overlaps between them.
type ScheduleRule struct {
	Name      string `bencode:"name"`
	Weekdays  []int  `bencode:"weekdays"` // 0=Sunday .. 6=Saturday
	StartHHMM string `bencode:"start"`
	EndHHMM   string `bencode:"end"`
	DownCap   int64  `bencode:"down_cap"`
	UpCap     int64  `bencode:"up_cap"`
}

// Store is the single bolt-backed home for everything that must outlive a
// process restart.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bolt database at path, ensures every
// bucket exists, and runs any pending migration.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errkind.Wrap(errkind.IoFailure, "opening persistence database", err)
	}
	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{metaBucket, torrentsBucket, settingsBucket, credentialsBucket, scheduleBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.IoFailure, "initializing buckets", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// migrate walks the schema forward from whatever version is on disk (0 for
// a brand new or pre-versioned database) to schemaVersion. Each step is a
// plain function; add a new "case N" plus its migrateNtoM function when
// schemaVersion is bumped.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		var current int
		if v := b.Get(schemaVersionKey); v != nil {
			if err := bencode.DecodeBytes(v, &current); err != nil {
				return errkind.Wrap(errkind.IoFailure, "decoding schema version", err)
			}
		}
		for current < schemaVersion {
			current++
			// No migrations defined yet; schemaVersion 1 is the initial layout.
		}
		buf, err := encodeBytes(current)
		if err != nil {
			return err
		}
		return b.Put(schemaVersionKey, buf)
	})
}

// SaveTorrent writes rec into its own sub-bucket of torrentsBucket, keyed
// by rec.ID, generalizing boltdbresumer.Resumer.Write.
func (s *Store) SaveTorrent(rec *TorrentRecord) error {
	buf, err := encodeBytes(rec)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "encoding torrent record", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(torrentsBucket)
		b, err := parent.CreateBucketIfNotExists([]byte(rec.ID))
		if err != nil {
			return err
		}
		return b.Put([]byte("spec"), buf)
	})
}

// ReadTorrent returns the record for id, generalizing boltdbresumer.Resumer.Read.
func (s *Store) ReadTorrent(id string) (*TorrentRecord, error) {
	var rec TorrentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(torrentsBucket).Bucket([]byte(id))
		if b == nil {
			return errkind.New(errkind.InvalidInput, "no such torrent: "+id)
		}
		v := b.Get([]byte("spec"))
		if v == nil {
			return errkind.New(errkind.InvalidInput, "torrent record missing spec: "+id)
		}
		return bencode.DecodeBytes(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListTorrentIDs returns every persisted torrent id, used to reload state
// at startup (generalizes session.New's ids-then-loadExistingTorrents flow).
func (s *Store) ListTorrentIDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(torrentsBucket).ForEachBucket(func(name []byte) error {
			ids = append(ids, string(name))
			return nil
		})
	})
	return ids, err
}

// DeleteTorrent removes a torrent's sub-bucket entirely (generalizes
// Session.RemoveTorrent's tx.Bucket(torrentsBucket).DeleteBucket call).
func (s *Store) DeleteTorrent(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(torrentsBucket)
		if b.Bucket([]byte(id)) == nil {
			return nil
		}
		return b.DeleteBucket([]byte(id))
	})
}

// SetStarted persists whether a torrent should auto-resume on the next
// process start (§5 "must survive process restart" covers desired running
// state, not just progress).
func (s *Store) SetStarted(id string, started bool) error {
	rec, err := s.ReadTorrent(id)
	if err != nil {
		return err
	}
	rec.Started = started
	return s.SaveTorrent(rec)
}

// SaveSettings persists the process-wide config under settingsBucket,
// keyed by name so rate-limit overrides and UI preferences can coexist
// without separate buckets.
func (s *Store) SaveSettings(name string, v interface{}) error {
	buf, err := encodeBytes(v)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "encoding settings", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(name), buf)
	})
}

// LoadSettings decodes a previously-saved settings value into v. Returns
// (false, nil) if nothing was ever saved under name.
func (s *Store) LoadSettings(name string, v interface{}) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(settingsBucket).Get([]byte(name))
		if val == nil {
			return nil
		}
		found = true
		return bencode.DecodeBytes(val, v)
	})
	return found, err
}

// SaveCredentialBlob persists the credential vault's exported Blob
// (internal/vault.Blob, stored opaquely here as bytes so this package has
// no import-time dependency on internal/vault).
func (s *Store) SaveCredentialBlob(raw []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put([]byte("vault"), raw)
	})
}

// LoadCredentialBlob returns the raw vault blob, or nil if none was ever saved.
func (s *Store) LoadCredentialBlob() ([]byte, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credentialsBucket).Get([]byte("vault"))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	return raw, err
}

// SaveScheduleRules replaces the full persisted rule set (§4.D).
func (s *Store) SaveScheduleRules(rules []ScheduleRule) error {
	buf, err := encodeBytes(rules)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "encoding schedule rules", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(scheduleBucket).Put([]byte("rules"), buf)
	})
}

// LoadScheduleRules returns the persisted rule set, or nil if none was ever saved.
func (s *Store) LoadScheduleRules() ([]ScheduleRule, error) {
	var rules []ScheduleRule
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(scheduleBucket).Get([]byte("rules"))
		if v == nil {
			return nil
		}
		return bencode.DecodeBytes(v, &rules)
	})
	return rules, err
}
