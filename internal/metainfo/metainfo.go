// Package metainfo decodes and encodes the bencoded .torrent format (BEP 3)
// into the normalized Metainfo record, including info-hash computation.
package metainfo

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // BEP 3 mandates SHA-1 for the info-hash.
	"errors"
	"io"
	"time"

	"github.com/zeebo/bencode"
)

// Errors returned by New/NewInfo; callers wrap these with errkind.InvalidMetadata
// or errkind.InvalidEncoding as appropriate.
var (
	ErrNoInfoDict   = errors.New("metainfo: no info dict in torrent file")
	ErrMissingField = errors.New("metainfo: missing required field")
	ErrDuplicateKey = errors.New("metainfo: duplicate dictionary key")
)

// File is one entry of a multi-file torrent's file list.
type File struct {
	Path   []string `bencode:"path"`
	Length int64    `bencode:"length"`
}

// rawInfo mirrors the bencoded "info" dictionary.
type rawInfo struct {
	Name        string `bencode:"name"`
	PieceLength int64  `bencode:"piece length"`
	Pieces      string `bencode:"pieces"`
	Length      int64  `bencode:"length"`
	Files       []File `bencode:"files"`
	Private     int64  `bencode:"private"`
}

// Info is the normalized, immutable "info" sub-dictionary: name, piece
// layout, file list and the computed info-hash.
type Info struct {
	Name        string
	PieceLength int64
	NumPieces   int
	Hash        [20]byte
	TotalLength int64
	Files       []File
	Private     bool

	// Bytes is the canonical encoding of the info dictionary, preserved (or
	// re-emitted deterministically) so SHA1(Bytes) == Hash always holds.
	Bytes []byte

	pieceHashes [][20]byte
}

// PieceHash returns the expected SHA-1 of piece i.
func (i *Info) PieceHash(index int) [20]byte { return i.pieceHashes[index] }

// NewInfo parses a raw bencoded info dictionary (as preserved by
// bencode.RawMessage) into a normalized Info, computing the info-hash over
// exactly those bytes.
func NewInfo(b []byte) (*Info, error) {
	var ri rawInfo
	if err := bencode.DecodeBytes(b, &ri); err != nil {
		return nil, err
	}
	if ri.Name == "" {
		return nil, ErrMissingField
	}
	if ri.PieceLength <= 0 {
		return nil, ErrMissingField
	}
	if len(ri.Pieces)%20 != 0 {
		return nil, errors.New("metainfo: pieces field is not a multiple of 20 bytes")
	}
	if ri.Length == 0 && len(ri.Files) == 0 {
		return nil, ErrMissingField
	}

	numPieces := len(ri.Pieces) / 20
	hashes := make([][20]byte, numPieces)
	for idx := 0; idx < numPieces; idx++ {
		copy(hashes[idx][:], ri.Pieces[idx*20:idx*20+20])
	}

	total := ri.Length
	files := ri.Files
	if len(files) == 0 {
		files = []File{{Path: []string{ri.Name}, Length: ri.Length}}
	} else {
		total = 0
		for _, f := range files {
			total += f.Length
		}
	}

	info := &Info{
		Name:        ri.Name,
		PieceLength: ri.PieceLength,
		NumPieces:   numPieces,
		TotalLength: total,
		Files:       files,
		Private:     ri.Private == 1,
		Bytes:       append([]byte(nil), b...),
		pieceHashes: hashes,
	}
	info.Hash = sha1.Sum(info.Bytes) //nolint:gosec
	return info, nil
}

// Metainfo is the parsed .torrent file: announce tiers, creation metadata
// and the normalized Info.
type Metainfo struct {
	Info         *Info              `bencode:"-"`
	RawInfo      bencode.RawMessage `bencode:"info"`
	Announce     string             `bencode:"announce"`
	AnnounceList [][]string         `bencode:"announce-list"`
	CreationDate int64              `bencode:"creation date"`
	Comment      string             `bencode:"comment"`
	CreatedBy    string             `bencode:"created by"`
	Encoding     string             `bencode:"encoding"`
}

// New decodes a bencoded .torrent stream into a Metainfo, computing the
// info-hash over the raw bytes of the "info" sub-dictionary as received.
func New(r io.Reader) (*Metainfo, error) {
	var m Metainfo
	if err := bencode.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	if len(m.RawInfo) == 0 {
		return nil, ErrNoInfoDict
	}
	info, err := NewInfo(m.RawInfo)
	if err != nil {
		return nil, err
	}
	m.Info = info
	return &m, nil
}

// CreatedAt returns the CreationDate field as a time.Time, or the zero
// value when unset.
func (m *Metainfo) CreatedAt() time.Time {
	if m.CreationDate == 0 {
		return time.Time{}
	}
	return time.Unix(m.CreationDate, 0).UTC()
}

// GetTrackers flattens AnnounceList (falling back to the single Announce
// field) into one ordered list of tracker URLs, tiers preserved in order.
func (m *Metainfo) GetTrackers() []string {
	if len(m.AnnounceList) == 0 {
		if m.Announce == "" {
			return nil
		}
		return []string{m.Announce}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, tier := range m.AnnounceList {
		for _, tr := range tier {
			if _, ok := seen[tr]; ok {
				continue
			}
			seen[tr] = struct{}{}
			out = append(out, tr)
		}
	}
	return out
}

// Tiers returns the announce URLs grouped by BEP 12 failover tier,
// falling back to a single one-tracker tier built from Announce when no
// announce-list is present.
func (m *Metainfo) Tiers() [][]string {
	if len(m.AnnounceList) == 0 {
		if m.Announce == "" {
			return nil
		}
		return [][]string{{m.Announce}}
	}
	out := make([][]string, 0, len(m.AnnounceList))
	for _, tier := range m.AnnounceList {
		if len(tier) == 0 {
			continue
		}
		out = append(out, append([]string(nil), tier...))
	}
	return out
}

// Encode writes the canonical bencoded representation of m. Dictionary keys
// are emitted in sorted order by the underlying encoder, satisfying the
// round-trip invariant in spec.md §8.
func Encode(w io.Writer, m *Metainfo) error {
	return bencode.NewEncoder(w).Encode(m)
}

// EncodeBytes is a convenience wrapper around Encode.
func EncodeBytes(m *Metainfo) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
