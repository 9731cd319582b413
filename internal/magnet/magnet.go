// Package magnet parses magnet: URIs into their info-hash, display name and
// tracker list, independent of the metainfo codec — a magnet link carries
// no piece data and cannot start a P2P download until metainfo is acquired
// by some other path (see SPEC_FULL.md, ut_metadata is out of scope).
package magnet

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

// Magnet is the normalized content of a magnet: URI.
type Magnet struct {
	InfoHash [20]byte
	Name     string
	Trackers []string
}

// ErrInvalid is returned for any magnet URI that doesn't carry a
// recognizable 20-byte BTIH exact topic.
var ErrInvalid = errors.New("magnet: invalid or unsupported magnet link")

// New parses a magnet: URI, e.g.
// "magnet:?xt=urn:btih:<hash>&dn=<name>&tr=<tracker>&tr=<tracker>".
func New(link string) (*Magnet, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "magnet" {
		return nil, ErrInvalid
	}
	q := u.Query()
	var ih [20]byte
	found := false
	for _, xt := range q["xt"] {
		const prefix = "urn:btih:"
		if !strings.HasPrefix(xt, prefix) {
			continue
		}
		hashPart := xt[len(prefix):]
		b, decErr := decodeHash(hashPart)
		if decErr != nil || len(b) != 20 {
			continue
		}
		copy(ih[:], b)
		found = true
		break
	}
	if !found {
		return nil, ErrInvalid
	}
	return &Magnet{
		InfoHash: ih,
		Name:     q.Get("dn"),
		Trackers: q["tr"],
	}, nil
}

func decodeHash(s string) ([]byte, error) {
	switch len(s) {
	case 40:
		return hex.DecodeString(s)
	case 32:
		return base32.StdEncoding.DecodeString(strings.ToUpper(s))
	default:
		return nil, ErrInvalid
	}
}
