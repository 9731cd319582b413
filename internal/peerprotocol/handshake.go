// Package peerprotocol implements the BitTorrent peer wire protocol: the
// 68-byte handshake and the length-prefixed message framing of §4.D/§6.
package peerprotocol

import (
	"errors"
	"io"
)

const protocolString = "BitTorrent protocol"

// HandshakeLength is the fixed size of a handshake message.
const HandshakeLength = 49 + len(protocolString)

// Extension bits set in the handshake's 8 reserved bytes.
const (
	ExtensionBitFast      = 61 // Fast Extension, BEP 6
	ExtensionBitExtension = 43 // Extension Protocol, BEP 10
)

// ErrInvalidProtocol is returned when the handshake's protocol string
// doesn't match "BitTorrent protocol".
var ErrInvalidProtocol = errors.New("peerprotocol: invalid protocol string")

// Handshake is the decoded 68-byte handshake payload.
type Handshake struct {
	Extensions [8]byte
	InfoHash   [20]byte
	PeerID     [20]byte
}

// HasExtension reports whether reserved bit n (0 = MSB of byte 0) is set.
func (h *Handshake) HasExtension(bit int) bool {
	return h.Extensions[bit/8]&(0x80>>uint(bit%8)) != 0
}

// SetExtension sets reserved bit n.
func (h *Handshake) SetExtension(bit int) {
	h.Extensions[bit/8] |= 0x80 >> uint(bit%8)
}

// WriteHandshake encodes and writes a handshake to w.
func WriteHandshake(w io.Writer, h *Handshake) error {
	buf := make([]byte, 0, HandshakeLength)
	buf = append(buf, byte(len(protocolString)))
	buf = append(buf, protocolString...)
	buf = append(buf, h.Extensions[:]...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	_, err := w.Write(buf)
	return err
}

// ReadHandshake reads and decodes a handshake from r, validating the
// protocol string (handshaking -> error transition of §4.D).
func ReadHandshake(r io.Reader) (*Handshake, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return nil, err
	}
	pstrlen := int(lenByte[0])
	buf := make([]byte, pstrlen+48)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if pstrlen != len(protocolString) || string(buf[:pstrlen]) != protocolString {
		return nil, ErrInvalidProtocol
	}
	var h Handshake
	copy(h.Extensions[:], buf[pstrlen:pstrlen+8])
	copy(h.InfoHash[:], buf[pstrlen+8:pstrlen+28])
	copy(h.PeerID[:], buf[pstrlen+28:pstrlen+48])
	return &h, nil
}
