// Package peerwire implements the BitTorrent peer wire protocol: the 68-byte
// handshake and the length-prefixed framed message codec.
package peerwire

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

const protocolID = "BitTorrent protocol"

// ErrHandshakeMismatch is returned when a peer's handshake advertises an
// info hash different from ours; the connection must be closed without
// sending a single interested message.
var ErrHandshakeMismatch = errors.New("peerwire: handshake info hash mismatch")

// Handshake is the 68-byte session opener that binds a TCP connection to a
// specific info hash.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Serialize encodes h as the fixed 68-byte wire form: 0x13, "BitTorrent
// protocol", 8 reserved zero bytes, the info hash, then the peer ID.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, 49+len(protocolID))
	cursor := 0
	buf[cursor] = byte(len(protocolID))
	cursor++
	cursor += copy(buf[cursor:], protocolID)
	cursor += 8 // reserved, already zero
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and decodes a handshake from r. It does not itself
// check the info hash against an expected value; callers that reject a
// mismatched peer should use ExpectInfoHash.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	lenBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, errors.Wrap(err, "peerwire: read handshake pstrlen")
	}
	pstrlen := int(lenBuf[0])

	rest := make([]byte, pstrlen+48)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, errors.Wrap(err, "peerwire: read handshake body")
	}

	var h Handshake
	cursor := pstrlen + 8 // skip pstr and reserved bytes
	copy(h.InfoHash[:], rest[cursor:cursor+20])
	cursor += 20
	copy(h.PeerID[:], rest[cursor:cursor+20])
	return &h, nil
}

// ExpectInfoHash reads a handshake from r and verifies its info hash equals
// want. On mismatch it drains nothing further and returns
// ErrHandshakeMismatch; the caller is responsible for closing the socket.
func ExpectInfoHash(r io.Reader, want [20]byte) (*Handshake, error) {
	h, err := ReadHandshake(r)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(h.InfoHash[:], want[:]) {
		return nil, errors.Wrapf(ErrHandshakeMismatch, "got %x want %x", h.InfoHash, want)
	}
	return h, nil
}
