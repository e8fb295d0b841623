package peerwire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ID identifies the message type. A frame with a zero length prefix carries
// no ID at all (keep-alive).
type ID uint8

const (
	Choke         ID = 0
	Unchoke       ID = 1
	Interested    ID = 2
	NotInterested ID = 3
	Have          ID = 4
	BitfieldMsg   ID = 5
	Request       ID = 6
	Piece         ID = 7
	Cancel        ID = 8
)

// MaxBlockLength bounds a single request/piece payload to 16 KiB, the
// protocol's block granularity.
const MaxBlockLength = 16 * 1024

// maxFrameLength is 16 KiB of block data plus the 9-byte piece message
// header (index, begin, id). A larger length prefix is a protocol violation.
const maxFrameLength = MaxBlockLength + 9

// ErrFrameTooLarge is returned when a length prefix exceeds maxFrameLength.
var ErrFrameTooLarge = errors.New("peerwire: frame length exceeds protocol limit")

// Message is a decoded peer wire message. A nil *Message (returned without
// an error) represents a keep-alive.
type Message struct {
	ID      ID
	Payload []byte
}

// Serialize encodes m as a length-prefixed frame. A nil *Message serializes
// as a zero-length keep-alive frame.
func (m *Message) Serialize() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads one frame from r. It tolerates the reader blocking for
// more bytes (io.ReadFull already does), and returns (nil, nil) for a
// keep-alive frame. A length prefix over the protocol limit is fatal for
// the session.
func ReadMessage(r *bufio.Reader) (*Message, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, errors.Wrap(err, "peerwire: read length prefix")
	}
	length := binary.BigEndian.Uint32(lenBuf)

	if length == 0 {
		return nil, nil
	}
	if length > maxFrameLength {
		return nil, errors.Wrapf(ErrFrameTooLarge, "length %d", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "peerwire: read frame body")
	}

	return &Message{ID: ID(body[0]), Payload: body[1:]}, nil
}

// NewHave builds a 'have' message for piece index.
func NewHave(index int) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return &Message{ID: Have, Payload: payload}
}

// NewRequest builds a 'request' message. A 'cancel' has the same payload
// shape, but this function always sets the Request ID.
func NewRequest(index, begin, length int) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return &Message{ID: Request, Payload: payload}
}

// ParseHave decodes a 'have' message's piece index.
func ParseHave(m *Message) (int, error) {
	if m.ID != Have {
		return 0, errors.Errorf("peerwire: expected have, got id %d", m.ID)
	}
	if len(m.Payload) != 4 {
		return 0, errors.Errorf("peerwire: have payload length %d, want 4", len(m.Payload))
	}
	return int(binary.BigEndian.Uint32(m.Payload)), nil
}

// ParseRequest decodes a 'request' or 'cancel' message's (index, begin, length).
func ParseRequest(m *Message) (index, begin, length int, err error) {
	if len(m.Payload) != 12 {
		return 0, 0, 0, errors.Errorf("peerwire: request payload length %d, want 12", len(m.Payload))
	}
	index = int(binary.BigEndian.Uint32(m.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(m.Payload[4:8]))
	length = int(binary.BigEndian.Uint32(m.Payload[8:12]))
	return index, begin, length, nil
}

// ParsePiece validates and copies a 'piece' message's block data into buf at
// the offset it declares, returning the number of bytes copied.
func ParsePiece(wantIndex int, buf []byte, m *Message) (int, error) {
	if m.ID != Piece {
		return 0, errors.Errorf("peerwire: expected piece, got id %d", m.ID)
	}
	if len(m.Payload) < 8 {
		return 0, errors.Errorf("peerwire: piece payload too short (%d bytes)", len(m.Payload))
	}
	index := int(binary.BigEndian.Uint32(m.Payload[0:4]))
	if index != wantIndex {
		return 0, errors.Errorf("peerwire: piece index %d, want %d", index, wantIndex)
	}
	begin := int(binary.BigEndian.Uint32(m.Payload[4:8]))
	if begin < 0 || begin >= len(buf) {
		return 0, errors.Errorf("peerwire: piece begin %d out of range [0,%d)", begin, len(buf))
	}
	data := m.Payload[8:]
	if begin+len(data) > len(buf) {
		return 0, errors.Errorf("peerwire: piece data overruns buffer (begin=%d len=%d cap=%d)", begin, len(data), len(buf))
	}
	copy(buf[begin:], data)
	return len(data), nil
}
