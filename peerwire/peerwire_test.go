package peerwire_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/BSiddharth/Rusty-Bit/peerwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var infoHash, peerID [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(peerID[:], "bbbbbbbbbbbbbbbbbbbb")

	h := &peerwire.Handshake{InfoHash: infoHash, PeerID: peerID}
	wire := h.Serialize()
	require.Len(t, wire, 68)
	assert.Equal(t, byte(19), wire[0])
	assert.Equal(t, "BitTorrent protocol", string(wire[1:20]))

	got, err := peerwire.ReadHandshake(bytes.NewReader(wire))
	require.NoError(t, err)
	assert.Equal(t, infoHash, got.InfoHash)
	assert.Equal(t, peerID, got.PeerID)
}

func TestExpectInfoHashRejectsMismatch(t *testing.T) {
	var mine, theirs, peerID [20]byte
	copy(mine[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(theirs[:], "zzzzzzzzzzzzzzzzzzzz")

	h := &peerwire.Handshake{InfoHash: theirs, PeerID: peerID}
	_, err := peerwire.ExpectInfoHash(bytes.NewReader(h.Serialize()), mine)
	assert.ErrorIs(t, err, peerwire.ErrHandshakeMismatch)
}

func TestReadMessageKeepAlive(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0, 0, 0, 0}))
	m, err := peerwire.ReadMessage(r)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMessageSerializeAndRead(t *testing.T) {
	m := peerwire.NewHave(7)
	r := bufio.NewReader(bytes.NewReader(m.Serialize()))

	got, err := peerwire.ReadMessage(r)
	require.NoError(t, err)
	require.NotNil(t, got)

	index, err := peerwire.ParseHave(got)
	require.NoError(t, err)
	assert.Equal(t, 7, index)
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	lenBuf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	r := bufio.NewReader(bytes.NewReader(lenBuf))
	_, err := peerwire.ReadMessage(r)
	assert.ErrorIs(t, err, peerwire.ErrFrameTooLarge)
}

func TestParsePieceCopiesAtOffset(t *testing.T) {
	buf := make([]byte, 16)
	payload := make([]byte, 8+4)
	// index=0, begin=4, data="abcd"
	payload[3] = 0
	payload[7] = 4
	copy(payload[8:], "abcd")
	m := &peerwire.Message{ID: peerwire.Piece, Payload: payload}

	n, err := peerwire.ParsePiece(0, buf, m)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(buf[4:8]))
}

func TestParsePieceRejectsWrongIndex(t *testing.T) {
	buf := make([]byte, 16)
	payload := make([]byte, 8)
	payload[3] = 5 // index=5
	m := &peerwire.Message{ID: peerwire.Piece, Payload: payload}

	_, err := peerwire.ParsePiece(0, buf, m)
	assert.Error(t, err)
}
