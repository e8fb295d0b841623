package peer

import (
	"bufio"
	"context"
	"crypto/sha1"
	"net"
	"testing"
	"time"

	"github.com/BSiddharth/Rusty-Bit/bitfield"
	"github.com/BSiddharth/Rusty-Bit/metainfo"
	"github.com/BSiddharth/Rusty-Bit/peerwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue is a minimal in-memory PieceQueue for tests. Pop and PushBack
// work opposite ends, matching the real coordinator.pieceSet: a pushed-back
// index is not the very next thing Pop returns, so selectPiece's "push back
// and select another" scan (§4.6 step 2) can actually make progress.
type fakeQueue struct {
	items []int
}

func (q *fakeQueue) Pop() (int, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	idx := q.items[0]
	q.items = q.items[1:]
	return idx, true
}

func (q *fakeQueue) PushBack(index int) { q.items = append(q.items, index) }
func (q *fakeQueue) Len() int           { return len(q.items) }

// TestSelectPieceSkipsPieceTheHaveSetExcludes pins down spec §4.6 step 2: a
// piece the peer's have-set doesn't claim is pushed back and selection moves
// on to a different, checkable piece instead of spinning on the one it
// can't serve.
func TestSelectPieceSkipsPieceTheHaveSetExcludes(t *testing.T) {
	queue := &fakeQueue{items: []int{0, 1, 2}} // Pop order: 0, 1, 2

	s := &Session{haveSet: bitfield.New(3)}
	s.haveSet.Set(1) // only piece 1 is checkable

	index, ok := s.selectPiece(queue)
	require.True(t, ok)
	assert.Equal(t, 1, index)

	// piece 0 was pushed back and is still reachable for a later peer.
	assert.Equal(t, []int{2, 0}, queue.items)
}

type fakeSink struct {
	delivered map[int][]byte
}

func (s *fakeSink) Deliver(index int, data []byte) error {
	if s.delivered == nil {
		s.delivered = make(map[int][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.delivered[index] = cp
	return nil
}

func testInfo(t *testing.T, piece []byte) *metainfo.Info {
	t.Helper()
	hash := sha1.Sum(piece)
	return &metainfo.Info{
		Name:        "t",
		PieceLength: int64(len(piece)),
		Length:      int64(len(piece)),
		Pieces:      hash[:],
	}
}

func TestDialRejectsMismatchedInfoHash(t *testing.T) {
	client, remote := net.Pipe()
	defer client.Close()
	defer remote.Close()

	var ours, theirs, peerID [20]byte
	copy(ours[:], "11111111111111111111")
	copy(theirs[:], "22222222222222222222")

	go func() {
		hs, err := peerwire.ReadHandshake(remote)
		if err != nil {
			return
		}
		_ = hs
		reply := &peerwire.Handshake{InfoHash: theirs, PeerID: peerID}
		remote.Write(reply.Serialize())
	}()

	info := testInfo(t, []byte("xxxx"))
	_, err := newSession(client, "test", peerID, ours, info)
	assert.ErrorIs(t, err, peerwire.ErrHandshakeMismatch)
}

func TestRunDownloadsAndVerifiesPiece(t *testing.T) {
	client, remote := net.Pipe()
	defer client.Close()

	pieceData := []byte("hello world12345")
	var infoHash, peerID [20]byte
	copy(infoHash[:], "11111111111111111111")

	info := testInfo(t, pieceData)
	queue := &fakeQueue{items: []int{0}}
	sink := &fakeSink{}

	errc := make(chan error, 1)
	go func() {
		s, err := newSession(client, "test", peerID, infoHash, info)
		if err != nil {
			errc <- err
			return
		}
		errc <- s.Run(context.Background(), queue, sink)
	}()

	remoteConn := bufio.NewReader(remote)

	// remote side of handshake
	_, err := peerwire.ReadHandshake(remoteConn)
	require.NoError(t, err)
	reply := &peerwire.Handshake{InfoHash: infoHash, PeerID: peerID}
	_, err = remote.Write(reply.Serialize())
	require.NoError(t, err)

	// advertise having piece 0
	bf := []byte{0b1000_0000}
	_, err = remote.Write((&peerwire.Message{ID: peerwire.BitfieldMsg, Payload: bf}).Serialize())
	require.NoError(t, err)

	// expect interested
	msg, err := peerwire.ReadMessage(remoteConn)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, peerwire.Interested, msg.ID)

	_, err = remote.Write((&peerwire.Message{ID: peerwire.Unchoke}).Serialize())
	require.NoError(t, err)

	// answer every request with the matching slice of pieceData
	for got := 0; got < len(pieceData); {
		reqMsg, err := peerwire.ReadMessage(remoteConn)
		require.NoError(t, err)
		require.NotNil(t, reqMsg)
		require.Equal(t, peerwire.Request, reqMsg.ID)

		index, begin, length, err := peerwire.ParseRequest(reqMsg)
		require.NoError(t, err)
		assert.Equal(t, 0, index)

		payload := make([]byte, 8+length)
		payload[3] = byte(index)
		payload[7] = byte(begin)
		copy(payload[8:], pieceData[begin:begin+length])
		_, err = remote.Write((&peerwire.Message{ID: peerwire.Piece, Payload: payload}).Serialize())
		require.NoError(t, err)
		got += length
	}

	// the session announces the verified piece before it finishes
	haveMsg, err := peerwire.ReadMessage(remoteConn)
	require.NoError(t, err)
	require.NotNil(t, haveMsg)
	assert.Equal(t, peerwire.Have, haveMsg.ID)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session to finish")
	}

	assert.Equal(t, pieceData, sink.delivered[0])
}
