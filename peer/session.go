// Package peer implements the per-peer state machine: handshake, bitfield
// bookkeeping, interested/unchoke, and pipelined block requests against a
// shared pool of missing pieces.
package peer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	stderrors "errors"
	"net"
	"time"

	"github.com/BSiddharth/Rusty-Bit/bitfield"
	"github.com/BSiddharth/Rusty-Bit/metainfo"
	"github.com/BSiddharth/Rusty-Bit/peerwire"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is the session's position in the Connecting -> Handshaking ->
// BitfieldWait -> Ready -> Working -> Closed lifecycle.
type State int

const (
	Connecting State = iota
	Handshaking
	BitfieldWait
	Ready
	Working
	Closed
)

const (
	maxPipeline    = 5                // up to 5 block requests in flight per session
	requestTimeout = 30 * time.Second // a request with no matching piece within this is failed
	keepAliveEvery = 2 * time.Minute  // no bytes received in this long -> send a keep-alive
	idleTimeout    = 3 * time.Minute  // no bytes received in this long -> close
	dialTimeout    = 3 * time.Second
	handshakeWait  = 5 * time.Second
)

// ErrProtocolViolation covers frame or message-shape errors that are fatal
// for a session but not for the swarm as a whole.
var ErrProtocolViolation = errors.New("peer: protocol violation")

// ErrPieceHashMismatch is returned when a fully-assembled piece's SHA-1
// doesn't match the manifest; the peer is treated as malicious or corrupt.
var ErrPieceHashMismatch = errors.New("peer: piece hash mismatch")

// errChoked is an internal sentinel: the remote choked us mid-pipeline. The
// in-progress piece is requeued and the session parks back in Ready rather
// than closing: a choke reverts the session to Ready and parks it.
var errChoked = errors.New("peer: choked mid-pipeline")

// PieceQueue is the coordinator's shared missing-piece set, as seen by a
// single session: pop a candidate, or push one back (e.g. not in this
// peer's have-set, or a download attempt failed).
type PieceQueue interface {
	Pop() (index int, ok bool)
	PushBack(index int)
	Len() int
}

// Sink receives a verified piece's bytes for persistence.
type Sink interface {
	Deliver(index int, data []byte) error
}

// Session is a single peer connection and its protocol state.
type Session struct {
	conn   net.Conn
	r      *bufio.Reader
	addr   string
	info   *metainfo.Info
	peerID [20]byte
	remote [20]byte

	state   State
	choked  bool // remote's view of us: true until it unchokes us
	haveSet bitfield.Bitfield

	log *logrus.Entry
}

// Dial opens a TCP connection to addr and performs the handshake. The
// connection is rejected - closed, with no further message sent - if the
// remote's advertised info hash doesn't match ours.
func Dial(addr string, peerID, infoHash [20]byte, info *metainfo.Info) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "peer: dial %s", addr)
	}
	return newSession(conn, addr, peerID, infoHash, info)
}

// newSession performs the handshake over an already-open connection. Split
// out from Dial so tests can drive the state machine over an in-memory
// net.Pipe instead of a real socket.
func newSession(conn net.Conn, addr string, peerID, infoHash [20]byte, info *metainfo.Info) (*Session, error) {
	s := &Session{
		conn:   conn,
		r:      bufio.NewReader(conn),
		addr:   addr,
		info:   info,
		peerID: peerID,
		state:  Handshaking,
		choked: true,
		log:    logrus.WithField("peer", addr),
	}

	if err := s.handshake(infoHash); err != nil {
		conn.Close()
		return nil, err
	}

	s.state = BitfieldWait
	return s, nil
}

func (s *Session) handshake(infoHash [20]byte) error {
	s.conn.SetDeadline(time.Now().Add(handshakeWait))
	defer s.conn.SetDeadline(time.Time{})

	hs := &peerwire.Handshake{InfoHash: infoHash, PeerID: s.peerID}
	if _, err := s.conn.Write(hs.Serialize()); err != nil {
		return errors.Wrap(err, "peer: send handshake")
	}

	remote, err := peerwire.ExpectInfoHash(s.r, infoHash)
	if err != nil {
		return err
	}
	s.remote = remote.PeerID
	return nil
}

// Run drives the session through BitfieldWait -> Ready -> Working, pulling
// piece indices from queue until it is drained, the peer has nothing this
// session can use, or an unrecoverable error closes the session. Any piece
// left in flight when Run returns has already been pushed back onto queue.
func (s *Session) Run(ctx context.Context, queue PieceQueue, sink Sink) error {
	defer func() {
		s.state = Closed
		s.conn.Close()
	}()

	if err := s.awaitFirstMessage(); err != nil {
		return err
	}
	s.state = Ready

	if err := s.send(&peerwire.Message{ID: peerwire.Interested}); err != nil {
		return err
	}
	s.state = Working

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if s.choked {
			if err := s.waitForUnchoke(ctx); err != nil {
				return err
			}
			s.state = Working
		}

		index, ok := s.selectPiece(queue)
		if !ok {
			return nil
		}

		data, err := s.downloadPiece(index)
		if errors.Is(err, errChoked) {
			queue.PushBack(index)
			s.state = Ready
			continue
		}
		if err != nil {
			queue.PushBack(index)
			return err
		}

		if !s.verify(index, data) {
			queue.PushBack(index)
			s.log.WithField("piece", index).Warn("peer: piece hash mismatch, closing session")
			return ErrPieceHashMismatch
		}

		if err := sink.Deliver(index, data); err != nil {
			queue.PushBack(index)
			return errors.Wrap(err, "peer: deliver piece")
		}
		_ = s.send(peerwire.NewHave(index)) // best-effort courtesy, not serving
	}
}

// awaitFirstMessage implements BitfieldWait -> Ready: the first message
// received seeds the have-set (bitfield, have, or - if it's neither -
// nothing at all, leaving the have-set empty).
func (s *Session) awaitFirstMessage() error {
	s.haveSet = bitfield.New(s.info.NumPieces())

	msg, err := s.readNext()
	if err != nil {
		return err
	}
	if msg == nil {
		return nil // keep-alive as the first frame; have-set stays empty
	}

	switch msg.ID {
	case peerwire.BitfieldMsg:
		copy(s.haveSet, msg.Payload)
	case peerwire.Have:
		index, err := peerwire.ParseHave(msg)
		if err != nil {
			return errors.Wrap(ErrProtocolViolation, err.Error())
		}
		s.haveSet.Set(index)
	default:
		return s.handleMessage(msg)
	}
	return nil
}

// waitForUnchoke reads and dispatches messages until the remote unchokes
// us, applying the keep-alive/idle policy while it does.
func (s *Session) waitForUnchoke(ctx context.Context) error {
	for s.choked {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, err := s.readNext()
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}
		if err := s.handleMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// selectPiece pops candidates from queue until it finds one this peer's
// have-set claims, pushing the rest back. If it scans the whole queue
// without finding one, the peer can't help with anything left and the
// session ends.
func (s *Session) selectPiece(queue PieceQueue) (int, bool) {
	bound := queue.Len()
	for attempt := 0; attempt <= bound; attempt++ {
		index, ok := queue.Pop()
		if !ok {
			return 0, false
		}
		if s.haveSet.Has(index) {
			return index, true
		}
		queue.PushBack(index)
	}
	return 0, false
}

// pieceProgress tracks one in-flight piece download's pipelined requests.
type pieceProgress struct {
	index      int
	buf        []byte
	requested  int
	downloaded int
	backlog    int
}

// downloadPiece pipelines up to maxPipeline concurrent block requests for
// piece index, reassembling responses (which may arrive out of order) by
// writing each at its declared begin offset.
func (s *Session) downloadPiece(index int) ([]byte, error) {
	length := int(s.info.PieceLen(index))
	p := &pieceProgress{index: index, buf: make([]byte, length)}

	for p.downloaded < length {
		if s.choked {
			return nil, errChoked
		}

		for p.backlog < maxPipeline && p.requested < length {
			blockLen := peerwire.MaxBlockLength
			if length-p.requested < blockLen {
				blockLen = length - p.requested
			}
			if err := s.send(peerwire.NewRequest(index, p.requested, blockLen)); err != nil {
				return nil, err
			}
			p.backlog++
			p.requested += blockLen
		}

		s.conn.SetReadDeadline(time.Now().Add(requestTimeout))
		msg, err := peerwire.ReadMessage(s.r)
		s.conn.SetReadDeadline(time.Time{})
		if err != nil {
			if isTimeout(err) {
				return nil, errors.Wrap(err, "peer: request timed out waiting for piece block")
			}
			return nil, errors.Wrap(err, "peer: read during piece download")
		}
		if msg == nil {
			continue // keep-alive
		}

		switch msg.ID {
		case peerwire.Piece:
			n, err := peerwire.ParsePiece(index, p.buf, msg)
			if err != nil {
				return nil, errors.Wrap(ErrProtocolViolation, err.Error())
			}
			p.downloaded += n
			p.backlog--
		case peerwire.Choke:
			s.choked = true
			return nil, errChoked
		case peerwire.Unchoke:
			s.choked = false
		case peerwire.Have:
			idx, err := peerwire.ParseHave(msg)
			if err != nil {
				return nil, errors.Wrap(ErrProtocolViolation, err.Error())
			}
			s.haveSet.Set(idx)
		default:
			// request/cancel/bitfield mid-download: we don't serve, ignore.
		}
	}

	return p.buf, nil
}

// verify compares data's SHA-1 to the manifest's digest for piece index.
func (s *Session) verify(index int, data []byte) bool {
	want := s.info.PieceHash(index)
	got := sha1.Sum(data)
	return bytes.Equal(got[:], want[:])
}

// handleMessage applies a message's effect on session state outside of an
// active piece download (choke/unchoke/have bookkeeping).
func (s *Session) handleMessage(msg *peerwire.Message) error {
	switch msg.ID {
	case peerwire.Choke:
		s.choked = true
	case peerwire.Unchoke:
		s.choked = false
	case peerwire.Have:
		index, err := peerwire.ParseHave(msg)
		if err != nil {
			return errors.Wrap(ErrProtocolViolation, err.Error())
		}
		s.haveSet.Set(index)
	case peerwire.BitfieldMsg:
		copy(s.haveSet, msg.Payload)
	default:
		// request/cancel/piece outside of a pipeline: nothing to do.
	}
	return nil
}

// readNext reads one frame, applying the keep-alive/idle-timeout policy: if
// nothing arrives for keepAliveEvery, it sends a keep-alive of its own and
// keeps waiting up to idleTimeout total before giving up.
func (s *Session) readNext() (*peerwire.Message, error) {
	s.conn.SetReadDeadline(time.Now().Add(keepAliveEvery))
	msg, err := peerwire.ReadMessage(s.r)
	if err == nil {
		s.conn.SetReadDeadline(time.Time{})
		return msg, nil
	}
	if !isTimeout(err) {
		return nil, err
	}

	if sendErr := s.send(nil); sendErr != nil {
		return nil, sendErr
	}

	s.conn.SetReadDeadline(time.Now().Add(idleTimeout - keepAliveEvery))
	msg, err = peerwire.ReadMessage(s.r)
	s.conn.SetReadDeadline(time.Time{})
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Wrap(err, "peer: idle timeout")
		}
		return nil, err
	}
	return msg, nil
}

func (s *Session) send(msg *peerwire.Message) error {
	_, err := s.conn.Write(msg.Serialize())
	if err != nil {
		return errors.Wrap(err, "peer: write message")
	}
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if stderrors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
