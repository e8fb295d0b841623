// Package coordinator owns the shared state a leech download is built
// around: the missing-piece set, the file-handle map, the peer address
// list, and the pool of peer sessions draining them. It corresponds to the
// download coordinator component: resume scan, tracker query, bounded
// concurrency session pool, and per-piece persistence.
package coordinator

import (
	"context"
	"crypto/sha1"
	"sync/atomic"

	"github.com/BSiddharth/Rusty-Bit/layout"
	"github.com/BSiddharth/Rusty-Bit/metainfo"
	"github.com/BSiddharth/Rusty-Bit/peer"
	"github.com/BSiddharth/Rusty-Bit/tracker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the peer-session pool when Config.Concurrency
// is left at zero.
const DefaultConcurrency = 50

// ErrPartialCompletion is returned when the peer list is exhausted and
// every session has closed while the missing-piece set is still non-empty.
var ErrPartialCompletion = errors.New("coordinator: download incomplete, no peers left to try")

// Config holds the small set of knobs a run needs: where to write the
// content, how many peer sessions to run concurrently, and what peer id and
// listening port to advertise to the tracker and to peers.
type Config struct {
	DownloadRoot string
	Concurrency  int
	Port         uint16
	PeerID       [20]byte
}

// Coordinator drives one torrent's download to completion or partial
// failure. It is not reused across torrents.
type Coordinator struct {
	cfg  Config
	meta *metainfo.Metainfo
	lay  *layout.Layout

	pieces *pieceSet
	files  *fileStore

	completed int64 // atomic count of verified pieces, including resumed ones

	log *logrus.Entry
}

// New builds a Coordinator, allocates destination files, and performs the
// resume scan: every piece whose on-disk bytes already hash correctly is
// marked complete without being queued.
func New(cfg Config, meta *metainfo.Metainfo) (*Coordinator, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	lay, err := layout.Build(&meta.Info, cfg.DownloadRoot)
	if err != nil {
		return nil, errors.Wrap(err, "coordinator: build layout")
	}
	if err := layout.Allocate(lay.Files); err != nil {
		return nil, errors.Wrap(err, "coordinator: allocate files")
	}

	c := &Coordinator{
		cfg:    cfg,
		meta:   meta,
		lay:    lay,
		files:  newFileStore(),
		pieces: newPieceSet(nil),
		log:    logrus.WithField("torrent", meta.Info.Name),
	}

	missing, err := c.resumeScan()
	if err != nil {
		return nil, err
	}
	c.pieces = newPieceSet(missing)

	return c, nil
}

// resumeScan hashes each piece's existing on-disk bytes against the
// manifest, returning the indices still missing. A mismatch at startup is
// not an error: the piece is simply queued like any other.
func (c *Coordinator) resumeScan() ([]int, error) {
	var missing []int
	for i := 0; i < c.meta.Info.NumPieces(); i++ {
		data, err := c.files.readSegments(c.lay.Pieces[i], c.meta.Info.PieceLen(i))
		if err != nil {
			return nil, err
		}
		if verifyPiece(&c.meta.Info, i, data) {
			atomic.AddInt64(&c.completed, 1)
			continue
		}
		missing = append(missing, i)
	}
	c.log.WithFields(logrus.Fields{
		"total":   c.meta.Info.NumPieces(),
		"resumed": c.meta.Info.NumPieces() - len(missing),
	}).Info("coordinator: resume scan complete")
	return missing, nil
}

func verifyPiece(info *metainfo.Info, index int, data []byte) bool {
	want := info.PieceHash(index)
	got := sha1.Sum(data)
	return got == want
}

// Run queries the tracker for peers, spawns a bounded pool of peer
// sessions, and blocks until the missing-piece set is drained or every
// session has closed with pieces still outstanding.
func (c *Coordinator) Run(ctx context.Context, announce string, infoHash [20]byte) error {
	if c.pieces.Len() == 0 {
		c.log.Info("coordinator: nothing to download, already complete")
		return nil
	}

	resp, err := tracker.Announce(ctx, tracker.DefaultClient, announce, tracker.Params{
		InfoHash: infoHash,
		PeerID:   c.cfg.PeerID,
		Port:     c.cfg.Port,
		Left:     c.meta.Info.Length,
		Event:    tracker.Started,
	})
	if err != nil {
		return errors.Wrap(err, "coordinator: tracker announce")
	}
	if len(resp.Peers) == 0 {
		return errors.New("coordinator: tracker returned no peers")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for _, addr := range resp.Peers {
		addr := addr
		g.Go(func() error {
			c.runSession(gctx, addr.String(), infoHash)
			return nil
		})
	}

	_ = g.Wait()

	if c.pieces.Len() > 0 {
		return ErrPartialCompletion
	}
	return nil
}

// runSession dials one peer and drives its session to completion, logging
// and discarding any error: a failed peer is recovered locally and never
// propagates to the coordinator.
func (c *Coordinator) runSession(ctx context.Context, addr string, infoHash [20]byte) {
	sess, err := peer.Dial(addr, c.cfg.PeerID, infoHash, &c.meta.Info)
	if err != nil {
		c.log.WithFields(logrus.Fields{"peer": addr, "err": err}).Debug("coordinator: dial failed")
		return
	}

	if err := sess.Run(ctx, c.pieces, c); err != nil {
		c.log.WithFields(logrus.Fields{"peer": addr, "err": err}).Debug("coordinator: session closed")
	}
}

// Deliver implements peer.Sink: verifies the piece again, splits it across
// the layout's segments, and writes each slice at its file offset.
func (c *Coordinator) Deliver(index int, data []byte) error {
	if !verifyPiece(&c.meta.Info, index, data) {
		return errors.Errorf("coordinator: piece %d failed verification at delivery", index)
	}
	if err := c.files.writeSegments(c.lay.Pieces[index], data); err != nil {
		return err
	}
	atomic.AddInt64(&c.completed, 1)
	c.log.WithField("piece", index).Debug("coordinator: piece verified and written")
	return nil
}

// Completed reports how many of the torrent's pieces are verified on disk.
func (c *Coordinator) Completed() int {
	return int(atomic.LoadInt64(&c.completed))
}

// Close releases all open file handles. Safe to call once Run returns.
func (c *Coordinator) Close() {
	c.files.closeAll()
}
