package coordinator

import (
	"os"
	"sync"

	"github.com/BSiddharth/Rusty-Bit/layout"
	"github.com/pkg/errors"
)

// fileStore is the mutex-protected file-handle map: handles are opened once
// and shared across sessions, looked up under the lock, but the positional
// writes themselves run outside it since each segment targets a disjoint
// byte range.
type fileStore struct {
	mu      sync.Mutex
	handles map[string]*os.File
}

func newFileStore() *fileStore {
	return &fileStore{handles: make(map[string]*os.File)}
}

func (fs *fileStore) handle(path string) (*os.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if f, ok := fs.handles[path]; ok {
		return f, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "coordinator: open %s", path)
	}
	fs.handles[path] = f
	return f, nil
}

// writeSegments splits data across the layout segments for one piece and
// writes each slice at its segment's file offset using positional I/O, so
// concurrent writes to disjoint ranges of the same file never interfere.
func (fs *fileStore) writeSegments(segs []layout.Segment, data []byte) error {
	var off int64
	for _, seg := range segs {
		f, err := fs.handle(seg.Path)
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(data[off:off+seg.Length], seg.Offset); err != nil {
			return errors.Wrapf(err, "coordinator: write %s at offset %d", seg.Path, seg.Offset)
		}
		off += seg.Length
	}
	return nil
}

// readSegments reassembles one piece's bytes from disk, for the resume scan.
func (fs *fileStore) readSegments(segs []layout.Segment, total int64) ([]byte, error) {
	buf := make([]byte, total)
	var off int64
	for _, seg := range segs {
		f, err := fs.handle(seg.Path)
		if err != nil {
			return nil, err
		}
		if _, err := f.ReadAt(buf[off:off+seg.Length], seg.Offset); err != nil {
			return nil, errors.Wrapf(err, "coordinator: read %s at offset %d", seg.Path, seg.Offset)
		}
		off += seg.Length
	}
	return buf, nil
}

func (fs *fileStore) closeAll() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, f := range fs.handles {
		f.Close()
	}
}
