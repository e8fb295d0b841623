// Package layout builds the piece-index -> (file, offset, length) map a
// multi-file (or single-file) torrent needs, and performs the lazy
// zero-byte pre-allocation that gives resume a substrate of existing bytes
// to hash against the manifest.
package layout

import (
	"os"
	"path/filepath"

	"github.com/BSiddharth/Rusty-Bit/metainfo"
	"github.com/pkg/errors"
)

// Segment is one (file, offset, length) slice of a piece's bytes.
type Segment struct {
	Path   string // absolute path under the download root
	Offset int64
	Length int64
}

// FileSpec is one destination file this torrent will populate.
type FileSpec struct {
	Path   string // absolute path under the download root
	Length int64
}

// Layout is the full piece -> segment map, plus the list of destination
// files it was built from.
type Layout struct {
	Files  []FileSpec
	Pieces [][]Segment // Pieces[i] is the ordered segment list for piece i
}

// Build walks the file list and piece boundaries concurrently (in the
// "simultaneously advancing two cursors" sense, not goroutines - this is
// pure bookkeeping with no I/O) to construct the layout map: for each
// piece index, an ordered list of segments whose summed lengths equal the
// piece's expected length.
func Build(info *metainfo.Info, root string) (*Layout, error) {
	files := fileSpecs(info, root)

	l := &Layout{Files: files, Pieces: make([][]Segment, info.NumPieces())}

	fileIdx := 0
	fileOff := int64(0) // bytes of the current file already assigned to earlier pieces

	for piece := 0; piece < info.NumPieces(); piece++ {
		remaining := info.PieceLen(piece)
		var segs []Segment

		for remaining > 0 {
			if fileIdx >= len(files) {
				return nil, errors.Errorf("layout: ran out of files while placing piece %d", piece)
			}
			f := files[fileIdx]
			avail := f.Length - fileOff
			take := avail
			if take > remaining {
				take = remaining
			}
			if take > 0 {
				segs = append(segs, Segment{Path: f.Path, Offset: fileOff, Length: take})
				fileOff += take
				remaining -= take
			}
			if fileOff >= f.Length {
				fileIdx++
				fileOff = 0
			}
		}

		l.Pieces[piece] = segs
	}

	return l, nil
}

// fileSpecs resolves the metainfo file shape into absolute destination paths
// under root: "<root>/<name>" for a single file, "<root>/<name>/<path...>"
// for each file of a multi-file torrent.
func fileSpecs(info *metainfo.Info, root string) []FileSpec {
	if !info.IsMultiFile() {
		return []FileSpec{{Path: filepath.Join(root, info.Name), Length: info.Length}}
	}

	specs := make([]FileSpec, len(info.Files))
	for i, f := range info.Files {
		parts := append([]string{root, info.Name}, f.Path...)
		specs[i] = FileSpec{Path: filepath.Join(parts...), Length: f.Length}
	}
	return specs
}

// Allocate creates parent directories and pre-allocates each destination
// file to its declared length with zero bytes, if it does not already exist
// at at least that length. Files already present at or above their declared
// length are left untouched - their existing bytes are resume's substrate.
func Allocate(files []FileSpec) error {
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return errors.Wrapf(err, "layout: create directory for %s", f.Path)
		}

		info, err := os.Stat(f.Path)
		switch {
		case err == nil && info.Size() >= f.Length:
			continue
		case err == nil:
			if truncErr := os.Truncate(f.Path, f.Length); truncErr != nil {
				return errors.Wrapf(truncErr, "layout: extend %s to %d bytes", f.Path, f.Length)
			}
		case os.IsNotExist(err):
			if createErr := createSized(f.Path, f.Length); createErr != nil {
				return createErr
			}
		default:
			return errors.Wrapf(err, "layout: stat %s", f.Path)
		}
	}
	return nil
}

func createSized(path string, length int64) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "layout: create %s", path)
	}
	defer file.Close()

	if err := file.Truncate(length); err != nil {
		return errors.Wrapf(err, "layout: pre-allocate %s to %d bytes", path, length)
	}
	return nil
}
