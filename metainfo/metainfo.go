// Package metainfo provides a typed view over a decoded bencode metainfo
// dictionary: the announce URL, the info subtree (piece length, pieces
// digest, single- or multi-file layout) and the content identifier
// (info-hash) that binds a torrent to its swarm.
package metainfo

import (
	"crypto/sha1"
	"io"

	"github.com/BSiddharth/Rusty-Bit/bencode"
	"github.com/pkg/errors"
)

const HashSize = sha1.Size

// FileEntry is one file of a multi-file torrent's info dictionary.
type FileEntry struct {
	Length int64
	Path   []string // path segments, joined by the caller with the platform separator
}

// Info is the 'info' subtree of a metainfo file.
type Info struct {
	Name        string
	PieceLength int64
	Pieces      []byte // concatenated 20-byte SHA-1 digests, one per piece

	// Single-file form: Length > 0 and Files is empty.
	// Multi-file form: Files is non-empty and Length is the sum of its entries.
	Length int64
	Files  []FileEntry

	raw []byte // exact source bytes of the info dictionary, used for InfoHash
}

// Metainfo is the typed top-level view of a decoded .torrent file.
type Metainfo struct {
	Announce string
	Info     Info
}

// Decode reads a metainfo file from r and builds its typed view. The
// underlying bencode decode is strict: malformed digits, truncated input, or
// out-of-order dictionary keys all fail here before any peer is contacted,
// per the fatal-before-peers error policy.
func Decode(r io.Reader) (*Metainfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: read torrent file")
	}
	return Parse(data)
}

// Parse builds a typed Metainfo from raw metainfo bytes.
func Parse(data []byte) (*Metainfo, error) {
	root, _, err := bencode.Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: decode bencode")
	}
	if root.Kind != bencode.Dict {
		return nil, errors.Wrap(bencode.ErrTypeMismatch, "metainfo: top level value is not a dictionary")
	}

	announce, _ := root.GetString("announce")

	infoVal, ok := root.GetDict("info")
	if !ok {
		return nil, errors.Wrap(bencode.ErrTypeMismatch, "metainfo: missing info dictionary")
	}

	info, err := parseInfo(infoVal)
	if err != nil {
		return nil, err
	}

	return &Metainfo{Announce: announce, Info: *info}, nil
}

func parseInfo(v *bencode.Value) (*Info, error) {
	name, ok := v.GetString("name")
	if !ok {
		return nil, errors.Wrap(bencode.ErrTypeMismatch, "metainfo: info.name is not a string")
	}
	pieceLength, ok := v.GetInt("piece length")
	if !ok || pieceLength <= 0 {
		return nil, errors.Wrap(bencode.ErrTypeMismatch, "metainfo: info.piece length is not a positive integer")
	}
	piecesVal, ok := v.Get("pieces")
	if !ok || piecesVal.Kind != bencode.String {
		return nil, errors.Wrap(bencode.ErrTypeMismatch, "metainfo: info.pieces is not a string")
	}
	if len(piecesVal.Str)%HashSize != 0 {
		return nil, errors.Errorf("metainfo: info.pieces length %d is not a multiple of %d", len(piecesVal.Str), HashSize)
	}

	info := &Info{
		Name:        name,
		PieceLength: pieceLength,
		Pieces:      piecesVal.Str,
		raw:         v.Raw,
	}

	if filesVal, ok := v.GetList("files"); ok {
		files := make([]FileEntry, 0, len(filesVal))
		var total int64
		for _, fv := range filesVal {
			length, ok := fv.GetInt("length")
			if !ok {
				return nil, errors.Wrap(bencode.ErrTypeMismatch, "metainfo: files[].length is not an integer")
			}
			pathVal, ok := fv.GetList("path")
			if !ok {
				return nil, errors.Wrap(bencode.ErrTypeMismatch, "metainfo: files[].path is not a list")
			}
			path := make([]string, len(pathVal))
			for i, seg := range pathVal {
				if seg.Kind != bencode.String {
					return nil, errors.Wrap(bencode.ErrTypeMismatch, "metainfo: files[].path[] is not a string")
				}
				path[i] = string(seg.Str)
			}
			files = append(files, FileEntry{Length: length, Path: path})
			total += length
		}
		info.Files = files
		info.Length = total
	} else {
		length, ok := v.GetInt("length")
		if !ok {
			return nil, errors.Wrap(bencode.ErrTypeMismatch, "metainfo: info has neither length nor files")
		}
		info.Length = length
	}

	return info, nil
}

// IsMultiFile reports whether this torrent describes a directory of files
// rather than a single file.
func (i *Info) IsMultiFile() bool {
	return len(i.Files) > 0
}

// NumPieces returns P, the number of pieces described by the manifest.
func (i *Info) NumPieces() int {
	return len(i.Pieces) / HashSize
}

// PieceHash returns the expected SHA-1 digest of piece index, as recorded in
// the manifest.
func (i *Info) PieceHash(index int) [HashSize]byte {
	var h [HashSize]byte
	copy(h[:], i.Pieces[index*HashSize:(index+1)*HashSize])
	return h
}

// PieceLen returns the expected length of piece index: PieceLength for every
// piece except the last, which may be shorter.
func (i *Info) PieceLen(index int) int64 {
	begin := int64(index) * i.PieceLength
	end := begin + i.PieceLength
	if end > i.Length {
		end = i.Length
	}
	return end - begin
}

// InfoHash returns the 20-byte SHA-1 of the canonical bencoded info subtree.
// It hashes the exact source bytes captured at decode time, so it is stable
// across repeated calls and independent of the encoder ever running again.
func (i *Info) InfoHash() [HashSize]byte {
	return sha1.Sum(i.raw)
}
