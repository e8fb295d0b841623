package coordinator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BSiddharth/Rusty-Bit/layout"
	"github.com/stretchr/testify/require"
)

func TestFileStoreWriteThenReadSegmentsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content")
	require.NoError(t, os.WriteFile(path, make([]byte, 10), 0o644))

	fs := newFileStore()
	defer fs.closeAll()

	segs := []layout.Segment{
		{Path: path, Offset: 0, Length: 4},
		{Path: path, Offset: 4, Length: 6},
	}
	data := []byte("helloworld")

	require.NoError(t, fs.writeSegments(segs, data))

	got, err := fs.readSegments(segs, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, got)
}
