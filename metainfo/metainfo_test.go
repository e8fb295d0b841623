package metainfo_test

import (
	"crypto/sha1"
	"strings"
	"testing"

	"github.com/BSiddharth/Rusty-Bit/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleFileInfoHash(t *testing.T) {
	digests := strings.Repeat("x", 60) // three 20-byte digests, one per 4-byte piece
	info := "d6:lengthi12e4:name1:a12:piece lengthi4e6:pieces60:" + digests + "e"
	file := "d8:announce15:http://tracker/4:info" + info + "e"

	m, err := metainfo.Parse([]byte(file))
	require.NoError(t, err)

	assert.Equal(t, "http://tracker/", m.Announce)
	assert.Equal(t, "a", m.Info.Name)
	assert.EqualValues(t, 4, m.Info.PieceLength)
	assert.EqualValues(t, 12, m.Info.Length)
	assert.Equal(t, 3, m.Info.NumPieces())
	assert.EqualValues(t, 4, m.Info.PieceLen(0))
	assert.EqualValues(t, 4, m.Info.PieceLen(1))
	assert.EqualValues(t, 4, m.Info.PieceLen(2))

	wantHash := sha1.Sum([]byte(info))
	assert.Equal(t, wantHash, m.Info.InfoHash())
}

func TestParseMultiFile(t *testing.T) {
	info := "d4:filesld6:lengthi5e4:pathl1:aeed6:lengthi15e4:pathl1:beee" +
		"4:name3:dir12:piece lengthi8e6:pieces20:" + strings.Repeat("y", 20) + "e"
	file := "d8:announce4:http4:info" + info + "e"

	m, err := metainfo.Parse([]byte(file))
	require.NoError(t, err)

	assert.True(t, m.Info.IsMultiFile())
	require.Len(t, m.Info.Files, 2)
	assert.EqualValues(t, 5, m.Info.Files[0].Length)
	assert.Equal(t, []string{"a"}, m.Info.Files[0].Path)
	assert.EqualValues(t, 15, m.Info.Files[1].Length)
	assert.EqualValues(t, 20, m.Info.Length)
}

func TestInfoHashStableAcrossCalls(t *testing.T) {
	digest := strings.Repeat("z", 20)
	info := "d6:lengthi4e4:name1:a12:piece lengthi4e6:pieces20:" + digest + "e"
	file := "d8:announce4:http4:info" + info + "e"

	m, err := metainfo.Parse([]byte(file))
	require.NoError(t, err)

	assert.Equal(t, m.Info.InfoHash(), m.Info.InfoHash())
}

func TestParseRejectsMissingInfo(t *testing.T) {
	_, err := metainfo.Parse([]byte("d8:announce4:httpe"))
	assert.Error(t, err)
}

func TestParseRejectsBadPiecesLength(t *testing.T) {
	file := "d8:announce4:http4:infod6:lengthi4e4:name1:a12:piece lengthi4e6:pieces3:abce" + "e"
	_, err := metainfo.Parse([]byte(file))
	assert.Error(t, err)
}
