package snapshot_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cdback/cdback/internal/snapshot"
)

func sampleSnapshot() *snapshot.Snapshot {
	var h1, h2 [32]byte
	h1[0] = 0xAA
	h2[0] = 0xBB
	return &snapshot.Snapshot{
		Files: []snapshot.FileEntry{
			{Path: "a.txt"},
			{Path: "dir/b.txt"},
		},
		Chunks: []snapshot.ChunkEntry{
			{Hash: h1, Location: "0:10"},
			{Hash: h2, Location: "10:20"},
		},
		FileChunks: []snapshot.FileChunk{
			{FileIndex: 0, ChunkIndex: 0, ChunkOffset: 0, FileOffset: 0, Length: 10},
			{FileIndex: 1, ChunkIndex: 1, ChunkOffset: 0, FileOffset: 0, Length: 20},
		},
		FileSymlinks: []snapshot.FileSymlink{
			{Path: "link", Target: "a.txt", IsHard: false},
			{Path: "hard", Target: "a.txt", IsHard: true},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleSnapshot()

	var buf bytes.Buffer
	require.NoError(t, snapshot.Encode(&buf, want))

	got, err := snapshot.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEncodeDecodeEmptySnapshot(t *testing.T) {
	want := &snapshot.Snapshot{}

	var buf bytes.Buffer
	require.NoError(t, snapshot.Encode(&buf, want))

	got, err := snapshot.Decode(&buf)
	require.NoError(t, err)
	require.Empty(t, got.Files)
	require.Empty(t, got.Chunks)
	require.Empty(t, got.FileChunks)
	require.Empty(t, got.FileSymlinks)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := snapshot.Decode(bytes.NewReader([]byte("NOPE1234567890")))
	require.Error(t, err)
}

func TestDecodeRejectsOutOfRangeFileIndex(t *testing.T) {
	s := sampleSnapshot()
	s.FileChunks[0].FileIndex = 99

	var buf bytes.Buffer
	require.NoError(t, snapshot.Encode(&buf, s))

	_, err := snapshot.Decode(&buf)
	require.Error(t, err)
}

func TestDecodeRejectsDuplicateChunkHash(t *testing.T) {
	s := sampleSnapshot()
	s.Chunks[1].Hash = s.Chunks[0].Hash

	var buf bytes.Buffer
	require.NoError(t, snapshot.Encode(&buf, s))

	_, err := snapshot.Decode(&buf)
	require.Error(t, err)
}
