package pipeline_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cdback/cdback/internal/blobstore"
	"github.com/cdback/cdback/internal/chunker"
	"github.com/cdback/cdback/internal/common"
	"github.com/cdback/cdback/internal/pipeline"
)

func newStore(t *testing.T) *blobstore.Store {
	t.Helper()
	s, err := blobstore.Open(filepath.Join(t.TempDir(), "blob.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func readFileBytes(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello, world"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("nested content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "empty.txt"), nil, 0o644))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(src, "link.txt")))

	store := newStore(t)
	backup := pipeline.NewBackupPipeline(store, chunker.DefaultConfig(), common.NullLogger)
	rootKey, stats, err := backup.Run(src, "")
	require.NoError(t, err)
	require.Equal(t, 3, stats.FilesWalked)
	require.Equal(t, 1, stats.SymlinksWalked)

	dst := t.TempDir()
	restore := pipeline.NewRestorePipeline(store, common.NullLogger, true)
	rstats, err := restore.Run(rootKey, dst)
	require.NoError(t, err)
	require.Equal(t, 3, rstats.FilesWritten)
	require.Equal(t, 1, rstats.SymlinksWritten)

	require.Equal(t, "hello, world", string(readFileBytes(t, filepath.Join(dst, "a.txt"))))
	require.Equal(t, "nested content", string(readFileBytes(t, filepath.Join(dst, "sub", "b.txt"))))
	require.Equal(t, []byte{}, readFileBytes(t, filepath.Join(dst, "empty.txt")))

	target, err := os.Readlink(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	require.Equal(t, "a.txt", target)
}

func TestBackupRestoreHardLinks(t *testing.T) {
	src := t.TempDir()
	original := filepath.Join(src, "a-first.txt")
	require.NoError(t, os.WriteFile(original, []byte("shared content"), 0o644))
	require.NoError(t, os.Link(original, filepath.Join(src, "z-second.txt")))

	store := newStore(t)
	backup := pipeline.NewBackupPipeline(store, chunker.DefaultConfig(), common.NullLogger)
	rootKey, _, err := backup.Run(src, "")
	require.NoError(t, err)

	dst := t.TempDir()
	restore := pipeline.NewRestorePipeline(store, common.NullLogger, true)
	rstats, err := restore.Run(rootKey, dst)
	require.NoError(t, err)
	require.Equal(t, 1, rstats.FilesWritten)
	require.Equal(t, 1, rstats.HardlinksMade)

	info1, err := os.Stat(filepath.Join(dst, "a-first.txt"))
	require.NoError(t, err)
	info2, err := os.Stat(filepath.Join(dst, "z-second.txt"))
	require.NoError(t, err)
	require.True(t, os.SameFile(info1, info2))
}

func TestBackupDeduplicatesIdenticalContentWithinOneRun(t *testing.T) {
	src := t.TempDir()
	// Random content gives the chunker content-defined cut points, so once
	// the global stream passes into b.bin it cuts where it cut a.bin and
	// repeats a.bin's interior chunks.
	content := make([]byte, 100*1024)
	rand.New(rand.NewSource(1)).Read(content)
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.bin"), content, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.bin"), content, 0o644))

	store := newStore(t)
	backup := pipeline.NewBackupPipeline(store, chunker.DefaultConfig(), common.NullLogger)
	rootKey, stats, err := backup.Run(src, "")
	require.NoError(t, err)
	require.Equal(t, 2, stats.FilesWalked)
	require.Greater(t, stats.ChunksDeduped, 0)

	dst := t.TempDir()
	restore := pipeline.NewRestorePipeline(store, common.NullLogger, true)
	_, err = restore.Run(rootKey, dst)
	require.NoError(t, err)

	require.Equal(t, content, readFileBytes(t, filepath.Join(dst, "a.bin")))
	require.Equal(t, content, readFileBytes(t, filepath.Join(dst, "b.bin")))
}

func TestBackupWithBaseSnapshotReusesChunks(t *testing.T) {
	src := t.TempDir()
	unchanged := make([]byte, 100*1024)
	rand.New(rand.NewSource(1)).Read(unchanged)
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.bin"), unchanged, 0o644))

	store := newStore(t)
	backup := pipeline.NewBackupPipeline(store, chunker.DefaultConfig(), common.NullLogger)
	baseKey, baseStats, err := backup.Run(src, "")
	require.NoError(t, err)
	require.Greater(t, baseStats.ChunksWritten, 0)

	// Add a second, new file after a.bin in walk order; every chunk of
	// a.bin except the last, which now runs on into b.bin's bytes in the
	// global stream, is reused from base rather than rewritten.
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.bin"), []byte("brand new file content"), 0o644))

	secondKey, secondStats, err := backup.Run(src, baseKey)
	require.NoError(t, err)
	require.Greater(t, secondStats.ChunksDeduped, 0)

	dst := t.TempDir()
	restore := pipeline.NewRestorePipeline(store, common.NullLogger, true)
	_, err = restore.Run(secondKey, dst)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dst, "b.bin"))
}

func TestBackupEmptyTree(t *testing.T) {
	src := t.TempDir()
	store := newStore(t)
	backup := pipeline.NewBackupPipeline(store, chunker.DefaultConfig(), common.NullLogger)
	rootKey, stats, err := backup.Run(src, "")
	require.NoError(t, err)
	require.Equal(t, 0, stats.FilesWalked)

	dst := t.TempDir()
	restore := pipeline.NewRestorePipeline(store, common.NullLogger, true)
	rstats, err := restore.Run(rootKey, dst)
	require.NoError(t, err)
	require.Equal(t, 0, rstats.FilesWritten)
}

func TestRestoreWithoutVerifyStillWorks(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("verify me not"), 0o644))

	store := newStore(t)
	backup := pipeline.NewBackupPipeline(store, chunker.DefaultConfig(), common.NullLogger)
	rootKey, _, err := backup.Run(src, "")
	require.NoError(t, err)

	dst := t.TempDir()
	restore := pipeline.NewRestorePipeline(store, common.NullLogger, false)
	_, err = restore.Run(rootKey, dst)
	require.NoError(t, err)
	require.Equal(t, "verify me not", string(readFileBytes(t, filepath.Join(dst, "a.txt"))))
}

func TestBackupMultiChunkFileRoundTrips(t *testing.T) {
	src := t.TempDir()
	content := make([]byte, 200*1024)
	for i := range content {
		content[i] = byte((i * 7) % 256)
	}
	require.NoError(t, os.WriteFile(filepath.Join(src, "big.bin"), content, 0o644))

	store := newStore(t)
	cfg := chunker.DefaultConfig()
	backup := pipeline.NewBackupPipeline(store, cfg, common.NullLogger)
	rootKey, stats, err := backup.Run(src, "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, stats.ChunksEmitted, 3)

	dst := t.TempDir()
	restore := pipeline.NewRestorePipeline(store, common.NullLogger, true)
	_, err = restore.Run(rootKey, dst)
	require.NoError(t, err)
	require.Equal(t, content, readFileBytes(t, filepath.Join(dst, "big.bin")))
}
