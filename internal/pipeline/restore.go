package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/cdback/cdback/internal/blobstore"
	"github.com/cdback/cdback/internal/common"
	"github.com/cdback/cdback/internal/snapshot"
)

// RestoreStats summarizes one restore run for the CLI's human-readable
// summary line.
type RestoreStats struct {
	FilesWritten    int
	SymlinksWritten int
	HardlinksMade   int
	BytesWritten    uint64
}

// RestorePipeline recreates a backed-up tree from a snapshot.
type RestorePipeline struct {
	Store  *blobstore.Store
	Logger common.Logger
	// Verify, when true, re-hashes every chunk read from the store and
	// compares it against the snapshot's recorded hash before writing it.
	Verify bool
}

// NewRestorePipeline builds a pipeline, defaulting logger to
// common.NullLogger when nil. verify sets Verify; the CLI passes true
// unless --no-verify is given.
func NewRestorePipeline(store *blobstore.Store, logger common.Logger, verify bool) *RestorePipeline {
	if logger == nil {
		logger = common.NullLogger
	}
	return &RestorePipeline{Store: store, Logger: logger, Verify: verify}
}

// Run loads the snapshot at rootKey and recreates it under destination.
// destination must already exist as a directory (or be creatable as one);
// restoring into a non-empty destination is allowed, and existing files at
// the target paths are overwritten.
func (p *RestorePipeline) Run(rootKey string, destination string) (RestoreStats, error) {
	var stats RestoreStats

	r, err := p.Store.Get(rootKey)
	if err != nil {
		return stats, common.WrapKindf(common.KindIO, err, "load snapshot %s", rootKey)
	}
	snap, err := func() (*snapshot.Snapshot, error) {
		defer r.Close()
		return snapshot.Decode(r)
	}()
	if err != nil {
		return stats, common.WrapKindf(common.KindInvalidData, err, "decode snapshot %s", rootKey)
	}

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return stats, common.WrapKindf(common.KindIO, err, "create destination %s", destination)
	}

	// Group FileChunks by FileIndex, preserving each file's internal order
	// by FileOffset — the manifest doesn't guarantee FileChunks are already
	// grouped by file, only that chunks within one file are non-overlapping
	// and contiguous once sorted by offset.
	byFile := make(map[uint32][]snapshot.FileChunk, len(snap.Files))
	for _, fc := range snap.FileChunks {
		byFile[fc.FileIndex] = append(byFile[fc.FileIndex], fc)
	}
	for idx := range byFile {
		fcs := byFile[idx]
		sort.Slice(fcs, func(i, j int) bool { return fcs[i].FileOffset < fcs[j].FileOffset })
		byFile[idx] = fcs
	}

	for idx, entry := range snap.Files {
		absPath := common.FromSnapshotPath(filepath.Separator, entry.Path)
		absPath = filepath.Join(destination, absPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return stats, common.WrapKindf(common.KindIO, err, "create parent directory for %s", absPath)
		}

		written, err := p.writeFile(absPath, byFile[uint32(idx)], snap)
		if err != nil {
			return stats, err
		}
		stats.FilesWritten++
		stats.BytesWritten += written
	}

	for _, link := range snap.FileSymlinks {
		linkPath := filepath.Join(destination, common.FromSnapshotPath(filepath.Separator, link.Path))
		if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
			return stats, common.WrapKindf(common.KindIO, err, "create parent directory for %s", linkPath)
		}
		os.Remove(linkPath)

		if link.IsHard {
			targetPath := filepath.Join(destination, common.FromSnapshotPath(filepath.Separator, link.Target))
			if err := p.hardlink(targetPath, linkPath); err != nil {
				return stats, err
			}
			stats.HardlinksMade++
			continue
		}

		target := filepath.FromSlash(link.Target)
		if err := os.Symlink(target, linkPath); err != nil {
			return stats, common.WrapKindf(common.KindIO, err, "create symlink %s -> %s", linkPath, target)
		}
		stats.SymlinksWritten++
	}

	return stats, nil
}

// writeFile writes one restored file's content by reading each contributing
// chunk region in FileOffset order and copying it into place. A row whose
// FileOffset does not start where the previous row ended (a gap or an
// overlap) is rejected as InvalidData. Each read
// seeks the chunk reader to fc.ChunkOffset, the byte offset recorded for
// this range within the chunk itself, rather than trying to re-derive a
// position from FileOffset and chunk sizes.
func (p *RestorePipeline) writeFile(absPath string, chunks []snapshot.FileChunk, snap *snapshot.Snapshot) (uint64, error) {
	f, err := os.OpenFile(absPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, common.WrapKindf(common.KindIO, err, "create %s", absPath)
	}
	defer f.Close()

	var total uint64
	for _, fc := range chunks {
		if fc.FileOffset != total {
			return total, common.NewKindf(common.KindInvalidData, "%s: chunk range at offset %d, expected %d", absPath, fc.FileOffset, total)
		}
		entry := snap.Chunks[fc.ChunkIndex]
		n, err := p.copyChunkRange(f, entry, fc)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// copyChunkRange copies fc.Length bytes, starting at fc.ChunkOffset within
// the chunk identified by entry, to w. When Verify is set, the whole chunk
// is hashed and checked against entry.Hash before any of it is written,
// even though only a sub-range of the chunk may be needed here.
func (p *RestorePipeline) copyChunkRange(w io.Writer, entry snapshot.ChunkEntry, fc snapshot.FileChunk) (uint64, error) {
	r, err := p.Store.Get(entry.Location)
	if err != nil {
		return 0, common.WrapKindf(common.KindIO, err, "open chunk %x", entry.Hash)
	}
	defer r.Close()

	if p.Verify {
		h := blake3.New()
		if _, err := io.Copy(h, r); err != nil {
			return 0, common.WrapKindf(common.KindIO, err, "read chunk %x for verification", entry.Hash)
		}
		var sum [32]byte
		copy(sum[:], h.Sum(nil))
		if sum != entry.Hash {
			return 0, common.NewKindf(common.KindIntegrity, "chunk %x failed hash verification", entry.Hash)
		}
		if _, err := r.Seek(int64(fc.ChunkOffset), io.SeekStart); err != nil {
			return 0, common.WrapKindf(common.KindIO, err, "seek chunk %x", entry.Hash)
		}
	} else {
		if _, err := r.Seek(int64(fc.ChunkOffset), io.SeekStart); err != nil {
			return 0, common.WrapKindf(common.KindIO, err, "seek chunk %x", entry.Hash)
		}
	}

	n, err := io.CopyN(w, r, int64(fc.Length))
	if err != nil {
		return uint64(n), common.WrapKindf(common.KindIO, err, "copy chunk %x range", entry.Hash)
	}
	return uint64(n), nil
}

// hardlink creates linkPath as a hard link to targetPath. If targetPath
// doesn't exist yet (FileSymlinks can reference a target not yet written,
// since file order and symlink order are independent), os.Link fails;
// callers are expected to have already written every FileEntry before
// processing FileSymlinks, which Run does. On EEXIST-style collisions
// (linkPath already occupied, e.g. a prior partial restore) a uuid-suffixed
// temporary name avoids clobbering in place.
func (p *RestorePipeline) hardlink(targetPath, linkPath string) error {
	if err := os.Link(targetPath, linkPath); err != nil {
		if !os.IsExist(err) {
			return common.WrapKindf(common.KindIO, err, "hard link %s -> %s", linkPath, targetPath)
		}
		tmp := linkPath + "." + uuid.NewString() + ".tmp"
		if err := os.Link(targetPath, tmp); err != nil {
			return common.WrapKindf(common.KindIO, err, "hard link %s -> %s", tmp, targetPath)
		}
		if err := os.Rename(tmp, linkPath); err != nil {
			os.Remove(tmp)
			return common.WrapKindf(common.KindIO, err, "replace %s with hard link", linkPath)
		}
	}
	return nil
}
