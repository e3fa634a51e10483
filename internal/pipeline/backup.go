// Package pipeline implements the two orchestration operations of the
// backup tool: BackupPipeline walks a source tree, chunks and
// deduplicates its content, and writes a snapshot; RestorePipeline reads a
// snapshot back and recreates the tree.
package pipeline

import (
	"bytes"
	"io"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/cdback/cdback/internal/blobstore"
	"github.com/cdback/cdback/internal/chunker"
	"github.com/cdback/cdback/internal/common"
	"github.com/cdback/cdback/internal/fswalk"
	"github.com/cdback/cdback/internal/snapshot"
	"github.com/cdback/cdback/internal/stream"
)

// BackupStats summarizes one backup run for the CLI's human-readable
// summary line (common.HumanBytes wraps the counts at the cmd layer).
type BackupStats struct {
	FilesWalked    int
	SymlinksWalked int
	ChunksEmitted  int
	ChunksWritten  int
	ChunksDeduped  int
	BytesWritten   uint64
}

// BackupPipeline chunks and deduplicates root's content into store and
// returns the blobstore key of the resulting snapshot.
type BackupPipeline struct {
	Store  *blobstore.Store
	Config chunker.Config
	Logger common.Logger
}

// NewBackupPipeline builds a pipeline with cfg and logger, defaulting
// logger to common.NullLogger when nil.
func NewBackupPipeline(store *blobstore.Store, cfg chunker.Config, logger common.Logger) *BackupPipeline {
	if logger == nil {
		logger = common.NullLogger
	}
	return &BackupPipeline{Store: store, Config: cfg, Logger: logger}
}

// Run walks root, chunks and deduplicates its content (seeded from baseKey's
// chunks when baseKey is non-empty), and writes the resulting snapshot to
// the pipeline's store. It returns the snapshot's blobstore key.
func (p *BackupPipeline) Run(root string, baseKey string) (string, BackupStats, error) {
	var stats BackupStats

	var base *snapshot.Snapshot
	if baseKey != "" {
		loaded, err := p.loadSnapshot(baseKey)
		if err != nil {
			return "", stats, common.WrapKindf(common.KindOf(err), err, "load base snapshot %s", baseKey)
		}
		base = loaded
		p.Logger.Log(common.LogInfo, "loaded base snapshot with "+strconv.Itoa(len(base.Chunks))+" chunks")
	}

	walked, err := fswalk.Walk(root)
	if err != nil {
		return "", stats, err
	}
	stats.FilesWalked = len(walked.Files)
	stats.SymlinksWalked = len(walked.FileSymlinks)
	p.Logger.Log(common.LogInfo, "walked "+strconv.Itoa(len(walked.Files))+" files, "+strconv.Itoa(len(walked.FileSymlinks))+" symlinks/hardlinks")

	registry := stream.NewFileRegistry(walked.Sources)
	globalStream := stream.NewGlobalStream(walked.Sources)
	defer globalStream.Close()

	ck, err := chunker.New(globalStream, p.Config)
	if err != nil {
		return "", stats, common.WrapKindf(common.KindInvalidInput, err, "configure chunker")
	}

	cache := newDedupCache(base)

	pathIndex := make(map[string]uint32, len(walked.Files))
	for i, f := range walked.Files {
		pathIndex[f.Path] = uint32(i)
	}
	cursor := uint32(0)

	var snap snapshot.Snapshot
	snap.Files = walked.Files
	snap.FileSymlinks = walked.FileSymlinks

	for {
		chunk, err := ck.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", stats, common.WrapKindf(common.KindIO, err, "read source content")
		}
		stats.ChunksEmitted++

		hash := blake3.Sum256(chunk.Data)
		writtenBefore := stats.ChunksWritten
		chunkIdx, err := cache.resolve(hash, func() (snapshot.ChunkEntry, error) {
			loc, err := p.Store.Put(bytes.NewReader(chunk.Data), int64(len(chunk.Data)))
			if err != nil {
				return snapshot.ChunkEntry{}, err
			}
			stats.ChunksWritten++
			stats.BytesWritten += uint64(len(chunk.Data))
			return snapshot.ChunkEntry{Hash: hash, Location: loc}, nil
		}, &snap.Chunks)
		if err != nil {
			return "", stats, common.WrapKindf(common.KindIO, err, "store chunk")
		}
		if stats.ChunksWritten == writtenBefore {
			stats.ChunksDeduped++
		}

		sources, err := registry.Resolve(chunk.GlobalOffset, uint32(len(chunk.Data)))
		if err != nil {
			return "", stats, err
		}

		var chunkOffset uint32
		for _, src := range sources {
			// Walk the monotonic cursor forward through files[] until it
			// names this source: a source path the walk never assigned an
			// index to (or one that would require moving the cursor
			// backward) means the chunker and registry have fallen out of
			// sync with the walk, which should never happen and is fatal
			// if it does.
			idx, ok := pathIndex[src.Path]
			if !ok || idx < cursor {
				return "", stats, common.NewKindf(common.KindInvalidData, "chunk source %s out of order with walk", src.Path)
			}
			cursor = idx

			snap.FileChunks = append(snap.FileChunks, snapshot.FileChunk{
				FileIndex:   idx,
				ChunkIndex:  chunkIdx,
				FileOffset:  src.FileOffset,
				ChunkOffset: chunkOffset,
				Length:      src.Length,
			})
			chunkOffset += src.Length
		}
	}

	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, &snap); err != nil {
		return "", stats, common.WrapKindf(common.KindIO, err, "encode snapshot")
	}

	key, err := p.Store.Put(&buf, int64(buf.Len()))
	if err != nil {
		return "", stats, common.WrapKindf(common.KindIO, err, "write snapshot")
	}
	return key, stats, nil
}

func (p *BackupPipeline) loadSnapshot(key string) (*snapshot.Snapshot, error) {
	r, err := p.Store.Get(key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return snapshot.Decode(r)
}

