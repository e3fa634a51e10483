package stream

import (
	"sort"

	"github.com/cdback/cdback/internal/common"
)

// ChunkSource is one (file, range) pair a chunk's bytes overlap: Length
// bytes of the chunk come from the file at FileOffset within that file.
type ChunkSource struct {
	Path       string
	FileOffset uint64
	Length     uint32
}

// FileRegistry precomputes each source file's cumulative global offset
// (the running sum of prior lengths) so that Resolve can binary-search from
// a chunk's [global_start, global_start+length) range to the files it
// overlaps.
type FileRegistry struct {
	sources []Source
	// cumulative[i] is the global offset at which sources[i] begins.
	cumulative []uint64
	total      uint64
}

// NewFileRegistry builds a registry over sources in the same order used to
// build the GlobalStream that produced the chunk offsets being resolved.
func NewFileRegistry(sources []Source) *FileRegistry {
	cumulative := make([]uint64, len(sources))
	var running uint64
	for i, s := range sources {
		cumulative[i] = running
		running += uint64(s.Size)
	}
	return &FileRegistry{sources: sources, cumulative: cumulative, total: running}
}

// Resolve returns, in file order, the ChunkSources a chunk occupying
// [globalStart, globalStart+length) of the stream overlaps. Each entry's
// Length fits in u32 because individual chunks are bounded by the
// chunker's max_size.
func (fr *FileRegistry) Resolve(globalStart uint64, length uint32) ([]ChunkSource, error) {
	if length == 0 {
		return nil, nil
	}
	globalEnd := globalStart + uint64(length)
	if globalEnd > fr.total {
		return nil, common.NewKindf(common.KindInvalidData, "chunk range [%d,%d) exceeds stream length %d", globalStart, globalEnd, fr.total)
	}

	// partition_point: first index whose file ends after globalStart.
	startIdx := sort.Search(len(fr.sources), func(i int) bool {
		return fr.cumulative[i]+uint64(fr.sources[i].Size) > globalStart
	})

	var out []ChunkSource
	pos := globalStart
	for i := startIdx; i < len(fr.sources) && pos < globalEnd; i++ {
		fileStart := fr.cumulative[i]
		fileEnd := fileStart + uint64(fr.sources[i].Size)
		if fileEnd <= pos {
			continue
		}
		segStart := pos
		segEnd := fileEnd
		if segEnd > globalEnd {
			segEnd = globalEnd
		}
		if segEnd <= segStart {
			continue
		}
		out = append(out, ChunkSource{
			Path:       fr.sources[i].RelPath,
			FileOffset: segStart - fileStart,
			Length:     uint32(segEnd - segStart),
		})
		pos = segEnd
	}
	return out, nil
}
