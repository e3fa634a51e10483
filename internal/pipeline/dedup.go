package pipeline

import "github.com/cdback/cdback/internal/snapshot"

// dedupSlot tracks one known chunk hash's status: either a chunk entry
// inherited from the base snapshot that hasn't yet been referenced in the
// new one (Available), or the index under which it has already been
// appended to the new snapshot's chunks[] (Reused). Once a slot is
// referenced it stays Reused for the rest of the run, so repeated hashes —
// whether inherited from base or produced twice in this same pass — only
// ever occupy one chunks[] slot. That keeps chunk hashes unique within a
// single snapshot unconditionally, not just across snapshots: a new
// backup with no base that happens to produce the same chunk bytes twice
// (e.g. two byte-identical files) still dedups within the run, rather
// than writing the bytes twice and violating uniqueness. See DESIGN.md
// for the reasoning behind this choice.
type dedupSlot struct {
	available   *snapshot.ChunkEntry
	reusedIndex uint32
	hasReused   bool
}

// dedupCache maps a chunk's BLAKE3 hash to its slot.
type dedupCache map[[32]byte]*dedupSlot

func newDedupCache(base *snapshot.Snapshot) dedupCache {
	cache := make(dedupCache)
	if base == nil {
		return cache
	}
	for i := range base.Chunks {
		entry := base.Chunks[i]
		cache[entry.Hash] = &dedupSlot{available: &entry}
	}
	return cache
}

// resolve returns the chunks[] index for hash, allocating a new one via
// upload if this is the first time the run has seen it. upload is called at
// most once per distinct hash per run.
func (c dedupCache) resolve(hash [32]byte, upload func() (snapshot.ChunkEntry, error), chunks *[]snapshot.ChunkEntry) (uint32, error) {
	slot, ok := c[hash]
	if ok {
		if slot.hasReused {
			return slot.reusedIndex, nil
		}
		idx := uint32(len(*chunks))
		*chunks = append(*chunks, *slot.available)
		slot.available = nil
		slot.reusedIndex = idx
		slot.hasReused = true
		return idx, nil
	}

	entry, err := upload()
	if err != nil {
		return 0, err
	}
	idx := uint32(len(*chunks))
	*chunks = append(*chunks, entry)
	c[hash] = &dedupSlot{reusedIndex: idx, hasReused: true}
	return idx, nil
}
