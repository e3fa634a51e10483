package snapshot

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/cdback/cdback/internal/common"
)

// magic identifies the binary snapshot format; version allows the codec to
// evolve without breaking round-trip compatibility for old snapshots
// (cheap to carry since it's 5 bytes).
var magic = [4]byte{'C', 'D', 'B', 'K'}

const version = uint8(1)

// Encode writes s to w: a magic+version header, then the four vectors in
// declaration order, u32/u64 little-endian, length-prefixed byte strings
// for paths/hashes/locations.
func Encode(w io.Writer, s *Snapshot) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(magic[:]); err != nil {
		return common.WrapKind(common.KindIO, err, "write snapshot magic")
	}
	if err := bw.WriteByte(version); err != nil {
		return common.WrapKind(common.KindIO, err, "write snapshot version")
	}

	if err := writeU32(bw, uint32(len(s.Files))); err != nil {
		return err
	}
	for _, f := range s.Files {
		if err := writeString(bw, f.Path); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(s.Chunks))); err != nil {
		return err
	}
	for _, c := range s.Chunks {
		if _, err := bw.Write(c.Hash[:]); err != nil {
			return common.WrapKind(common.KindIO, err, "write chunk hash")
		}
		if err := writeString(bw, c.Location); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(s.FileChunks))); err != nil {
		return err
	}
	for _, fc := range s.FileChunks {
		if err := writeU32(bw, fc.ChunkIndex); err != nil {
			return err
		}
		if err := writeU32(bw, fc.FileIndex); err != nil {
			return err
		}
		if err := writeU32(bw, fc.ChunkOffset); err != nil {
			return err
		}
		if err := writeU64(bw, fc.FileOffset); err != nil {
			return err
		}
		if err := writeU32(bw, fc.Length); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(s.FileSymlinks))); err != nil {
		return err
	}
	for _, sl := range s.FileSymlinks {
		if err := writeString(bw, sl.Path); err != nil {
			return err
		}
		if err := writeString(bw, sl.Target); err != nil {
			return err
		}
		isHard := byte(0)
		if sl.IsHard {
			isHard = 1
		}
		if err := bw.WriteByte(isHard); err != nil {
			return common.WrapKind(common.KindIO, err, "write is_hard flag")
		}
	}

	if err := bw.Flush(); err != nil {
		return common.WrapKind(common.KindIO, err, "flush snapshot encoder")
	}
	return nil
}

// Decode reads a Snapshot previously written by Encode.
func Decode(r io.Reader) (*Snapshot, error) {
	br := bufio.NewReader(r)

	var gotMagic [4]byte
	if _, err := io.ReadFull(br, gotMagic[:]); err != nil {
		return nil, common.WrapKind(common.KindInvalidData, err, "read snapshot magic")
	}
	if gotMagic != magic {
		return nil, common.NewKind(common.KindInvalidData, "not a cdback snapshot (bad magic)")
	}
	gotVersion, err := br.ReadByte()
	if err != nil {
		return nil, common.WrapKind(common.KindInvalidData, err, "read snapshot version")
	}
	if gotVersion != version {
		return nil, common.NewKindf(common.KindInvalidData, "unsupported snapshot version %d", gotVersion)
	}

	s := &Snapshot{}

	numFiles, err := readU32(br)
	if err != nil {
		return nil, err
	}
	s.Files = make([]FileEntry, numFiles)
	for i := range s.Files {
		path, err := readString(br)
		if err != nil {
			return nil, err
		}
		s.Files[i] = FileEntry{Path: path}
	}

	numChunks, err := readU32(br)
	if err != nil {
		return nil, err
	}
	s.Chunks = make([]ChunkEntry, numChunks)
	for i := range s.Chunks {
		var hash [32]byte
		if _, err := io.ReadFull(br, hash[:]); err != nil {
			return nil, common.WrapKind(common.KindInvalidData, err, "read chunk hash")
		}
		location, err := readString(br)
		if err != nil {
			return nil, err
		}
		s.Chunks[i] = ChunkEntry{Hash: hash, Location: location}
	}

	numFileChunks, err := readU32(br)
	if err != nil {
		return nil, err
	}
	s.FileChunks = make([]FileChunk, numFileChunks)
	for i := range s.FileChunks {
		chunkIndex, err := readU32(br)
		if err != nil {
			return nil, err
		}
		fileIndex, err := readU32(br)
		if err != nil {
			return nil, err
		}
		chunkOffset, err := readU32(br)
		if err != nil {
			return nil, err
		}
		fileOffset, err := readU64(br)
		if err != nil {
			return nil, err
		}
		length, err := readU32(br)
		if err != nil {
			return nil, err
		}
		s.FileChunks[i] = FileChunk{
			ChunkIndex:  chunkIndex,
			FileIndex:   fileIndex,
			ChunkOffset: chunkOffset,
			FileOffset:  fileOffset,
			Length:      length,
		}
	}

	numSymlinks, err := readU32(br)
	if err != nil {
		return nil, err
	}
	s.FileSymlinks = make([]FileSymlink, numSymlinks)
	for i := range s.FileSymlinks {
		path, err := readString(br)
		if err != nil {
			return nil, err
		}
		target, err := readString(br)
		if err != nil {
			return nil, err
		}
		isHard, err := br.ReadByte()
		if err != nil {
			return nil, common.WrapKind(common.KindInvalidData, err, "read is_hard flag")
		}
		s.FileSymlinks[i] = FileSymlink{Path: path, Target: target, IsHard: isHard != 0}
	}

	if err := validate(s); err != nil {
		return nil, err
	}

	return s, nil
}

// validate enforces the structural invariants the codec can cheaply check
// without re-walking the original tree: index bounds, non-zero chunk
// ranges and unique chunk hashes. It does not check that each file's
// chunks form a gapless partition or that stored bytes match their
// recorded hash; RestorePipeline checks the partition at restore time, and
// the hashes too when its Verify is set.
func validate(s *Snapshot) error {
	for i, fc := range s.FileChunks {
		if int(fc.FileIndex) >= len(s.Files) {
			return common.NewKindf(common.KindInvalidData, "file_chunks[%d]: file_index %d out of range", i, fc.FileIndex)
		}
		if int(fc.ChunkIndex) >= len(s.Chunks) {
			return common.NewKindf(common.KindInvalidData, "file_chunks[%d]: chunk_index %d out of range", i, fc.ChunkIndex)
		}
		if fc.Length == 0 {
			return common.NewKindf(common.KindInvalidData, "file_chunks[%d]: zero length", i)
		}
	}
	seen := make(map[[32]byte]struct{}, len(s.Chunks))
	for i, c := range s.Chunks {
		if _, dup := seen[c.Hash]; dup {
			return common.NewKindf(common.KindInvalidData, "chunks[%d]: duplicate hash", i)
		}
		seen[c.Hash] = struct{}{}
	}
	return nil
}

func writeU32(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return common.WrapKind(common.KindIO, err, "write u32")
	}
	return nil
}

func writeU64(w *bufio.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return common.WrapKind(common.KindIO, err, "write u64")
	}
	return nil
}

func writeString(w *bufio.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	if _, err := w.WriteString(s); err != nil {
		return common.WrapKind(common.KindIO, err, "write string")
	}
	return nil
}

func readU32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, common.WrapKind(common.KindInvalidData, err, "read u32")
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r *bufio.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, common.WrapKind(common.KindInvalidData, err, "read u64")
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", common.WrapKind(common.KindInvalidData, err, "read string")
	}
	return string(buf), nil
}
