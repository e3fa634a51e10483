// Package blobstore implements an append-only, offset-addressed blob
// container: Put appends a stream and returns an opaque key; Get resolves
// a key to a seekable, bounded reader with its own file handle, independent
// of the store's lock once returned.
package blobstore

import (
	"io"
	"os"
	"sync"

	"github.com/cdback/cdback/internal/common"
)

// Store is a single physical append-only file. An internal RWMutex
// serializes Put (exclusive, for the append) against itself and against Get
// (shared, for the duration of opening + seeking + returning a reader).
type Store struct {
	path string
	mu   sync.RWMutex
	file *os.File
	size int64
}

// Open opens (creating if necessary) the blob file at path for append
// writes, and reports its current size so Put knows where to start
// appending. Any existing content is preserved.
func Open(path string) (*Store, error) {
	return open(path, os.O_CREATE|os.O_RDWR)
}

// Create opens the blob file at path for append writes, truncating any
// existing content first. Used when a backup run is explicitly allowed to
// replace a prior backup under the same name rather than append to it.
func Create(path string) (*Store, error) {
	return open(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR)
}

func open(path string, flag int) (*Store, error) {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, common.WrapKindf(common.KindIO, err, "open blob file %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, common.WrapKindf(common.KindIO, err, "stat blob file %s", path)
	}
	return &Store{path: path, file: f, size: info.Size()}, nil
}

// Close closes the store's writer handle. Readers obtained from Get are
// unaffected; they hold independent handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Close(); err != nil {
		return common.WrapKind(common.KindIO, err, "close blob file")
	}
	return nil
}

// Put appends all of r to the blob file and returns the key under which
// those bytes can later be retrieved via Get. declaredLen is advisory only:
// the actual byte count read from r is authoritative. A failure mid-copy
// leaves the blob file longer than the last successful offset; since no key
// is returned on error, those trailing bytes are harmless orphans, never
// referenced by any snapshot.
func (s *Store) Put(r io.Reader, declaredLen int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := s.size
	ow := io.NewOffsetWriter(s.file, offset)
	n, err := io.Copy(ow, r)
	if err != nil {
		return "", common.WrapKind(common.KindIO, err, "append to blob file")
	}
	s.size = offset + n
	_ = declaredLen // advisory only; actual n is what we trust

	return key{offset: offset, length: n}.String(), nil
}

// Get resolves keyStr to a BoundedReader: a seekable window over exactly
// the bytes written by the corresponding Put, backed by its own file
// handle.
func (s *Store) Get(keyStr string) (*BoundedReader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, err := parseKey(keyStr)
	if err != nil {
		return nil, err
	}
	if k.offset+k.length > s.size {
		return nil, common.NewKindf(common.KindInvalidInput, "blob key %s out of range (store size %d)", keyStr, s.size)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, common.WrapKindf(common.KindIO, err, "open blob file %s for read", s.path)
	}

	return &BoundedReader{file: f, base: k.offset, length: k.length}, nil
}

// BoundedReader is a seekable, length-capped view into a blob file. It owns
// its own *os.File, obtained from Store.Get, so its lifetime is independent
// of the Store that produced it.
type BoundedReader struct {
	file   *os.File
	base   int64
	length int64
	pos    int64
}

// Len reports the total number of bytes in this window.
func (b *BoundedReader) Len() int64 { return b.length }

// Read implements io.Reader, reading via positional reads so this reader
// never disturbs the shared seek cursor of the underlying *os.File (there
// isn't one shared here, since each BoundedReader owns its handle, but
// using ReadAt keeps the implementation consistent with
// internal/sliceio.PositionalSliceReader).
func (b *BoundedReader) Read(p []byte) (int, error) {
	if b.pos >= b.length {
		return 0, io.EOF
	}
	if max := b.length - b.pos; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := b.file.ReadAt(p, b.base+b.pos)
	b.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker, relative to the start of this window. Seeking
// outside [0, length] is an InvalidInput error.
func (b *BoundedReader) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = b.pos + offset
	case io.SeekEnd:
		newPos = b.length + offset
	default:
		return 0, common.NewKindf(common.KindInvalidInput, "invalid whence %d", whence)
	}
	if newPos < 0 || newPos > b.length {
		return 0, common.NewKindf(common.KindInvalidInput, "seek to %d out of bounds [0,%d]", newPos, b.length)
	}
	b.pos = newPos
	return newPos, nil
}

// Close releases this reader's file handle.
func (b *BoundedReader) Close() error {
	if err := b.file.Close(); err != nil {
		return common.WrapKind(common.KindIO, err, "close blob reader")
	}
	return nil
}
