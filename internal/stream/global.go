// Package stream implements the virtual concatenation of a backup's
// selected files into one byte stream (GlobalStream), and the index that
// maps a range of that stream back to the files it came from
// (FileRegistry).
package stream

import (
	"io"
	"os"

	"github.com/cdback/cdback/internal/common"
	"github.com/cdback/cdback/internal/filelock"
	"github.com/cdback/cdback/internal/sliceio"
)

// Source describes one file contributing to the global stream: the path
// recorded in the snapshot (POSIX-normalized, relative to the backup root),
// the absolute path used to open it on disk, and its size in bytes
// (determined once, at walk time, and trusted for the rest of the backup;
// callers are responsible for ensuring source files don't shrink
// mid-backup).
type Source struct {
	RelPath string
	AbsPath string
	Size    int64
}

// GlobalStream is a single io.Reader equal to the sequential concatenation
// of sources. Each file is opened (and shared-locked) lazily, exactly when
// it becomes current; GlobalStream returns 0, io.EOF only once every file
// has been fully consumed.
type GlobalStream struct {
	sources []Source
	index   int

	curFile *os.File
	curLock *filelock.Lock
	curRead *sliceio.PositionalSliceReader
}

// NewGlobalStream builds a GlobalStream over sources, in the given order.
// That order must match the order files[] will be recorded in the
// snapshot, since the chunker's determinism and FileRegistry's resolution
// both depend on it.
func NewGlobalStream(sources []Source) *GlobalStream {
	return &GlobalStream{sources: sources}
}

// Read implements io.Reader.
func (g *GlobalStream) Read(p []byte) (int, error) {
	for {
		if g.curRead == nil {
			if err := g.openNext(); err != nil {
				return 0, err
			}
			if g.curRead == nil {
				return 0, io.EOF // no more sources
			}
		}

		n, err := g.curRead.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF {
			g.closeCurrent()
			continue
		}
		if err != nil {
			return 0, err
		}
	}
}

func (g *GlobalStream) openNext() error {
	for g.index < len(g.sources) {
		src := g.sources[g.index]
		g.index++
		if src.Size == 0 {
			continue // nothing to read; this file contributes zero bytes
		}
		f, err := os.Open(src.AbsPath)
		if err != nil {
			return common.WrapKindf(common.KindIO, err, "open %s", src.AbsPath)
		}
		lock, err := filelock.Acquire(f)
		if err != nil {
			f.Close()
			return err
		}
		g.curFile = f
		g.curLock = lock
		g.curRead = sliceio.NewPositionalSliceReader(lock, 0, src.Size)
		return nil
	}
	return nil
}

func (g *GlobalStream) closeCurrent() {
	if g.curLock != nil {
		g.curLock.Close()
	}
	if g.curFile != nil {
		g.curFile.Close()
	}
	g.curFile = nil
	g.curLock = nil
	g.curRead = nil
}

// Close releases whatever source file is currently open. Safe to call even
// if the stream was fully consumed or never read from.
func (g *GlobalStream) Close() error {
	g.closeCurrent()
	return nil
}
