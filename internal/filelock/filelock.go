// Package filelock provides a shared advisory lock on an open file for the
// duration of a read: multiple concurrent readers of the same source file
// are allowed, and the lock is released on Close even on error paths.
package filelock

import "os"

// Lock is a RAII-style shared advisory lock acquired on an already-open
// file. Callers obtain one via Acquire and must Close it when done reading;
// the lock is released on Close regardless of whether the read succeeded.
type Lock struct {
	file *os.File
}

// Acquire takes a shared lock on f. On platforms that cannot express a
// shared advisory lock (acquireShared is a no-op there), Acquire still
// succeeds: the contract is "don't block other readers", which trivially
// holds if nothing takes locks at all.
func Acquire(f *os.File) (*Lock, error) {
	if err := acquireShared(f); err != nil {
		return nil, err
	}
	return &Lock{file: f}, nil
}

// File returns the locked file handle.
func (l *Lock) File() *os.File {
	return l.file
}

// Close releases the lock. It does not close the underlying file, since the
// lock does not own the file (see internal/sliceio, where multiple slice
// readers share one locked handle).
func (l *Lock) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return releaseShared(l.file)
}
