//go:build !unix

package fswalk

import "os"

// deviceInode has no stable implementation on platforms without a POSIX
// stat_t (notably Windows, where the same information requires a distinct
// GetFileInformationByHandle call this module does not make). Reporting
// ok=false disables hardlink collapsing rather than guessing: every file
// is treated as new.
func deviceInode(os.FileInfo) (dev, ino uint64, ok bool) {
	return 0, 0, false
}
