//go:build unix

package fswalk

import (
	"os"
	"syscall"
)

// deviceInode reports the (device, inode) pair backing fi via a
// *syscall.Stat_t assertion, the standard way to identify hard-linked
// files on POSIX systems.
func deviceInode(fi os.FileInfo) (dev, ino uint64, ok bool) {
	stat, isStat := fi.Sys().(*syscall.Stat_t)
	if !isStat {
		return 0, 0, false
	}
	return uint64(stat.Dev), uint64(stat.Ino), true
}
