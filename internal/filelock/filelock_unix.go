//go:build unix

package filelock

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/cdback/cdback/internal/common"
)

func acquireShared(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return common.WrapKindf(common.KindIO, err, "lock %s", f.Name())
	}
	return nil
}

func releaseShared(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return common.WrapKindf(common.KindIO, err, "unlock %s", f.Name())
	}
	return nil
}
