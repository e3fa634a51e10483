package common

import (
	"path"
	"strings"
)

// ToSnapshotPath converts an OS-native relative path (as produced by
// filepath.Rel against the backup root) into the forward-slash form stored
// in the snapshot, so snapshots are portable between platforms.
func ToSnapshotPath(osSeparator byte, relPath string) string {
	if osSeparator == '/' {
		return path.Clean("/" + relPath)[1:]
	}
	slashed := strings.ReplaceAll(relPath, string(osSeparator), "/")
	return path.Clean("/" + slashed)[1:]
}

// FromSnapshotPath converts a stored forward-slash path back into the
// native separator for filesystem calls on this platform.
func FromSnapshotPath(osSeparator byte, snapshotPath string) string {
	if osSeparator == '/' {
		return snapshotPath
	}
	return strings.ReplaceAll(snapshotPath, "/", string(osSeparator))
}
