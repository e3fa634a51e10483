// Package fswalk implements a stable, name-sorted directory traversal that
// classifies each entry as a directory (recursed, not emitted), a symlink
// (recorded, never followed), or a regular file (content-pipeline
// candidate, unless its (device, inode) pair was already seen, in which
// case it's recorded as a hard link instead).
package fswalk

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cdback/cdback/internal/common"
	"github.com/cdback/cdback/internal/snapshot"
	"github.com/cdback/cdback/internal/stream"
)

// Result is everything the backup pipeline needs from a walk: the ordered
// file list and the ordered content-source list are kept in lockstep (one
// entry each per regular, non-hard-linked file, including empty files),
// and FileSymlinks carries both real symlinks and collapsed hard links in
// the order they were encountered.
type Result struct {
	Files        []snapshot.FileEntry
	Sources      []stream.Source
	FileSymlinks []snapshot.FileSymlink
}

type inodeKey struct {
	dev uint64
	ino uint64
}

// Walk traverses root and produces a Result. Symbolic links are recorded
// but never followed. On platforms where deviceInode cannot report a
// stable (device, inode) pair, every regular file is treated as new
// (hardlink collapsing disabled).
func Walk(root string) (*Result, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, common.WrapKindf(common.KindIO, err, "resolve backup root %s", root)
	}

	res := &Result{}
	seen := make(map[inodeKey]string) // inode -> relative path of first-seen file

	var walkDir func(absDir, relDir string) error
	walkDir = func(absDir, relDir string) error {
		entries, err := os.ReadDir(absDir)
		if err != nil {
			return common.WrapKindf(common.KindIO, err, "read directory %s", absDir)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			absPath := filepath.Join(absDir, entry.Name())
			relPath := entry.Name()
			if relDir != "" {
				relPath = relDir + "/" + entry.Name()
			}
			snapPath := common.ToSnapshotPath(filepath.Separator, relPath)

			info, err := os.Lstat(absPath)
			if err != nil {
				return common.WrapKindf(common.KindIO, err, "stat %s", absPath)
			}

			switch {
			case info.Mode()&os.ModeSymlink != 0:
				target, err := os.Readlink(absPath)
				if err != nil {
					return common.WrapKindf(common.KindIO, err, "readlink %s", absPath)
				}
				res.FileSymlinks = append(res.FileSymlinks, snapshot.FileSymlink{
					Path: snapPath, Target: filepath.ToSlash(target), IsHard: false,
				})
			case info.IsDir():
				if err := walkDir(absPath, relPath); err != nil {
					return err
				}
			default:
				dev, ino, ok := deviceInode(info)
				if ok {
					key := inodeKey{dev: dev, ino: ino}
					if earlier, dup := seen[key]; dup {
						res.FileSymlinks = append(res.FileSymlinks, snapshot.FileSymlink{
							Path: snapPath, Target: earlier, IsHard: true,
						})
						continue
					}
					seen[key] = snapPath
				}
				res.Files = append(res.Files, snapshot.FileEntry{Path: snapPath})
				res.Sources = append(res.Sources, stream.Source{
					RelPath: snapPath,
					AbsPath: absPath,
					Size:    info.Size(),
				})
			}
		}
		return nil
	}

	if err := walkDir(root, ""); err != nil {
		return nil, err
	}
	return res, nil
}
