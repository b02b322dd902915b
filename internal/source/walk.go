package source

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/0xA1M/sentinel-audit/internal/sampler"
)

// DirWalker lists every regular file below a root, at any depth. A root that
// is itself a symlink is followed; symlinks, sockets and devices found
// inside the tree are not reported.
type DirWalker struct {
	root string
}

// NewDirWalker returns a walker over root, made absolute when possible so
// that index keys are stable across working directories.
func NewDirWalker(root string) *DirWalker {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &DirWalker{root: root}
}

func (dw *DirWalker) Root() string {
	return dw.root
}

// Check verifies that the root exists and is a directory.
func (dw *DirWalker) Check() error {
	info, err := os.Stat(dw.root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, dw.root)
	}
	return nil
}

// Entries returns a lazy traversal. Each iteration walks the tree again.
// Directories that cannot be read are skipped; a file whose metadata cannot
// be read is yielded with Err set. Paths are reported under Root even when
// the root resolves elsewhere.
func (dw *DirWalker) Entries(ctx context.Context) iter.Seq[sampler.FileEntry] {
	return func(yield func(sampler.FileEntry) bool) {
		// WalkDir does not descend into a symlinked root, so walk its target.
		// Resolved on every pass since the link may be repointed.
		target := dw.root
		if resolved, err := filepath.EvalSymlinks(dw.root); err == nil {
			target = resolved
		}

		_ = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil {
				// Skip files and directories we don't have permissions to access
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			entry := sampler.FileEntry{Path: dw.reportedPath(target, path)}
			info, err := d.Info()
			if err != nil {
				entry.Err = err
			} else {
				entry.ModTime = info.ModTime()
			}

			if !yield(entry) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (dw *DirWalker) reportedPath(target, path string) string {
	if target == dw.root {
		return path
	}
	rel, err := filepath.Rel(target, path)
	if err != nil {
		return path
	}
	return filepath.Join(dw.root, rel)
}
