package sampler

import (
	"iter"
	"time"

	"github.com/0xA1M/sentinel-audit/internal/event"
)

// FileTracker keeps the modification time index for one monitored tree.
// Paths are never removed from the index, so a deleted file keeps its last
// known entry.
type FileTracker struct {
	index FileIndex
	now   func() time.Time
}

func NewFileTracker() *FileTracker {
	return &FileTracker{
		index: make(FileIndex),
		now:   time.Now,
	}
}

// Scan consumes one full traversal of root and returns the resulting events
// followed by a single summary event. changed is the number of FileChanged
// events in the returned slice.
func (ft *FileTracker) Scan(root string, entries iter.Seq[FileEntry]) (events []event.Event, changed int) {
	for entry := range entries {
		if entry.Err != nil {
			events = append(events, event.NewFileMissing(ft.now(), entry.Path, entry.Err))
			continue
		}

		known, exists := ft.index[entry.Path]
		switch {
		case !exists:
			ft.index[entry.Path] = entry.ModTime
		case !known.Equal(entry.ModTime):
			events = append(events, event.NewFileChanged(ft.now(), entry.Path))
			ft.index[entry.Path] = entry.ModTime
			changed++
		}
	}

	events = append(events, event.NewFileScanSummary(ft.now(), root, changed))
	return events, changed
}

// Len returns the number of indexed paths.
func (ft *FileTracker) Len() int {
	return len(ft.index)
}

// ModTime returns the indexed modification time of path.
func (ft *FileTracker) ModTime(path string) (time.Time, bool) {
	t, ok := ft.index[path]
	return t, ok
}
