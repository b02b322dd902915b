// Package sampler turns successive raw snapshots of system state into
// change events. Nothing here touches the operating system; snapshots are
// handed in by the caller.
package sampler

import (
	"time"
)

// ProcessSnapshot maps a process identifier to its name at capture time.
type ProcessSnapshot map[int32]string

// FileIndex maps an absolute path to the last observed modification time.
type FileIndex map[string]time.Time

// NetworkCounters holds cumulative byte counters since the reporting
// subsystem started.
type NetworkCounters struct {
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
}

// FileEntry is one item produced by a directory traversal. Err is set when
// the path was listed but its modification time could not be read.
type FileEntry struct {
	Path    string
	ModTime time.Time
	Err     error
}
