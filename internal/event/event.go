// Package event defines the closed set of audit events produced by the
// samplers and consumed by sinks.
package event

import (
	"fmt"
	"time"
)

// Kind tags the variant carried by an Event.
type Kind string

const (
	ProcessStarted    Kind = "process_started"
	ProcessEnded      Kind = "process_ended"
	FileChanged       Kind = "file_changed"
	FileMissing       Kind = "file_missing"
	FileScanStarted   Kind = "file_scan_started"
	NetworkSample     Kind = "network_sample"
	Heartbeat         Kind = "heartbeat"
	FileScanSummary   Kind = "file_scan_summary"
	SourceUnavailable Kind = "source_unavailable"
)

// Kinds lists every valid kind in a stable order.
var Kinds = []Kind{
	ProcessStarted,
	ProcessEnded,
	FileChanged,
	FileMissing,
	FileScanStarted,
	NetworkSample,
	Heartbeat,
	FileScanSummary,
	SourceUnavailable,
}

// Level names written to the event log.
const (
	LevelProcessStarted  = "PROCESS_STARTED"
	LevelProcessEnded    = "PROCESS_ENDED"
	LevelFileChanged     = "FILE_CHANGED"
	LevelNetworkActivity = "NETWORK_ACTIVITY"
	LevelInfo            = "INFO"
	LevelError           = "ERROR"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// LevelName returns the log level token for the kind.
func (k Kind) LevelName() string {
	switch k {
	case ProcessStarted:
		return LevelProcessStarted
	case ProcessEnded:
		return LevelProcessEnded
	case FileChanged, FileMissing, FileScanStarted:
		return LevelFileChanged
	case NetworkSample:
		return LevelNetworkActivity
	case SourceUnavailable:
		return LevelError
	default:
		return LevelInfo
	}
}

// Event is a single timestamped observation. Only the fields relevant to
// Kind are populated. Counters are always serialized since zero is a real
// reading.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	PID       int32     `json:"pid,omitempty"`
	Name      string    `json:"name,omitempty"`
	Path      string    `json:"path,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	BytesSent uint64    `json:"bytes_sent"`
	BytesRecv uint64    `json:"bytes_recv"`
	Count     int       `json:"count"`
}

func NewProcessStarted(ts time.Time, pid int32, name string) Event {
	return Event{Kind: ProcessStarted, Timestamp: ts, PID: pid, Name: name}
}

func NewProcessEnded(ts time.Time, pid int32, name string) Event {
	return Event{Kind: ProcessEnded, Timestamp: ts, PID: pid, Name: name}
}

func NewFileChanged(ts time.Time, path string) Event {
	return Event{Kind: FileChanged, Timestamp: ts, Path: path}
}

// NewFileMissing records a path whose modification time could not be read.
func NewFileMissing(ts time.Time, path string, reason error) Event {
	ev := Event{Kind: FileMissing, Timestamp: ts, Path: path}
	if reason != nil {
		ev.Reason = reason.Error()
	}
	return ev
}

// NewFileScanStarted marks the start of one traversal of root.
func NewFileScanStarted(ts time.Time, root string) Event {
	return Event{Kind: FileScanStarted, Timestamp: ts, Path: root}
}

func NewNetworkSample(ts time.Time, sent, recv uint64) Event {
	return Event{Kind: NetworkSample, Timestamp: ts, BytesSent: sent, BytesRecv: recv}
}

func NewHeartbeat(ts time.Time, processCount int) Event {
	return Event{Kind: Heartbeat, Timestamp: ts, Count: processCount}
}

// NewFileScanSummary carries the number of changed files seen during one
// traversal of root.
func NewFileScanSummary(ts time.Time, root string, changed int) Event {
	return Event{Kind: FileScanSummary, Timestamp: ts, Path: root, Count: changed}
}

func NewSourceUnavailable(ts time.Time, path string, reason error) Event {
	ev := Event{Kind: SourceUnavailable, Timestamp: ts, Path: path}
	if reason != nil {
		ev.Reason = reason.Error()
	}
	return ev
}

// LevelName is shorthand for e.Kind.LevelName().
func (e Event) LevelName() string {
	return e.Kind.LevelName()
}

// Message renders the human readable log message for the event.
func (e Event) Message() string {
	switch e.Kind {
	case ProcessStarted:
		return fmt.Sprintf("Process started: %s (PID: %d)", e.Name, e.PID)
	case ProcessEnded:
		return fmt.Sprintf("Process ended: %s (PID: %d)", e.Name, e.PID)
	case FileChanged:
		return fmt.Sprintf("File changed: %s", e.Path)
	case FileMissing:
		return fmt.Sprintf("File not found when checking modification time: %s", e.Path)
	case FileScanStarted:
		return fmt.Sprintf("Monitoring directory: %s", e.Path)
	case NetworkSample:
		return fmt.Sprintf("Sent bytes: %d, Received bytes: %d", e.BytesSent, e.BytesRecv)
	case Heartbeat:
		return fmt.Sprintf("Current process count: %d", e.Count)
	case FileScanSummary:
		return fmt.Sprintf("Total changes detected this cycle: %d", e.Count)
	case SourceUnavailable:
		return fmt.Sprintf("Monitoring source unavailable: %s: %s", e.Path, e.Reason)
	default:
		return fmt.Sprintf("unknown event kind %q", string(e.Kind))
	}
}
