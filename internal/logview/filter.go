// Package logview reads the JSON line event log offline: keyword and level
// filtering, and per-level and per-hour aggregation.
package logview

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// AllLevels disables the level part of a Filter.
const AllLevels = "All"

// maxLineSize bounds a single log line read by the scanner.
const maxLineSize = 1 << 20

// Filter selects log lines by plain substring matching on the raw line.
type Filter struct {
	Keyword string `json:"keyword"`
	Level   string `json:"level"`
}

// Match reports whether line contains the keyword and, unless the level is
// empty or All, the level.
func (f Filter) Match(line string) bool {
	if !strings.Contains(line, f.Keyword) {
		return false
	}
	if f.Level == "" || f.Level == AllLevels {
		return true
	}
	return strings.Contains(line, f.Level)
}

// FilterLines copies every matching line of r to w and returns how many
// lines matched. It can be called again on a fresh reader whenever the
// filter changes.
func FilterLines(r io.Reader, f Filter, w io.Writer) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	matched := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !f.Match(line) {
			continue
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return matched, fmt.Errorf("failed to write filtered line: %w", err)
		}
		matched++
	}
	if err := scanner.Err(); err != nil {
		return matched, fmt.Errorf("failed to read log: %w", err)
	}
	return matched, nil
}
