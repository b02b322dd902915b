package logview

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Timestamp layouts accepted for asctime. The first is what the event log
// writes; the second is the classic "2006-01-02 15:04:05,000" form.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z0700",
	time.RFC3339Nano,
	"2006-01-02 15:04:05,000",
	"2006-01-02 15:04:05",
}

const barWidth = 40

// maxHourBuckets bounds zero filling. Logs spanning longer than this list
// only the hours that have records.
const maxHourBuckets = 24 * 366

// LevelCount is the number of records carrying one levelname
type LevelCount struct {
	Level string `json:"level"`
	Count int    `json:"count"`
}

// HourCount is the number of records within one UTC clock hour
type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// Report aggregates an event log
type Report struct {
	Total     int          `json:"total"`
	Malformed int          `json:"malformed"`
	Levels    []LevelCount `json:"levels"`
	Hours     []HourCount  `json:"hours"`
}

type record struct {
	Asctime   string `json:"asctime"`
	Levelname string `json:"levelname"`
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// BuildReport reads JSON lines from r. Lines that are not JSON objects or
// lack a parseable asctime are counted as malformed and skipped.
func BuildReport(r io.Reader) (*Report, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	report := &Report{}
	levels := make(map[string]int)
	hours := make(map[time.Time]int)
	var first, last time.Time
	seen := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			report.Malformed++
			continue
		}
		ts, err := parseTime(rec.Asctime)
		if err != nil {
			report.Malformed++
			continue
		}

		level := rec.Levelname
		if level == "" {
			level = "UNKNOWN"
		}
		levels[level]++

		hour := ts.UTC().Truncate(time.Hour)
		hours[hour]++
		if !seen || hour.Before(first) {
			first = hour
		}
		if !seen || hour.After(last) {
			last = hour
		}
		seen = true
		report.Total++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	for level, count := range levels {
		report.Levels = append(report.Levels, LevelCount{Level: level, Count: count})
	}
	sort.Slice(report.Levels, func(i, j int) bool {
		if report.Levels[i].Count != report.Levels[j].Count {
			return report.Levels[i].Count > report.Levels[j].Count
		}
		return report.Levels[i].Level < report.Levels[j].Level
	})

	switch {
	case !seen:
	case last.Sub(first) < maxHourBuckets*time.Hour:
		for h := first; !h.After(last); h = h.Add(time.Hour) {
			report.Hours = append(report.Hours, HourCount{Hour: h, Count: hours[h]})
		}
	default:
		for h, count := range hours {
			report.Hours = append(report.Hours, HourCount{Hour: h, Count: count})
		}
		sort.Slice(report.Hours, func(i, j int) bool {
			return report.Hours[i].Hour.Before(report.Hours[j].Hour)
		})
	}

	return report, nil
}

// WriteText renders the report as two bar charts
func (r *Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Events: %d (malformed lines skipped: %d)\n\n", r.Total, r.Malformed)

	fmt.Fprintln(bw, "Events by level")
	levelMax, width := 0, 0
	for _, lc := range r.Levels {
		levelMax = max(levelMax, lc.Count)
		width = max(width, len(lc.Level))
	}
	for _, lc := range r.Levels {
		fmt.Fprintf(bw, "  %-*s %6d %s\n", width, lc.Level, lc.Count, bar(lc.Count, levelMax))
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Events by hour")
	hourMax := 0
	for _, hc := range r.Hours {
		hourMax = max(hourMax, hc.Count)
	}
	for _, hc := range r.Hours {
		fmt.Fprintf(bw, "  %s %6d %s\n", hc.Hour.Format("2006-01-02 15:00"), hc.Count, bar(hc.Count, hourMax))
	}

	return bw.Flush()
}

func bar(count, maxCount int) string {
	if maxCount == 0 || count == 0 {
		return ""
	}
	n := count * barWidth / maxCount
	if n == 0 {
		n = 1
	}
	return strings.Repeat("#", n)
}
