package api

import (
	"bytes"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xA1M/sentinel-audit/internal/event"
	"github.com/0xA1M/sentinel-audit/internal/logview"
	"github.com/0xA1M/sentinel-audit/internal/sink"
)

const (
	defaultEventCount = 50
	maxEventCount     = 1000
)

// EventHistory exposes the most recent events
type EventHistory interface {
	LastEvents(count int) []event.Event
}

// MetricsSource exposes the buffered series
type MetricsSource interface {
	Snapshot() sink.MetricsSnapshot
}

// HealthHandler is a simple health check endpoint
func HealthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SendSuccessResponse(w, map[string]any{
			"status":  "ok",
			"time":    time.Now().Format(time.RFC3339),
			"service": service,
		})
	}
}

// GetEventsHandler returns the last count events, oldest first
func GetEventsHandler(history EventHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := defaultEventCount
		if raw := r.URL.Query().Get("count"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				SendErrorResponse(w, NewAPIError("Invalid count", http.StatusBadRequest))
				return
			}
			count = min(n, maxEventCount)
		}

		SendSuccessResponse(w, history.LastEvents(count))
	}
}

// GetMetricsHandler returns the current metrics snapshot
func GetMetricsHandler(metrics MetricsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SendSuccessResponse(w, metrics.Snapshot())
	}
}

// GetLogsHandler filters the event log by keyword and level
func GetLogsHandler(logPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := logview.Filter{
			Keyword: r.URL.Query().Get("keyword"),
			Level:   r.URL.Query().Get("level"),
		}

		file, apiErr := openLog(logPath)
		if apiErr != nil {
			SendErrorResponse(w, apiErr)
			return
		}
		defer file.Close()

		var buf bytes.Buffer
		matched, err := logview.FilterLines(file, filter, &buf)
		if err != nil {
			SendErrorResponse(w, NewAPIError("Failed to read log", http.StatusInternalServerError))
			return
		}

		lines := []string{}
		if matched > 0 {
			lines = strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		}

		SendSuccessResponse(w, map[string]any{
			"matched": matched,
			"lines":   lines,
		})
	}
}

// GetReportHandler aggregates the event log by level and hour
func GetReportHandler(logPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, apiErr := openLog(logPath)
		if apiErr != nil {
			SendErrorResponse(w, apiErr)
			return
		}
		defer file.Close()

		report, err := logview.BuildReport(file)
		if err != nil {
			SendErrorResponse(w, NewAPIError("Failed to read log", http.StatusInternalServerError))
			return
		}

		SendSuccessResponse(w, report)
	}
}

func openLog(path string) (*os.File, *APIError) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewAPIError("Log file not found", http.StatusNotFound)
		}
		return nil, NewAPIError("Failed to open log", http.StatusInternalServerError)
	}
	return file, nil
}
