package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/0xA1M/sentinel-audit/internal/event"
	"github.com/0xA1M/sentinel-audit/internal/sink"
)

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func writeLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "system_audit.log")
	content := `{"asctime":"2026-03-01T10:05:00.000Z","message":"Process started: sshd (PID: 10)","levelname":"PROCESS_STARTED"}
{"asctime":"2026-03-01T10:06:00.000Z","message":"Current process count: 120","levelname":"INFO"}
{"asctime":"2026-03-01T11:01:00.000Z","message":"File changed: /home/a.txt","levelname":"FILE_CHANGED"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestHealth(t *testing.T) {
	router := Router(Deps{Service: "auditd"}, zaptest.NewLogger(t))

	rec, resp := do(t, router, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var data map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "auditd", data["service"])
}

func TestOptionalRoutesAbsent(t *testing.T) {
	router := Router(Deps{}, nil)

	for _, path := range []string{"/api/events", "/api/metrics", "/api/logs", "/api/report"} {
		rec, _ := do(t, router, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestEvents(t *testing.T) {
	history := sink.NewMemory(10)
	for i := 0; i < 5; i++ {
		require.NoError(t, history.Export(context.Background(), event.NewHeartbeat(ts, i)))
	}
	router := Router(Deps{History: history}, nil)

	rec, resp := do(t, router, "/api/events?count=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []event.Event
	require.NoError(t, json.Unmarshal(resp.Data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, 3, events[0].Count)
	assert.Equal(t, 4, events[1].Count)

	rec, resp = do(t, router, "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &events))
	assert.Len(t, events, 5)

	rec, resp = do(t, router, "/api/events?count=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", resp.Status)
}

func TestMetrics(t *testing.T) {
	metrics := sink.NewMetrics(0)
	require.NoError(t, metrics.Export(context.Background(), event.NewHeartbeat(ts, 42)))
	router := Router(Deps{Metrics: metrics}, nil)

	rec, resp := do(t, router, "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap sink.MetricsSnapshot
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	require.Len(t, snap.ProcessCounts, 1)
	assert.Equal(t, 42, snap.ProcessCounts[0].Value)
}

func TestLogs(t *testing.T) {
	router := Router(Deps{LogPath: writeLog(t)}, nil)

	rec, resp := do(t, router, "/api/logs?keyword=process&level=INFO")
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Matched int      `json:"matched"`
		Lines   []string `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, 1, data.Matched)
	require.Len(t, data.Lines, 1)
	assert.Contains(t, data.Lines[0], "Current process count: 120")

	rec, resp = do(t, router, "/api/logs?keyword=nothing-matches")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, 0, data.Matched)
	assert.Empty(t, data.Lines)
}

func TestReport(t *testing.T) {
	router := Router(Deps{LogPath: writeLog(t)}, nil)

	rec, resp := do(t, router, "/api/report")
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Total  int `json:"total"`
		Levels []struct {
			Level string `json:"level"`
			Count int    `json:"count"`
		} `json:"levels"`
		Hours []struct {
			Count int `json:"count"`
		} `json:"hours"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, 3, report.Total)
	assert.Len(t, report.Levels, 3)
	require.Len(t, report.Hours, 2)
	assert.Equal(t, 2, report.Hours[0].Count)
	assert.Equal(t, 1, report.Hours[1].Count)
}

func TestLogMissing(t *testing.T) {
	router := Router(Deps{LogPath: filepath.Join(t.TempDir(), "absent.log")}, nil)

	rec, _ := do(t, router, "/api/report")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimitMiddleware(t *testing.T) {
	router := Router(Deps{}, nil)

	limited := false
	for i := 0; i < 30; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "192.0.2.7:5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	router := Router(Deps{}, nil)

	limited := false
	for i := 0; i < 30; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "192.0.2.7:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name      string
		trusted   []string
		remote    string
		forwarded string
		realIP    string
		want      string
	}{
		{"direct peer", nil, "203.0.113.5:4242", "", "", "203.0.113.5"},
		{"untrusted forwarded for", nil, "203.0.113.5:4242", "192.0.2.1", "", "203.0.113.5"},
		{"untrusted real ip", nil, "203.0.113.5:4242", "", "198.51.100.1", "203.0.113.5"},
		{"trusted forwarded for", []string{"10.0.0.1"}, "10.0.0.1:80", "192.0.2.1, 10.0.0.1", "", "192.0.2.1"},
		{"trusted real ip", []string{"10.0.0.1"}, "10.0.0.1:80", "", "198.51.100.1", "198.51.100.1"},
		{"trusted without headers", []string{"10.0.0.1"}, "10.0.0.1:80", "", "", "10.0.0.1"},
		{"other peer with trusted list", []string{"10.0.0.1"}, "10.0.0.2:80", "192.0.2.1", "", "10.0.0.2"},
		{"ipv6 peer", []string{"::1"}, "[::1]:80", "192.0.2.9", "", "192.0.2.9"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = test.remote
			if test.forwarded != "" {
				req.Header.Set("X-Forwarded-For", test.forwarded)
			}
			if test.realIP != "" {
				req.Header.Set("X-Real-IP", test.realIP)
			}
			assert.Equal(t, test.want, NewIPResolver(test.trusted...).ClientIP(req))
		})
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", Router(Deps{}, nil), nil) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
