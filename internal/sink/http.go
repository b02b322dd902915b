package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0xA1M/sentinel-audit/internal/event"
)

// HTTPConfig holds configuration for the HTTP forwarder
type HTTPConfig struct {
	ServerURL    string        `json:"server_url"`
	AgentID      string        `json:"agent_id"`
	Timeout      time.Duration `json:"timeout"`
	MaxBatchSize int           `json:"max_batch_size"`
}

// Record is the wire form of one forwarded event. Events of one cycle share
// a timestamp, so ID also carries a per-exporter sequence number.
type Record struct {
	ID        string      `json:"id"`
	AgentID   string      `json:"agent_id"`
	Level     string      `json:"levelname"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Event     event.Event `json:"event"`
}

// HTTPExporter forwards events to a collector as JSON. Each request is made
// once; a failure is returned to the dispatcher, which reports it.
type HTTPExporter struct {
	config HTTPConfig
	client *http.Client
	log    *zap.Logger
	seq    atomic.Uint64
}

// NewHTTPExporter creates a new HTTP exporter
func NewHTTPExporter(config HTTPConfig, log *zap.Logger) *HTTPExporter {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &HTTPExporter{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		log:    log.Named("http_exporter"),
	}
}

func (he *HTTPExporter) record(ev event.Event) Record {
	return Record{
		ID:        fmt.Sprintf("%s_%d_%d", ev.Kind, ev.Timestamp.UnixNano(), he.seq.Add(1)),
		AgentID:   he.config.AgentID,
		Level:     ev.LevelName(),
		Message:   ev.Message(),
		Timestamp: ev.Timestamp,
		Event:     ev,
	}
}

// Export sends a single event
func (he *HTTPExporter) Export(ctx context.Context, ev event.Event) error {
	jsonData, err := json.Marshal(he.record(ev))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return he.doRequest(ctx, jsonData)
}

// ExportBatch sends events in chunks of at most MaxBatchSize
func (he *HTTPExporter) ExportBatch(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	for i := 0; i < len(events); i += he.config.MaxBatchSize {
		end := min(i+he.config.MaxBatchSize, len(events))
		if err := he.sendBatch(ctx, events[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (he *HTTPExporter) sendBatch(ctx context.Context, events []event.Event) error {
	records := make([]Record, len(events))
	for i, ev := range events {
		records[i] = he.record(ev)
	}

	payload := map[string]interface{}{
		"agent_id":  he.config.AgentID,
		"timestamp": time.Now().Format(time.RFC3339),
		"data":      records,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal batch data: %w", err)
	}

	return he.doRequest(ctx, jsonData)
}

func (he *HTTPExporter) doRequest(ctx context.Context, jsonData []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, he.config.ServerURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sentinel-Audit-Exporter/1.0")

	resp, err := he.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		he.log.Debug("Exported events", zap.Int("status", resp.StatusCode))
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("export failed with status %d: %s", resp.StatusCode, string(body))
}

// HealthCheck checks if the collector accepts requests
func (he *HTTPExporter) HealthCheck(ctx context.Context) error {
	payload := map[string]interface{}{
		"type":      "health_check",
		"agent_id":  he.config.AgentID,
		"timestamp": time.Now(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal health check data: %w", err)
	}

	if err := he.doRequest(ctx, jsonData); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close releases idle connections
func (he *HTTPExporter) Close() error {
	he.client.CloseIdleConnections()
	return nil
}
