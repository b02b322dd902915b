package sink

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/0xA1M/sentinel-audit/internal/event"
	"github.com/0xA1M/sentinel-audit/internal/logging"
)

// LogSink appends every event as one JSON line with asctime, levelname and
// message keys. Warning-and-above kinds can also be echoed to a console.
type LogSink struct {
	logger *zap.Logger
	out    *trackingWriter
	file   *os.File
}

// NewLogSink opens path for appending. console may be nil.
func NewLogSink(path string, console zapcore.WriteSyncer) (*LogSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log %s: %w", path, err)
	}

	ls := NewLogSinkWriter(file, console)
	ls.file = file
	return ls, nil
}

// NewLogSinkWriter builds a sink on an arbitrary writer.
func NewLogSinkWriter(w zapcore.WriteSyncer, console zapcore.WriteSyncer) *LogSink {
	out := &trackingWriter{WriteSyncer: w}

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewJSONEncoder(logging.EventEncoderConfig()),
			zapcore.Lock(out),
			zapcore.DebugLevel,
		),
	}
	if console != nil {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(logging.ConsoleEncoderConfig()),
			zapcore.Lock(console),
			zapcore.WarnLevel,
		))
	}

	return &LogSink{
		logger: zap.New(zapcore.NewTee(cores...)).Named("system_audit_logger"),
		out:    out,
	}
}

// Export writes ev using its own timestamp. A failed write is returned.
func (ls *LogSink) Export(ctx context.Context, ev event.Event) error {
	ce := ls.logger.Check(Severity(ev.Kind), ev.Message())
	if ce == nil {
		return nil
	}
	if !ev.Timestamp.IsZero() {
		ce.Time = ev.Timestamp
	}
	ce.Write(eventFields(ev)...)

	return ls.out.takeErr()
}

// Close flushes and closes the underlying file, if the sink owns one.
func (ls *LogSink) Close() error {
	_ = ls.logger.Sync()
	if ls.file != nil {
		return ls.file.Close()
	}
	return nil
}

// Severity maps an event kind to a zap level for console filtering.
func Severity(k event.Kind) zapcore.Level {
	switch k {
	case event.ProcessEnded, event.FileChanged, event.FileMissing:
		return zapcore.WarnLevel
	case event.SourceUnavailable:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func eventFields(ev event.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("levelname", ev.LevelName()),
		zap.String("kind", string(ev.Kind)),
	}

	switch ev.Kind {
	case event.ProcessStarted, event.ProcessEnded:
		fields = append(fields, zap.Int32("pid", ev.PID), zap.String("name", ev.Name))
	case event.FileChanged, event.FileScanStarted:
		fields = append(fields, zap.String("path", ev.Path))
	case event.FileMissing, event.SourceUnavailable:
		fields = append(fields, zap.String("path", ev.Path), zap.String("reason", ev.Reason))
	case event.NetworkSample:
		fields = append(fields, zap.Uint64("bytes_sent", ev.BytesSent), zap.Uint64("bytes_recv", ev.BytesRecv))
	case event.Heartbeat:
		fields = append(fields, zap.Int("count", ev.Count))
	case event.FileScanSummary:
		fields = append(fields, zap.String("path", ev.Path), zap.Int("count", ev.Count))
	}

	return fields
}

// trackingWriter remembers the last write error so Export can report it;
// zap itself only prints write failures to its error output.
type trackingWriter struct {
	zapcore.WriteSyncer
	mu  sync.Mutex
	err error
}

func (tw *trackingWriter) Write(p []byte) (int, error) {
	n, err := tw.WriteSyncer.Write(p)
	if err != nil {
		tw.mu.Lock()
		tw.err = err
		tw.mu.Unlock()
	}
	return n, err
}

func (tw *trackingWriter) takeErr() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	err := tw.err
	tw.err = nil
	return err
}
