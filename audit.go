package lscauth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// AuditLogEntry is an immutable security event record.
type AuditLogEntry struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	UserID    string            `json:"userId,omitempty"`
	IPAddress string            `json:"ipAddress,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// AuditSink receives audit entries. Emit must not fail the caller; sinks absorb their own
// errors.
type AuditSink interface {
	Emit(ctx context.Context, entry AuditLogEntry)
}

// NoOpSink drops every entry.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditLogEntry) {}

// ChannelSink writes entries into a buffered channel.
type ChannelSink struct {
	entries chan AuditLogEntry
}

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		entries: make(chan AuditLogEntry, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, entry AuditLogEntry) {
	select {
	case s.entries <- entry:
	case <-ctx.Done():
	}
}

// Entries exposes the receive side of the channel.
func (s *ChannelSink) Entries() <-chan AuditLogEntry {
	return s.entries
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, entry AuditLogEntry) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(append(data, '\n'))
}

// MultiSink fans every entry out to each sink in order.
type MultiSink []AuditSink

func (m MultiSink) Emit(ctx context.Context, entry AuditLogEntry) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, entry)
		}
	}
}

const auditWriteTimeout = 5 * time.Second

// storeAuditSink appends entries to the Store. Failures are logged and counted.
type storeAuditSink struct {
	store   AuditLogStore
	logger  *slog.Logger
	metrics *Metrics
}

func (s storeAuditSink) Emit(ctx context.Context, entry AuditLogEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := s.store.AppendAuditLog(ctx, entry); err != nil {
		s.metrics.Inc(MetricAuditWriteFailure)
		s.logger.WarnContext(ctx, "audit log write failed",
			"action", entry.Action,
			"audit_id", entry.ID,
			"error", err,
		)
	}
}
