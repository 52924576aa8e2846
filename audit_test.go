package lscauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditLogEntry) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditLogEntry) {
	<-s.gate
}

func TestAuditDispatcherDisabledOrSyncIsNil(t *testing.T) {
	if d := newAuditDispatcher(AuditConfig{Enabled: false, Async: true, BufferSize: 4}, NoOpSink{}); d != nil {
		t.Fatal("expected nil dispatcher when audit is disabled")
	}
	if d := newAuditDispatcher(AuditConfig{Enabled: true, Async: false}, NoOpSink{}); d != nil {
		t.Fatal("expected nil dispatcher in sync mode")
	}

	var d *auditDispatcher
	d.Emit(context.Background(), AuditLogEntry{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected nil dispatcher to be inert")
	}
}

func TestAuditDispatcherFlushesOnClose(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, Async: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), AuditLogEntry{Action: "login_success"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered entries, got %d", got)
	}

	d.Emit(context.Background(), AuditLogEntry{Action: "late"})
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected emits after Close to be ignored, got %d", got)
	}
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, Async: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditLogEntry{})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected entries to be dropped")
	}

	close(sink.gate)
	d.Close()
}

func TestAuditDispatcherBlockingRespectsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, Async: true, BufferSize: 1}, sink)

	// One entry is held by the sink, one fills the buffer.
	d.Emit(context.Background(), AuditLogEntry{})
	d.Emit(context.Background(), AuditLogEntry{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, AuditLogEntry{})
	if d.Dropped() == 0 {
		t.Fatal("expected cancelled emit to count as dropped")
	}

	close(sink.gate)
	d.Close()
}

type ipSink struct {
	ips chan string
}

func (s *ipSink) Emit(ctx context.Context, _ AuditLogEntry) {
	s.ips <- ClientIPFromContext(ctx)
}

func TestAuditDispatcherOutlivesRequestContext(t *testing.T) {
	sink := &ipSink{ips: make(chan string, 1)}
	d := newAuditDispatcher(AuditConfig{Enabled: true, Async: true, BufferSize: 4}, sink)

	ctx, cancel := context.WithCancel(WithClientIP(context.Background(), "198.51.100.4"))
	d.Emit(ctx, AuditLogEntry{Action: "logout"})
	cancel()
	d.Close()

	if ip := <-sink.ips; ip != "198.51.100.4" {
		t.Fatalf("expected request values to reach the sink, got %q", ip)
	}
	d.Close()
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditLogEntry{ID: "1", Action: "logout", Success: true})
	sink.Emit(context.Background(), AuditLogEntry{ID: "2", Action: "logout_all"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var entry AuditLogEntry
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Action != "logout_all" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), AuditLogEntry{})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatal("expected each sink to receive the entry")
	}
}

func TestEngineAuditEntryShape(t *testing.T) {
	te := newTestEngine(t)
	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.10"), "agent")

	_, err := te.Login(ctx, "nobody@example.com", testPassword)
	requireKind(t, err, ErrInvalidCredentials)

	entries := te.auditActions(auditActionLoginFailed)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if _, err := ulid.ParseStrict(entry.ID); err != nil {
		t.Fatalf("expected ULID id, got %q: %v", entry.ID, err)
	}
	if entry.Success || entry.Error != string(KindInvalidCredentials) {
		t.Fatalf("unexpected outcome %+v", entry)
	}
	if entry.IPAddress != "192.0.2.10" || entry.UserAgent != "agent" {
		t.Fatalf("unexpected client metadata %+v", entry)
	}
	if entry.Metadata["email"] != "nobody@example.com" {
		t.Fatalf("unexpected metadata %v", entry.Metadata)
	}
	if entry.CreatedAt.Location() != time.UTC {
		t.Fatal("expected UTC timestamp")
	}
}

func TestEngineAsyncAuditReachesSink(t *testing.T) {
	sink := &countingSink{}
	cfg := testConfig()
	cfg.Audit.Async = true

	engine, err := New().WithConfig(cfg).WithStore(NewMemoryStore()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, _ = engine.Login(context.Background(), "nobody@example.com", testPassword)
	}
	engine.Close()

	if got := sink.count.Load(); got != 3 {
		t.Fatalf("expected 3 entries after Close, got %d", got)
	}
	if engine.AuditDropped() != 0 {
		t.Fatalf("expected no dropped entries, got %d", engine.AuditDropped())
	}
}

func TestEngineAuditDisabled(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.Audit.Enabled = false
	})
	_, _ = te.Login(context.Background(), "nobody@example.com", testPassword)

	if got := len(te.store.AuditLog()); got != 0 {
		t.Fatalf("expected no audit entries, got %d", got)
	}
}
