package lscauth

import (
	"context"
	"sync"
	"sync/atomic"
)

type queuedAudit struct {
	ctx   context.Context
	entry AuditLogEntry
}

// auditDispatcher moves audit writes off the request path. Entries keep the values of
// the request context, minus its cancellation, so sinks can still log request fields
// after the response was sent.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool

	mu      sync.RWMutex
	queue   chan queuedAudit
	stopped bool

	relayDone chan struct{}
	dropped   atomic.Uint64
}

// newAuditDispatcher returns nil unless audit is enabled in async mode. Callers then
// write to the sink inline.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled || !cfg.Async {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan queuedAudit, size),
		relayDone:  make(chan struct{}),
	}
	go d.relay()
	return d
}

func (d *auditDispatcher) relay() {
	defer close(d.relayDone)
	for item := range d.queue {
		d.sink.Emit(item.ctx, item.entry)
	}
}

// Emit queues entry. With dropIfFull it never blocks and counts what it could not queue;
// otherwise it waits for room until ctx is done.
func (d *auditDispatcher) Emit(ctx context.Context, entry AuditLogEntry) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	item := queuedAudit{ctx: context.WithoutCancel(ctx), entry: entry}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- item:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- item:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close rejects further entries, delivers the queued ones and returns once the relay
// goroutine exits. It is safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.relayDone
}

// Dropped reports how many entries were discarded because of backpressure.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
