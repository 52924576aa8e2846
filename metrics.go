package lscauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram of the in-process metrics.
type MetricID uint16

const (
	// MetricRegisterSuccess counts new accounts.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterDuplicate counts registrations for an email that already exists.
	MetricRegisterDuplicate
	// MetricRegisterRejected counts registrations rejected by validation or the password policy.
	MetricRegisterRejected
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess
	// MetricLoginFailure counts failed logins of every reason.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins rejected by the login window.
	MetricLoginRateLimited
	// MetricPasswordRehash counts password hashes upgraded after login.
	MetricPasswordRehash
	// MetricSessionCreated counts refresh tokens stored at login.
	MetricSessionCreated
	// MetricRefreshSuccess counts successful refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts failed refreshes.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts presentations of revoked refresh tokens.
	MetricRefreshReuseDetected
	// MetricLogout counts single-token logouts that revoked a row.
	MetricLogout
	// MetricLogoutAll counts logout-all operations.
	MetricLogoutAll
	// MetricEmailVerificationRequest counts verification emails issued.
	MetricEmailVerificationRequest
	// MetricEmailVerificationSuccess counts verified emails.
	MetricEmailVerificationSuccess
	// MetricEmailVerificationFailure counts failed verification attempts.
	MetricEmailVerificationFailure
	// MetricPasswordResetRequest counts reset requests for known accounts.
	MetricPasswordResetRequest
	// MetricPasswordResetSuccess counts completed resets.
	MetricPasswordResetSuccess
	// MetricPasswordResetFailure counts failed reset attempts.
	MetricPasswordResetFailure
	// MetricPasswordChangeSuccess counts completed password changes.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeFailure counts rejected password changes.
	MetricPasswordChangeFailure
	// MetricAccountStatusChange counts administrative status transitions.
	MetricAccountStatusChange
	// MetricRateLimitHit counts requests denied by any rate limit class.
	MetricRateLimitHit
	// MetricRateLimitBackendError counts rate limit checks that failed open.
	MetricRateLimitBackendError
	// MetricMailFailure counts email deliveries that failed.
	MetricMailFailure
	// MetricAuditWriteFailure counts audit entries the store rejected.
	MetricAuditWriteFailure
	// MetricValidateLatency is the access token validation latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds cache-line padded atomic counters and the access validation latency
// histogram. A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histograms hold per-bucket
// counts, not running totals; Sums holds the total observed duration of each histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Sums       map[MetricID]time.Duration
}

// NewMetrics creates a [Metrics] configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricValidateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	if d < 0 {
		d = 0
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies the current values. Disabled metrics produce empty maps. The histogram
// is present only when latency recording is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Sums:       map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
		Sums:       make(map[MetricID]time.Duration, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
		s.Sums[MetricValidateLatency] = time.Duration(atomic.LoadUint64(&m.histograms[MetricValidateLatency].sumNanos))
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
