package internaldefs

import (
	"github.com/lsc-studio/lscauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   lscauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   lscauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter of audit entries dropped by the async dispatcher.
const AuditDroppedName = "lscauth_audit_dropped_total"

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: lscauth.MetricRegisterSuccess, Name: "lscauth_register_success_total", Help: "Accounts created by registration."},
	{ID: lscauth.MetricRegisterDuplicate, Name: "lscauth_register_duplicate_total", Help: "Registrations for an email that already exists."},
	{ID: lscauth.MetricRegisterRejected, Name: "lscauth_register_rejected_total", Help: "Registrations rejected by validation or the password policy."},
	{ID: lscauth.MetricLoginSuccess, Name: "lscauth_login_success_total", Help: "Successful login attempts."},
	{ID: lscauth.MetricLoginFailure, Name: "lscauth_login_failure_total", Help: "Failed login attempts."},
	{ID: lscauth.MetricLoginRateLimited, Name: "lscauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: lscauth.MetricPasswordRehash, Name: "lscauth_password_rehash_total", Help: "Password hashes upgraded after login."},
	{ID: lscauth.MetricSessionCreated, Name: "lscauth_session_created_total", Help: "Refresh tokens issued at login."},
	{ID: lscauth.MetricRefreshSuccess, Name: "lscauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: lscauth.MetricRefreshFailure, Name: "lscauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: lscauth.MetricRefreshReuseDetected, Name: "lscauth_refresh_reuse_detected_total", Help: "Presentations of revoked refresh tokens."},
	{ID: lscauth.MetricLogout, Name: "lscauth_logout_total", Help: "Single-token logout operations."},
	{ID: lscauth.MetricLogoutAll, Name: "lscauth_logout_all_total", Help: "Logout-all operations."},
	{ID: lscauth.MetricEmailVerificationRequest, Name: "lscauth_email_verification_request_total", Help: "Verification emails issued."},
	{ID: lscauth.MetricEmailVerificationSuccess, Name: "lscauth_email_verification_success_total", Help: "Successful email verifications."},
	{ID: lscauth.MetricEmailVerificationFailure, Name: "lscauth_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: lscauth.MetricPasswordResetRequest, Name: "lscauth_password_reset_request_total", Help: "Password reset requests for known accounts."},
	{ID: lscauth.MetricPasswordResetSuccess, Name: "lscauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: lscauth.MetricPasswordResetFailure, Name: "lscauth_password_reset_failure_total", Help: "Failed password reset attempts."},
	{ID: lscauth.MetricPasswordChangeSuccess, Name: "lscauth_password_change_success_total", Help: "Successful password changes."},
	{ID: lscauth.MetricPasswordChangeFailure, Name: "lscauth_password_change_failure_total", Help: "Rejected password changes."},
	{ID: lscauth.MetricAccountStatusChange, Name: "lscauth_account_status_change_total", Help: "Administrative account status changes."},
	{ID: lscauth.MetricRateLimitHit, Name: "lscauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: lscauth.MetricRateLimitBackendError, Name: "lscauth_rate_limit_backend_error_total", Help: "Rate-limit checks that failed open."},
	{ID: lscauth.MetricMailFailure, Name: "lscauth_mail_failure_total", Help: "Email deliveries that failed."},
	{ID: lscauth.MetricAuditWriteFailure, Name: "lscauth_audit_write_failure_total", Help: "Audit entries the store rejected."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: lscauth.MetricValidateLatency, Name: "lscauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bounds in seconds of the finite buckets. The engine keeps
// one more bucket for everything above the last bound.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, the overflow bucket included, for exporters that
// publish buckets as separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into the fixed bucket layout. Missing buckets read as zero
// and extra ones are ignored.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals; the last element is the
// sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
