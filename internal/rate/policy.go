package rate

import (
	"strings"
	"time"
)

// Policy names of the endpoint classes.
const (
	PolicyLogin              = "login"
	PolicyRegister           = "register"
	PolicyResetRequest       = "reset_request"
	PolicyResendVerification = "resend_verification"
	PolicyVerifyEmail        = "verify_email"
	PolicyRefresh            = "refresh"
	PolicyGeneral            = "general"
)

// Policy is a fixed window: at most Max hits per key within Window.
type Policy struct {
	Name   string
	Window time.Duration
	Max    int
}

// Validate reports whether the policy can be enforced.
func (p Policy) Validate() bool {
	return p.Name != "" && p.Window > 0 && p.Max > 0
}

// DefaultPolicies returns the per-class windows and thresholds. Only login is keyed by
// ip and email; every other class is keyed by ip alone.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyLogin:              {Name: PolicyLogin, Window: 15 * time.Minute, Max: 5},
		PolicyRegister:           {Name: PolicyRegister, Window: time.Hour, Max: 3},
		PolicyResetRequest:       {Name: PolicyResetRequest, Window: time.Hour, Max: 3},
		PolicyResendVerification: {Name: PolicyResendVerification, Window: time.Hour, Max: 3},
		PolicyVerifyEmail:        {Name: PolicyVerifyEmail, Window: time.Hour, Max: 10},
		PolicyRefresh:            {Name: PolicyRefresh, Window: time.Minute, Max: 10},
		PolicyGeneral:            {Name: PolicyGeneral, Window: time.Minute, Max: 20},
	}
}

// NormalizeEmail lowercases and trims an email for use as a key component.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IPKey is the key of a policy scoped to the client address.
func IPKey(policy, ip string) string {
	return policy + ":" + normalizeIP(ip)
}

// LoginKey is the composite ip:email key of the login policy.
func LoginKey(ip, email string) string {
	return PolicyLogin + ":" + normalizeIP(ip) + ":" + NormalizeEmail(email)
}

func normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "unknown"
	}
	return ip
}
