package flows

import (
	"context"
	"time"
)

// RedeemFailureKind classifies single-use token redemption failures.
type RedeemFailureKind int

const (
	RedeemFailureNone RedeemFailureKind = iota
	RedeemFailureInvalid
	RedeemFailureExpired
	RedeemFailureStore
)

// RedeemResult carries the matched token or failure metadata.
type RedeemResult struct {
	Failure RedeemFailureKind
	Err     error
	Token   TokenCandidate
}

// RedeemDeps captures the dependencies of one single-use token kind.
type RedeemDeps struct {
	Now       func() time.Time
	Unexpired func(ctx context.Context, now time.Time) ([]TokenCandidate, error)
	Expired   func(ctx context.Context, now time.Time) ([]TokenCandidate, error)
	Match     func(raw string, candidates []TokenCandidate) (TokenCandidate, bool)
	Delete    func(ctx context.Context, id string) error
}

// RunRedeem matches raw against the live tokens of one kind.
//
// A miss is followed by a scan of the expired tokens so an outdated link can be reported
// as expired. An expired hit is deleted. The caller performs the success side effects.
func RunRedeem(ctx context.Context, raw string, deps RedeemDeps) RedeemResult {
	if raw == "" {
		return RedeemResult{Failure: RedeemFailureInvalid}
	}

	now := deps.Now()
	live, err := deps.Unexpired(ctx, now)
	if err != nil {
		return RedeemResult{Failure: RedeemFailureStore, Err: err}
	}
	if hit, ok := deps.Match(raw, live); ok {
		return RedeemResult{Failure: RedeemFailureNone, Token: hit}
	}

	stale, err := deps.Expired(ctx, now)
	if err != nil {
		return RedeemResult{Failure: RedeemFailureStore, Err: err}
	}
	hit, ok := deps.Match(raw, stale)
	if !ok {
		return RedeemResult{Failure: RedeemFailureInvalid}
	}
	if err := deps.Delete(ctx, hit.ID); err != nil {
		return RedeemResult{Failure: RedeemFailureExpired, Err: err, Token: hit}
	}
	return RedeemResult{Failure: RedeemFailureExpired, Token: hit}
}
