// Package access holds the pure entitlement rules: who currently has Pro or
// trial access, and what pro flags a provider subscription snapshot implies.
// Everything here takes an explicit now so callers and tests control the clock.
package access

import (
	"time"

	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

// State is the display-level access classification for a user.
type State string

const (
	StatePro   State = "pro"   // active paid access
	StateTrial State = "trial" // active trial, no paid access
	StateGated State = "gated" // had access before, lapsed
	StateNone  State = "none"  // never had access
)

// ProActive reports whether the user's paid access is currently in effect.
//
// The stored IsPro flag alone is not trusted: ProCancelledAt may have passed
// since the last write (there is no background sweep), so the expiry check is
// repeated on every evaluation.
func ProActive(u *store.User, now time.Time) bool {
	if u == nil || !u.IsPro {
		return false
	}
	if u.ProCancelledAt == nil {
		return true
	}
	return u.ProCancelledAt.After(now)
}

// TrialActive reports whether the user's trial is currently in effect.
// A user who never started a trial (TrialEndsAt == nil) is not in trial.
func TrialActive(u *store.User, now time.Time) bool {
	if u == nil || u.TrialEndsAt == nil {
		return false
	}
	return u.TrialEndsAt.After(now)
}

// HasAccess reports effective access: paid or trial.
func HasAccess(u *store.User, now time.Time) bool {
	return ProActive(u, now) || TrialActive(u, now)
}

// Evaluate classifies the user for display and gating. "gated" means access
// lapsed but the user had a trial, a cancellation stamp, or a billing
// customer on record; "none" means they never had access at all.
func Evaluate(u *store.User, now time.Time) State {
	if u == nil {
		return StateNone
	}
	if ProActive(u, now) {
		return StatePro
	}
	if TrialActive(u, now) {
		return StateTrial
	}
	if u.ProCancelledAt != nil || u.TrialEndsAt != nil || u.StripeCustomerID != "" {
		return StateGated
	}
	return StateNone
}
