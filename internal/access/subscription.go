package access

import (
	"strings"
	"time"
)

// SubscriptionStatus is the provider's subscription lifecycle status.
type SubscriptionStatus string

const (
	StatusActive            SubscriptionStatus = "active"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

// ParseSubscriptionStatus normalizes a raw provider status string.
// Unknown statuses map to canceled so they never grant access.
func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	switch s := SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled,
		StatusIncomplete, StatusIncompleteExpired, StatusUnpaid, StatusPaused:
		return s
	default:
		return StatusCanceled
	}
}

// Grants reports whether the status grants Pro access.
func (s SubscriptionStatus) Grants() bool {
	return s == StatusActive || s == StatusTrialing
}

// Snapshot is the canonical view of a provider subscription: the only fields
// the access rules need, already decoded from the wire payload.
type Snapshot struct {
	SubscriptionID    string
	CustomerID        string
	Status            SubscriptionStatus
	CancelAtPeriodEnd bool
	CancelAt          *time.Time
	CurrentPeriodEnd  *time.Time
	CanceledAt        *time.Time
}

// ProStatus is what a snapshot implies for the stored user pro flags.
type ProStatus struct {
	IsPro          bool
	ProCancelledAt *time.Time
}

// DeriveProStatus computes the pro flags a subscription snapshot should
// produce on the user record:
//
//   - active/trialing keep Pro access
//   - cancel_at_period_end keeps access until the cancel instant (or the
//     period boundary when no explicit instant is present), and records it
//   - inactive subscriptions lose Pro and always record when access ended,
//     falling back to now so the field is never silently stale
//   - an active, renewing subscription clears any pending cancellation
func DeriveProStatus(s Snapshot, now time.Time) ProStatus {
	out := ProStatus{IsPro: s.Status.Grants()}

	if s.CancelAtPeriodEnd {
		if s.CancelAt != nil {
			out.ProCancelledAt = s.CancelAt
		} else {
			out.ProCancelledAt = s.CurrentPeriodEnd
		}
	}

	if !out.IsPro {
		if s.CanceledAt != nil {
			out.ProCancelledAt = s.CanceledAt
		} else if out.ProCancelledAt == nil {
			t := now
			out.ProCancelledAt = &t
		}
	} else if !s.CancelAtPeriodEnd {
		out.ProCancelledAt = nil
	}

	return out
}
