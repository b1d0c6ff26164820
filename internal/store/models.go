package store

import (
	"time"
)

// User is the authoritative identity and billing record.
//
// IsPro and ProCancelledAt are written by access reconciliation and by the
// payment webhook; readers must not trust IsPro alone (see internal/access).
type User struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"display_name"`
	PasswordHash     string     `json:"-"`
	IsAdmin          bool       `json:"is_admin"`
	IsPro            bool       `json:"is_pro"`
	TrialEndsAt      *time.Time `json:"trial_ends_at,omitempty"`
	ProCancelledAt   *time.Time `json:"pro_cancelled_at,omitempty"`
	StripeCustomerID string     `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Artist is a public profile owned by a user. At most one non-deleted profile
// per user in practice, but nothing in this layer enforces that.
type Artist struct {
	ID          int64      `json:"id"`
	UserID      *int64     `json:"user_id,omitempty"` // nil after owner deletion
	DisplayName string     `json:"display_name"`
	Slug        string     `json:"slug"`
	IsPro       bool       `json:"is_pro"`
	TrialActive bool       `json:"trial_active"`
	IsApproved  bool       `json:"is_approved"`
	IsListed    bool       `json:"is_listed"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Deleted reports whether the profile is soft-deleted.
func (a *Artist) Deleted() bool {
	return a.DeletedAt != nil
}

// Invite grants or extends a trial period when claimed.
type Invite struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	TrialDays int        `json:"trial_days"`
	MaxUses   *int       `json:"max_uses,omitempty"` // nil = unlimited
	UsedCount int        `json:"used_count"`
	IsActive  bool       `json:"is_active"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Exhausted reports whether the invite has reached its use cap.
func (i *Invite) Exhausted() bool {
	return i.MaxUses != nil && i.UsedCount >= *i.MaxUses
}

// Tip is a ledger row for a completed one-time or recurring tip payment.
// Tips never affect access state.
type Tip struct {
	ID                    string    `json:"id"`
	TipperEmail           string    `json:"tipper_email"`
	AmountCents           int64     `json:"amount_cents"`
	StripeSessionID       string    `json:"stripe_session_id"`
	StripePaymentIntentID string    `json:"stripe_payment_intent_id,omitempty"`
	Source                string    `json:"source"`
	CreatedAt             time.Time `json:"created_at"`
}

// WebhookEventStatus is the outcome of registering an inbound provider event.
type WebhookEventStatus string

const (
	// WebhookEventNew means the event has not been seen before and should be processed.
	WebhookEventNew WebhookEventStatus = "new"
	// WebhookEventDuplicate means the event was already processed successfully.
	WebhookEventDuplicate WebhookEventStatus = "duplicate"
	// WebhookEventInFlight means another delivery of the event is being processed right now.
	WebhookEventInFlight WebhookEventStatus = "in_flight"
	// WebhookEventRetry means a previous attempt failed or went stale; process again.
	WebhookEventRetry WebhookEventStatus = "retry"
)
