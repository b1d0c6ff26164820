package access

import (
	"testing"
	"time"
)

func TestParseSubscriptionStatus(t *testing.T) {
	tests := []struct {
		input string
		want  SubscriptionStatus
	}{
		{"active", StatusActive},
		{"  Trialing ", StatusTrialing},
		{"past_due", StatusPastDue},
		{"canceled", StatusCanceled},
		{"paused", StatusPaused},
		{"", StatusCanceled},
		{"something_new", StatusCanceled},
	}
	for _, tt := range tests {
		if got := ParseSubscriptionStatus(tt.input); got != tt.want {
			t.Errorf("ParseSubscriptionStatus(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSubscriptionStatusGrants(t *testing.T) {
	granting := map[SubscriptionStatus]bool{
		StatusActive:            true,
		StatusTrialing:          true,
		StatusPastDue:           false,
		StatusCanceled:          false,
		StatusIncomplete:        false,
		StatusIncompleteExpired: false,
		StatusUnpaid:            false,
		StatusPaused:            false,
	}
	for status, want := range granting {
		if got := status.Grants(); got != want {
			t.Errorf("%q.Grants() = %v, want %v", status, got, want)
		}
	}
}

func TestDeriveProStatus(t *testing.T) {
	periodEnd := testNow.Add(20 * 24 * time.Hour)
	cancelAt := testNow.Add(10 * 24 * time.Hour)
	canceledAt := testNow.Add(-48 * time.Hour)

	tests := []struct {
		name string
		snap Snapshot
		want ProStatus
	}{
		{
			"active renewing",
			Snapshot{Status: StatusActive},
			ProStatus{IsPro: true},
		},
		{
			"active renewing clears stale cancellation",
			Snapshot{Status: StatusActive, CancelAtPeriodEnd: false, CanceledAt: nil},
			ProStatus{IsPro: true, ProCancelledAt: nil},
		},
		{
			"trialing grants",
			Snapshot{Status: StatusTrialing},
			ProStatus{IsPro: true},
		},
		{
			"cancel at period end with explicit instant",
			Snapshot{Status: StatusActive, CancelAtPeriodEnd: true, CancelAt: &cancelAt, CurrentPeriodEnd: &periodEnd},
			ProStatus{IsPro: true, ProCancelledAt: &cancelAt},
		},
		{
			"cancel at period end falls back to period boundary",
			Snapshot{Status: StatusActive, CancelAtPeriodEnd: true, CurrentPeriodEnd: &periodEnd},
			ProStatus{IsPro: true, ProCancelledAt: &periodEnd},
		},
		{
			"canceled records canceled_at",
			Snapshot{Status: StatusCanceled, CanceledAt: &canceledAt},
			ProStatus{IsPro: false, ProCancelledAt: &canceledAt},
		},
		{
			"past_due loses access immediately",
			Snapshot{Status: StatusPastDue},
			ProStatus{IsPro: false, ProCancelledAt: &testNow},
		},
		{
			"unpaid without canceled_at stamps now",
			Snapshot{Status: StatusUnpaid},
			ProStatus{IsPro: false, ProCancelledAt: &testNow},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveProStatus(tt.snap, testNow)
			if got.IsPro != tt.want.IsPro {
				t.Errorf("IsPro = %v, want %v", got.IsPro, tt.want.IsPro)
			}
			switch {
			case tt.want.ProCancelledAt == nil && got.ProCancelledAt != nil:
				t.Errorf("ProCancelledAt = %v, want nil", got.ProCancelledAt)
			case tt.want.ProCancelledAt != nil && got.ProCancelledAt == nil:
				t.Errorf("ProCancelledAt = nil, want %v", tt.want.ProCancelledAt)
			case tt.want.ProCancelledAt != nil && !got.ProCancelledAt.Equal(*tt.want.ProCancelledAt):
				t.Errorf("ProCancelledAt = %v, want %v", got.ProCancelledAt, tt.want.ProCancelledAt)
			}
		})
	}
}

func TestDeriveProStatusIdempotent(t *testing.T) {
	cancelAt := testNow.Add(5 * 24 * time.Hour)
	snap := Snapshot{Status: StatusActive, CancelAtPeriodEnd: true, CancelAt: &cancelAt}

	first := DeriveProStatus(snap, testNow)
	second := DeriveProStatus(snap, testNow)
	if first.IsPro != second.IsPro || !first.ProCancelledAt.Equal(*second.ProCancelledAt) {
		t.Fatalf("derivation not stable: %+v vs %+v", first, second)
	}
}
