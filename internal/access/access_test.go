package access

import (
	"testing"
	"time"

	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func TestProActive(t *testing.T) {
	tests := []struct {
		name string
		user *store.User
		want bool
	}{
		{"nil user", nil, false},
		{"not pro", &store.User{IsPro: false}, false},
		{"pro no cancellation", &store.User{IsPro: true}, true},
		{"pro cancellation in future", &store.User{IsPro: true, ProCancelledAt: timePtr(testNow.Add(time.Hour))}, true},
		{"pro cancellation in past", &store.User{IsPro: true, ProCancelledAt: timePtr(testNow.Add(-time.Hour))}, false},
		{"pro cancellation exactly now", &store.User{IsPro: true, ProCancelledAt: timePtr(testNow)}, false},
		{"not pro despite future cancellation", &store.User{IsPro: false, ProCancelledAt: timePtr(testNow.Add(time.Hour))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProActive(tt.user, testNow); got != tt.want {
				t.Errorf("ProActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrialActive(t *testing.T) {
	tests := []struct {
		name string
		user *store.User
		want bool
	}{
		{"nil user", nil, false},
		{"never started trial", &store.User{}, false},
		{"trial in future", &store.User{TrialEndsAt: timePtr(testNow.Add(24 * time.Hour))}, true},
		{"trial expired", &store.User{TrialEndsAt: timePtr(testNow.Add(-time.Minute))}, false},
		{"trial expiring exactly now", &store.User{TrialEndsAt: timePtr(testNow)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrialActive(tt.user, testNow); got != tt.want {
				t.Errorf("TrialActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		user *store.User
		want State
	}{
		{"nil user", nil, StateNone},
		{"fresh user", &store.User{}, StateNone},
		{"active pro", &store.User{IsPro: true}, StatePro},
		{"active trial", &store.User{TrialEndsAt: timePtr(testNow.Add(time.Hour))}, StateTrial},
		{
			"pro wins over trial",
			&store.User{IsPro: true, TrialEndsAt: timePtr(testNow.Add(time.Hour))},
			StatePro,
		},
		{
			"expired trial is gated",
			&store.User{TrialEndsAt: timePtr(testNow.Add(-time.Hour))},
			StateGated,
		},
		{
			"lapsed pro is gated",
			&store.User{IsPro: true, ProCancelledAt: timePtr(testNow.Add(-time.Hour))},
			StateGated,
		},
		{
			"billing customer on record is gated",
			&store.User{StripeCustomerID: "cus_123"},
			StateGated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.user, testNow); got != tt.want {
				t.Errorf("Evaluate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	u := &store.User{IsPro: true, ProCancelledAt: timePtr(testNow.Add(-time.Hour)), TrialEndsAt: timePtr(testNow.Add(-time.Hour))}
	before := *u
	_ = Evaluate(u, testNow)
	_ = HasAccess(u, testNow)
	if *u != before {
		t.Fatalf("evaluation mutated the user record: %+v != %+v", *u, before)
	}
}
