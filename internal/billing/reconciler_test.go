package billing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rpoole444/cosLivewire-BE/internal/access"
	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createUserWithArtist(t *testing.T, s *store.Store, email string, approved bool) (*store.User, *store.Artist) {
	t.Helper()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, email, "Owner", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	a, err := s.CreateArtist(ctx, u.ID, "Band", "band-"+email)
	if err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}
	if approved {
		if a, err = s.SetArtistApproval(ctx, a.ID, true); err != nil {
			t.Fatalf("SetArtistApproval: %v", err)
		}
	}
	return u, a
}

func setTrial(t *testing.T, s *store.Store, userID int64, endsAt time.Time) {
	t.Helper()
	err := s.Transact(context.Background(), func(tx *store.Tx) error {
		return tx.UpdateUserTrial(context.Background(), userID, endsAt)
	})
	if err != nil {
		t.Fatalf("UpdateUserTrial: %v", err)
	}
}

func TestReconcileTrialGrantsListingButNotProFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, a := createUserWithArtist(t, s, "trial@example.com", true)
	setTrial(t, s, u.ID, time.Now().UTC().Add(48*time.Hour))

	r := NewReconciler(s)
	granted, err := r.Reconcile(ctx, u.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !granted {
		t.Fatalf("trial user should be granted access")
	}

	got, _ := s.GetArtist(ctx, a.ID)
	if got.IsPro {
		t.Fatalf("trial must not mark the artist profile as Pro")
	}
	if !got.IsListed {
		t.Fatalf("approved artist of an entitled owner must be listed")
	}
}

func TestReconcileIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, a := createUserWithArtist(t, s, "idem@example.com", true)
	setTrial(t, s, u.ID, time.Now().UTC().Add(48*time.Hour))

	r := NewReconciler(s)
	for i := 0; i < 3; i++ {
		if _, err := r.Reconcile(ctx, u.ID); err != nil {
			t.Fatalf("Reconcile #%d: %v", i+1, err)
		}
	}

	got, _ := s.GetArtist(ctx, a.ID)
	if !got.IsListed || got.IsPro {
		t.Fatalf("repeated reconciles changed the converged state: %+v", got)
	}
}

func TestReconcileMissingUser(t *testing.T) {
	s := newTestStore(t)
	r := NewReconciler(s)

	granted, err := r.Reconcile(context.Background(), 9999)
	if err != nil {
		t.Fatalf("missing user must not be an error: %v", err)
	}
	if granted {
		t.Fatalf("missing user must not be granted")
	}
}

func TestApplySubscriptionMissingUserLogsNoApply(t *testing.T) {
	s := newTestStore(t)
	r := NewReconciler(s)

	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	granted, err := r.ApplySubscription(context.Background(), 9999, access.Snapshot{Status: access.StatusActive})
	if err != nil {
		t.Fatalf("missing user must not be an error: %v", err)
	}
	if granted {
		t.Fatalf("missing user must not be granted")
	}
	if strings.Contains(buf.String(), "subscription state applied") {
		t.Fatalf("applied log emitted although nothing was written: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "user not found") {
		t.Fatalf("missing user warning not logged: %s", buf.String())
	}
}

func TestApplySubscriptionActivatesPro(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, a := createUserWithArtist(t, s, "pro@example.com", true)
	setTrial(t, s, u.ID, time.Now().UTC().Add(24*time.Hour))

	r := NewReconciler(s)
	granted, err := r.ApplySubscription(ctx, u.ID, access.Snapshot{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Status:         access.StatusActive,
	})
	if err != nil {
		t.Fatalf("ApplySubscription: %v", err)
	}
	if !granted {
		t.Fatalf("active subscription must grant access")
	}

	gotUser, _ := s.GetUser(ctx, u.ID)
	if !gotUser.IsPro {
		t.Fatalf("user should be pro")
	}
	if gotUser.TrialEndsAt != nil {
		t.Fatalf("conversion to paid must clear the trial, got %v", gotUser.TrialEndsAt)
	}

	gotArtist, _ := s.GetArtist(ctx, a.ID)
	if !gotArtist.IsPro || gotArtist.TrialActive {
		t.Fatalf("artist flags = %+v, want pro and not trial", gotArtist)
	}
	if !gotArtist.IsListed {
		t.Fatalf("approved artist must be listed after activation")
	}
}

func TestApplySubscriptionCancellationKeepsListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, a := createUserWithArtist(t, s, "cancel@example.com", true)

	r := NewReconciler(s)
	if _, err := r.ApplySubscription(ctx, u.ID, access.Snapshot{Status: access.StatusActive}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	canceledAt := time.Now().UTC().Add(-time.Hour)
	granted, err := r.ApplySubscription(ctx, u.ID, access.Snapshot{
		Status:     access.StatusCanceled,
		CanceledAt: &canceledAt,
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if granted {
		t.Fatalf("canceled subscription must not grant access")
	}

	gotUser, _ := s.GetUser(ctx, u.ID)
	if gotUser.IsPro {
		t.Fatalf("user should no longer be pro")
	}
	if gotUser.ProCancelledAt == nil || !gotUser.ProCancelledAt.Equal(canceledAt.Truncate(time.Second)) {
		t.Fatalf("pro_cancelled_at = %v, want %v", gotUser.ProCancelledAt, canceledAt)
	}

	gotArtist, _ := s.GetArtist(ctx, a.ID)
	if gotArtist.IsPro {
		t.Fatalf("artist pro mirror must be cleared")
	}
	if !gotArtist.IsListed {
		t.Fatalf("losing access must not unlist the artist")
	}
}

func TestApplySubscriptionConvergesOnLastEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _ := createUserWithArtist(t, s, "ooo@example.com", true)

	r := NewReconciler(s)

	// Cancellation processed first, then the (logically earlier) activation:
	// each application derives the full state from its snapshot, so the most
	// recently applied snapshot wins.
	canceledAt := time.Now().UTC().Add(-time.Hour)
	if _, err := r.ApplySubscription(ctx, u.ID, access.Snapshot{Status: access.StatusCanceled, CanceledAt: &canceledAt}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	granted, err := r.ApplySubscription(ctx, u.ID, access.Snapshot{Status: access.StatusActive})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !granted {
		t.Fatalf("re-applied active snapshot must grant")
	}

	gotUser, _ := s.GetUser(ctx, u.ID)
	if !gotUser.IsPro || gotUser.ProCancelledAt != nil {
		t.Fatalf("user = %+v, want pro with cleared cancellation", gotUser)
	}
}

func TestApplySubscriptionSoftDeletedArtistUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, a := createUserWithArtist(t, s, "deleted@example.com", true)
	if err := s.SoftDeleteArtist(ctx, a.ID); err != nil {
		t.Fatalf("SoftDeleteArtist: %v", err)
	}

	r := NewReconciler(s)
	if _, err := r.ApplySubscription(ctx, u.ID, access.Snapshot{Status: access.StatusActive}); err != nil {
		t.Fatalf("ApplySubscription: %v", err)
	}

	got, _ := s.GetArtist(ctx, a.ID)
	if got.IsPro || got.IsListed {
		t.Fatalf("soft-deleted artist must not be synced or listed: %+v", got)
	}
}
