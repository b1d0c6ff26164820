package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alex@example.com", "Alex", "hash"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	// Same email in different case must collide.
	if _, err := s.CreateUser(ctx, "Alex@Example.COM", "Alex 2", "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestGetUserByEmailCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "Mixed@Example.com", "Mixed", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.Email != "mixed@example.com" {
		t.Fatalf("stored email = %q, want lowercased", created.Email)
	}

	u, err := s.GetUserByEmail(ctx, "MIXED@EXAMPLE.COM")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Fatalf("lookup by differently cased email failed: %+v", u)
	}
}

func TestStripeCustomerBackfillAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "payer@example.com", "Payer", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if got, err := s.GetUserByStripeCustomerID(ctx, "cus_123"); err != nil || got != nil {
		t.Fatalf("expected no match before backfill, got %+v err=%v", got, err)
	}
	if err := s.SetStripeCustomerID(ctx, u.ID, "cus_123"); err != nil {
		t.Fatalf("SetStripeCustomerID: %v", err)
	}
	got, err := s.GetUserByStripeCustomerID(ctx, "cus_123")
	if err != nil {
		t.Fatalf("GetUserByStripeCustomerID: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("lookup after backfill failed: %+v", got)
	}

	// Empty customer ID must never match the default empty column value.
	if got, err := s.GetUserByStripeCustomerID(ctx, ""); err != nil || got != nil {
		t.Fatalf("empty customer id must not match, got %+v err=%v", got, err)
	}
}

func TestSyncArtistAccessAndAutoList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "owner@example.com", "Owner", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	approved, err := s.CreateArtist(ctx, u.ID, "Band A", "band-a")
	if err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}
	unapproved, err := s.CreateArtist(ctx, u.ID, "Band B", "band-b")
	if err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}
	deleted, err := s.CreateArtist(ctx, u.ID, "Band C", "band-c")
	if err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}
	if _, err := s.SetArtistApproval(ctx, approved.ID, true); err != nil {
		t.Fatalf("SetArtistApproval: %v", err)
	}
	if _, err := s.SetArtistApproval(ctx, deleted.ID, true); err != nil {
		t.Fatalf("SetArtistApproval: %v", err)
	}
	if err := s.SoftDeleteArtist(ctx, deleted.ID); err != nil {
		t.Fatalf("SoftDeleteArtist: %v", err)
	}

	err = s.Transact(ctx, func(tx *Tx) error {
		if err := tx.SyncArtistAccess(ctx, u.ID, true); err != nil {
			return err
		}
		n, err := tx.AutoListApprovedArtists(ctx, u.ID)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("auto-listed %d profiles, want 1", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	a, _ := s.GetArtist(ctx, approved.ID)
	if !a.IsPro || !a.IsListed {
		t.Fatalf("approved artist = %+v, want pro and listed", a)
	}
	b, _ := s.GetArtist(ctx, unapproved.ID)
	if !b.IsPro || b.IsListed {
		t.Fatalf("unapproved artist = %+v, want pro mirror but not listed", b)
	}
	c, _ := s.GetArtist(ctx, deleted.ID)
	if c.IsPro || c.IsListed {
		t.Fatalf("deleted artist = %+v, want untouched", c)
	}
}

func TestAutoListNeverUnlists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, _ := s.CreateUser(ctx, "owner2@example.com", "Owner", "hash")
	a, _ := s.CreateArtist(ctx, u.ID, "Band", "band-x")
	if _, err := s.SetArtistApproval(ctx, a.ID, true); err != nil {
		t.Fatalf("SetArtistApproval: %v", err)
	}
	if err := s.SetArtistListed(ctx, a.ID, true); err != nil {
		t.Fatalf("SetArtistListed: %v", err)
	}

	// Losing pro must not unlist.
	err := s.Transact(ctx, func(tx *Tx) error {
		return tx.SyncArtistAccess(ctx, u.ID, false)
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	got, _ := s.GetArtist(ctx, a.ID)
	if !got.IsListed {
		t.Fatalf("artist was unlisted by access sync")
	}
}

func TestListListedArtists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, _ := s.CreateUser(ctx, "dir@example.com", "Dir", "hash")
	visible, _ := s.CreateArtist(ctx, u.ID, "Visible", "visible")
	hidden, _ := s.CreateArtist(ctx, u.ID, "Hidden", "hidden")
	if _, err := s.SetArtistApproval(ctx, visible.ID, true); err != nil {
		t.Fatalf("SetArtistApproval: %v", err)
	}
	if err := s.SetArtistListed(ctx, visible.ID, true); err != nil {
		t.Fatalf("SetArtistListed: %v", err)
	}
	if err := s.SetArtistListed(ctx, hidden.ID, true); err != nil {
		t.Fatalf("SetArtistListed: %v", err)
	}
	// hidden is listed but unapproved, so it stays out of the directory.

	artists, err := s.ListListedArtists(ctx)
	if err != nil {
		t.Fatalf("ListListedArtists: %v", err)
	}
	if len(artists) != 1 || artists[0].ID != visible.ID {
		t.Fatalf("directory = %+v, want only the approved listed artist", artists)
	}
}

func TestConsumeInviteRespectsCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	maxUses := 2
	inv, err := s.CreateInvite(ctx, "CAP-2", 14, &maxUses)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	consume := func() bool {
		var ok bool
		err := s.Transact(ctx, func(tx *Tx) error {
			var err error
			ok, err = tx.ConsumeInvite(ctx, inv.ID)
			return err
		})
		if err != nil {
			t.Fatalf("Transact: %v", err)
		}
		return ok
	}

	if !consume() || !consume() {
		t.Fatalf("first two consumes must succeed")
	}
	if consume() {
		t.Fatalf("third consume exceeded max_uses")
	}

	got, _ := s.GetInviteByCode(ctx, "cap-2") // case-insensitive lookup
	if got == nil || got.UsedCount != 2 {
		t.Fatalf("invite after consumes = %+v, want used_count 2", got)
	}
	if !got.Exhausted() {
		t.Fatalf("invite should report exhausted")
	}
}

func TestConsumeInviteInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv, err := s.CreateInvite(ctx, "OFF", 7, nil)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if err := s.SetInviteActive(ctx, inv.ID, false); err != nil {
		t.Fatalf("SetInviteActive: %v", err)
	}

	err = s.Transact(ctx, func(tx *Tx) error {
		ok, err := tx.ConsumeInvite(ctx, inv.ID)
		if err != nil {
			return err
		}
		if ok {
			t.Errorf("inactive invite was consumed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
}

func TestInsertTipIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tip := &Tip{
		ID:              "01JTESTTIP00000000000000",
		TipperEmail:     "fan@example.com",
		AmountCents:     500,
		StripeSessionID: "cs_tip_1",
		Source:          "platform",
	}
	inserted, err := s.InsertTip(ctx, tip)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	dup := *tip
	dup.ID = "01JTESTTIP00000000000001"
	inserted, err = s.InsertTip(ctx, &dup)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate session id must not insert a second row")
	}

	got, err := s.GetTipBySessionID(ctx, "cs_tip_1")
	if err != nil || got == nil {
		t.Fatalf("GetTipBySessionID: %+v err=%v", got, err)
	}
	if got.ID != tip.ID {
		t.Fatalf("tip id = %q, want the first insert to win", got.ID)
	}
}

func TestWebhookEventLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	status, err := s.RegisterWebhookEvent(ctx, "evt_1", "checkout.session.completed")
	if err != nil || status != WebhookEventNew {
		t.Fatalf("first register = %q err=%v, want new", status, err)
	}

	// Unfinished and fresh: fenced.
	status, err = s.RegisterWebhookEvent(ctx, "evt_1", "checkout.session.completed")
	if err != nil || status != WebhookEventInFlight {
		t.Fatalf("second register = %q err=%v, want in_flight", status, err)
	}

	if err := s.MarkWebhookEventProcessed(ctx, "evt_1"); err != nil {
		t.Fatalf("MarkWebhookEventProcessed: %v", err)
	}
	status, err = s.RegisterWebhookEvent(ctx, "evt_1", "checkout.session.completed")
	if err != nil || status != WebhookEventDuplicate {
		t.Fatalf("register after processing = %q err=%v, want duplicate", status, err)
	}
}

func TestWebhookEventErrorAllowsRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.RegisterWebhookEvent(ctx, "evt_err", "customer.subscription.updated"); err != nil {
		t.Fatalf("RegisterWebhookEvent: %v", err)
	}
	if err := s.RecordWebhookEventError(ctx, "evt_err", "db locked"); err != nil {
		t.Fatalf("RecordWebhookEventError: %v", err)
	}

	// The failed attempt must not fence the provider's redelivery.
	status, err := s.RegisterWebhookEvent(ctx, "evt_err", "customer.subscription.updated")
	if err != nil || status != WebhookEventRetry {
		t.Fatalf("register after error = %q err=%v, want retry", status, err)
	}
}

func TestMarkUnknownWebhookEventFails(t *testing.T) {
	s := newTestStore(t)
	if err := s.MarkWebhookEventProcessed(context.Background(), "evt_missing"); err == nil {
		t.Fatalf("expected error for unregistered event")
	}
}

func TestUpdateUserSubscriptionAccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, _ := s.CreateUser(ctx, "sub@example.com", "Sub", "hash")
	trialEnd := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)

	err := s.Transact(ctx, func(tx *Tx) error {
		return tx.UpdateUserTrial(ctx, u.ID, trialEnd)
	})
	if err != nil {
		t.Fatalf("UpdateUserTrial: %v", err)
	}

	got, _ := s.GetUser(ctx, u.ID)
	if got.TrialEndsAt == nil || !got.TrialEndsAt.Equal(trialEnd) {
		t.Fatalf("trial_ends_at = %v, want %v", got.TrialEndsAt, trialEnd)
	}

	// Converting to paid clears the trial.
	err = s.Transact(ctx, func(tx *Tx) error {
		return tx.UpdateUserSubscriptionAccess(ctx, u.ID, true, nil, true)
	})
	if err != nil {
		t.Fatalf("UpdateUserSubscriptionAccess: %v", err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if !got.IsPro || got.TrialEndsAt != nil {
		t.Fatalf("after conversion = %+v, want pro with no trial", got)
	}
}
