package billing

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rpoole444/cosLivewire-BE/internal/access"
	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

// Reconciler recomputes a user's access state and writes the derived flags
// onto the user's artist profiles and listing visibility. Every write is
// "set to freshly computed value", so redundant and out-of-order calls
// converge on the same stored state.
type Reconciler struct {
	store *store.Store
	now   func() time.Time
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(s *store.Store) *Reconciler {
	return &Reconciler{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile loads the user, evaluates access, and syncs the dependent artist
// rows inside one transaction. A missing user is an anomaly, not an error:
// webhook ordering races can reference users that do not exist yet.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64) (bool, error) {
	var granted bool
	err := r.store.Transact(ctx, func(tx *store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			log.Warn().Int64("user_id", userID).Msg("reconcile: user not found")
			return nil
		}
		granted, err = r.apply(ctx, tx, u)
		return err
	})
	if err != nil {
		ReconcileTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if granted {
		ReconcileTotal.WithLabelValues("granted").Inc()
	} else {
		ReconcileTotal.WithLabelValues("denied").Inc()
	}
	return granted, nil
}

// ApplySubscription writes the pro flags derived from a subscription
// snapshot onto the user, then syncs artists and listings, all in one
// transaction. When the snapshot grants Pro the trial expiry is cleared:
// a paying user is no longer trialing.
func (r *Reconciler) ApplySubscription(ctx context.Context, userID int64, snap access.Snapshot) (bool, error) {
	now := r.now()
	derived := access.DeriveProStatus(snap, now)

	var granted, found bool
	err := r.store.Transact(ctx, func(tx *store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			log.Warn().Int64("user_id", userID).Msg("apply subscription: user not found")
			return nil
		}
		found = true

		if err := tx.UpdateUserSubscriptionAccess(ctx, userID, derived.IsPro, derived.ProCancelledAt, derived.IsPro); err != nil {
			return err
		}

		u.IsPro = derived.IsPro
		u.ProCancelledAt = derived.ProCancelledAt
		if derived.IsPro {
			u.TrialEndsAt = nil
		}

		granted, err = r.apply(ctx, tx, u)
		return err
	})
	if err != nil {
		ReconcileTotal.WithLabelValues("error").Inc()
		return false, err
	}

	if found {
		log.Info().
			Int64("user_id", userID).
			Bool("is_pro", derived.IsPro).
			Str("subscription_status", string(snap.Status)).
			Bool("access_granted", granted).
			Msg("subscription state applied")
	}

	if granted {
		ReconcileTotal.WithLabelValues("granted").Inc()
	} else {
		ReconcileTotal.WithLabelValues("denied").Inc()
	}
	return granted, nil
}

// Sync applies the artist and listing sync for u inside an already open
// transaction. Callers that change access state transactionally (invite
// claims, trial starts) use this so the user write and the artist sync
// commit together.
func (r *Reconciler) Sync(ctx context.Context, tx *store.Tx, u *store.User) (bool, error) {
	return r.apply(ctx, tx, u)
}

// apply mirrors pro state onto the user's non-deleted artist profiles and
// auto-publishes approved, unlisted profiles when access is granted.
// Listing is monotonic here: this path never unlists.
func (r *Reconciler) apply(ctx context.Context, tx *store.Tx, u *store.User) (bool, error) {
	now := r.now()
	proActive := access.ProActive(u, now)
	granted := proActive || access.TrialActive(u, now)

	// Artist is_pro mirrors paid access only; a trial does not mark the
	// profile as Pro.
	if err := tx.SyncArtistAccess(ctx, u.ID, proActive); err != nil {
		return false, err
	}

	if granted {
		listed, err := tx.AutoListApprovedArtists(ctx, u.ID)
		if err != nil {
			return false, err
		}
		if listed > 0 {
			log.Info().Int64("user_id", u.ID).Int64("listed", listed).Msg("auto-listed approved artist profiles")
		}
	}

	return granted, nil
}
