// Package invites implements trial-granting invite codes: admin-created,
// optionally capped, claimed by users to start or extend a Pro trial.
package invites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rpoole444/cosLivewire-BE/internal/access"
	"github.com/rpoole444/cosLivewire-BE/internal/billing"
	"github.com/rpoole444/cosLivewire-BE/internal/email"
	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

var (
	ErrInviteNotFound  = errors.New("invite code not found")
	ErrInviteInactive  = errors.New("invite code is no longer active")
	ErrInviteExhausted = errors.New("invite code has no uses left")
	ErrAlreadyPro      = errors.New("user already has an active subscription")
	ErrUserNotFound    = errors.New("user not found")
)

// Service handles invite creation and claims.
type Service struct {
	store      *store.Store
	reconciler *billing.Reconciler
	notifier   *email.Notifier // optional
	now        func() time.Time
}

// NewService creates an invite Service.
func NewService(s *store.Store, r *billing.Reconciler, notifier *email.Notifier) *Service {
	return &Service{
		store:      s,
		reconciler: r,
		notifier:   notifier,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ClaimResult describes a successful claim.
type ClaimResult struct {
	TrialEndsAt time.Time
	Extended    bool // true when an already running trial was extended
}

// Claim redeems an invite code for a user. The trial extends from whichever
// is later, now or the user's current trial end, so stacking codes never
// loses time. Users with an active paid subscription cannot claim.
func (s *Service) Claim(ctx context.Context, userID int64, code string) (*ClaimResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		billing.InviteClaimsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrInviteNotFound
	}

	// Invite lookup happens outside the claim transaction; the conditional
	// consume below is the authoritative race guard.
	invite, err := s.store.GetInviteByCode(ctx, code)
	if err != nil {
		billing.InviteClaimsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if invite == nil {
		billing.InviteClaimsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrInviteNotFound
	}
	if !invite.IsActive {
		billing.InviteClaimsTotal.WithLabelValues("inactive").Inc()
		return nil, ErrInviteInactive
	}
	if invite.Exhausted() {
		billing.InviteClaimsTotal.WithLabelValues("exhausted").Inc()
		return nil, ErrInviteExhausted
	}

	now := s.now()
	var result ClaimResult
	var userEmail, userName string

	err = s.store.Transact(ctx, func(tx *store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		if access.ProActive(u, now) {
			return ErrAlreadyPro
		}

		consumed, err := tx.ConsumeInvite(ctx, invite.ID)
		if err != nil {
			return err
		}
		if !consumed {
			// A concurrent claim or deactivation won the race.
			if invite.MaxUses != nil {
				return ErrInviteExhausted
			}
			return ErrInviteInactive
		}

		base := now
		if u.TrialEndsAt != nil && u.TrialEndsAt.After(now) {
			base = *u.TrialEndsAt
			result.Extended = true
		}
		result.TrialEndsAt = base.AddDate(0, 0, invite.TrialDays)

		if err := tx.UpdateUserTrial(ctx, userID, result.TrialEndsAt); err != nil {
			return err
		}

		u.TrialEndsAt = &result.TrialEndsAt
		u.ProCancelledAt = nil
		userEmail, userName = u.Email, u.DisplayName

		_, err = s.reconciler.Sync(ctx, tx, u)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyPro):
			billing.InviteClaimsTotal.WithLabelValues("already_pro").Inc()
		case errors.Is(err, ErrInviteExhausted):
			billing.InviteClaimsTotal.WithLabelValues("exhausted").Inc()
		case errors.Is(err, ErrInviteInactive):
			billing.InviteClaimsTotal.WithLabelValues("inactive").Inc()
		case errors.Is(err, ErrUserNotFound):
			billing.InviteClaimsTotal.WithLabelValues("not_found").Inc()
		default:
			billing.InviteClaimsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	billing.InviteClaimsTotal.WithLabelValues("granted").Inc()
	log.Info().
		Int64("user_id", userID).
		Str("code", invite.Code).
		Time("trial_ends_at", result.TrialEndsAt).
		Bool("extended", result.Extended).
		Msg("invite claimed")

	if s.notifier != nil {
		if err := s.notifier.TrialStarted(ctx, userEmail, userName, result.TrialEndsAt); err != nil {
			log.Warn().Err(err).Str("email", userEmail).Msg("failed to send trial started email")
		}
	}
	return &result, nil
}

// Create mints a new invite code. An empty code gets a generated one;
// maxUses nil means unlimited.
func (s *Service) Create(ctx context.Context, code string, trialDays int, maxUses *int) (*store.Invite, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = GenerateCode()
	}
	if trialDays <= 0 {
		return nil, fmt.Errorf("trial days must be positive")
	}
	if maxUses != nil && *maxUses <= 0 {
		return nil, fmt.Errorf("max uses must be positive when set")
	}
	invite, err := s.store.CreateInvite(ctx, code, trialDays, maxUses)
	if err != nil {
		return nil, err
	}
	log.Info().Str("code", invite.Code).Int("trial_days", trialDays).Msg("invite created")
	return invite, nil
}

// StartTrial grants the configured default trial directly, without a code.
// Used by the self-serve trial endpoint; the same stacking rule as Claim
// applies.
func (s *Service) StartTrial(ctx context.Context, userID int64, days int) (*ClaimResult, error) {
	if days <= 0 {
		return nil, fmt.Errorf("trial days must be positive")
	}
	now := s.now()
	var result ClaimResult
	var userEmail, userName string

	err := s.store.Transact(ctx, func(tx *store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		if access.ProActive(u, now) {
			return ErrAlreadyPro
		}

		base := now
		if u.TrialEndsAt != nil && u.TrialEndsAt.After(now) {
			base = *u.TrialEndsAt
			result.Extended = true
		}
		result.TrialEndsAt = base.AddDate(0, 0, days)

		if err := tx.UpdateUserTrial(ctx, userID, result.TrialEndsAt); err != nil {
			return err
		}

		u.TrialEndsAt = &result.TrialEndsAt
		u.ProCancelledAt = nil
		userEmail, userName = u.Email, u.DisplayName

		_, err = s.reconciler.Sync(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Time("trial_ends_at", result.TrialEndsAt).
		Bool("extended", result.Extended).
		Msg("trial started")

	if s.notifier != nil {
		if err := s.notifier.TrialStarted(ctx, userEmail, userName, result.TrialEndsAt); err != nil {
			log.Warn().Err(err).Str("email", userEmail).Msg("failed to send trial started email")
		}
	}
	return &result, nil
}

// GenerateCode produces a short, human-shareable invite code.
func GenerateCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "GW-" + strings.ToUpper(raw[:8])
}
