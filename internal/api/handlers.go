package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rpoole444/cosLivewire-BE/internal/access"
	"github.com/rpoole444/cosLivewire-BE/internal/invites"
	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

type userResponse struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"displayName"`
	IsAdmin        bool       `json:"isAdmin"`
	IsPro          bool       `json:"isPro"`
	TrialEndsAt    *time.Time `json:"trialEndsAt,omitempty"`
	ProCancelledAt *time.Time `json:"proCancelledAt,omitempty"`
}

func (rt *Router) userView(u *store.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		IsAdmin:        u.IsAdmin,
		IsPro:          u.IsPro,
		TrialEndsAt:    u.TrialEndsAt,
		ProCancelledAt: u.ProCancelledAt,
	}
}

type accessResponse struct {
	State          access.State `json:"state"`
	ProActive      bool         `json:"proActive"`
	TrialActive    bool         `json:"trialActive"`
	HasAccess      bool         `json:"hasAccess"`
	TrialEndsAt    *time.Time   `json:"trialEndsAt,omitempty"`
	ProCancelledAt *time.Time   `json:"proCancelledAt,omitempty"`
}

// handleMeAccess reports the caller's current access classification. Computed
// live from the record, never from cached flags.
func (rt *Router) handleMeAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	u, err := rt.store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to load user"))
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}

	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, accessResponse{
		State:          access.Evaluate(u, now),
		ProActive:      access.ProActive(u, now),
		TrialActive:    access.TrialActive(u, now),
		HasAccess:      access.HasAccess(u, now),
		TrialEndsAt:    u.TrialEndsAt,
		ProCancelledAt: u.ProCancelledAt,
	})
}

type trialResponse struct {
	TrialEndsAt time.Time `json:"trialEndsAt"`
	Extended    bool      `json:"extended"`
}

// handleTrialStart grants the default self-serve trial.
func (rt *Router) handleTrialStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	result, err := rt.invites.StartTrial(r.Context(), userID, rt.cfg.DefaultTrialDays)
	if err != nil {
		rt.writeInviteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trialResponse{TrialEndsAt: result.TrialEndsAt, Extended: result.Extended})
}

type claimRequest struct {
	Code string `json:"code"`
}

// handleInviteClaim redeems an invite code for the caller.
func (rt *Router) handleInviteClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	var req claimRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := rt.invites.Claim(r.Context(), userID, req.Code)
	if err != nil {
		rt.writeInviteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trialResponse{TrialEndsAt: result.TrialEndsAt, Extended: result.Extended})
}

func (rt *Router) writeInviteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invites.ErrInviteNotFound):
		writeError(w, http.StatusNotFound, "invite_not_found", "Invite code not found")
	case errors.Is(err, invites.ErrInviteInactive):
		writeError(w, http.StatusGone, "invite_inactive", "Invite code is no longer active")
	case errors.Is(err, invites.ErrInviteExhausted):
		writeError(w, http.StatusGone, "invite_exhausted", "Invite code has no uses left")
	case errors.Is(err, invites.ErrAlreadyPro):
		writeError(w, http.StatusConflict, "already_pro", "You already have an active subscription")
	case errors.Is(err, invites.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "User not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Invite operation failed"))
	}
}

type createInviteRequest struct {
	Code      string `json:"code"`
	TrialDays int    `json:"trialDays"`
	MaxUses   *int   `json:"maxUses"`
}

type inviteResponse struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	TrialDays int    `json:"trialDays"`
	MaxUses   *int   `json:"maxUses,omitempty"`
	UsedCount int    `json:"usedCount"`
	IsActive  bool   `json:"isActive"`
}

// handleInviteCreate mints a new invite code (admin only).
func (rt *Router) handleInviteCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	var req createInviteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.TrialDays <= 0 {
		req.TrialDays = rt.cfg.DefaultTrialDays
	}

	invite, err := rt.invites.Create(r.Context(), req.Code, req.TrialDays, req.MaxUses)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_invite", sanitizeError(err, "Failed to create invite"))
		return
	}
	writeJSON(w, http.StatusCreated, inviteResponse{
		ID:        invite.ID,
		Code:      invite.Code,
		TrialDays: invite.TrialDays,
		MaxUses:   invite.MaxUses,
		UsedCount: invite.UsedCount,
		IsActive:  invite.IsActive,
	})
}

// handleInviteDeactivate disables an invite code (admin only). Path:
// /api/invites/{id}/deactivate.
func (rt *Router) handleInviteDeactivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/invites/", "/deactivate")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid invite ID")
		return
	}
	if err := rt.store.SetInviteActive(r.Context(), id, false); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to deactivate invite"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deactivated": true})
}

type artistResponse struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Slug        string `json:"slug"`
	IsPro       bool   `json:"isPro"`
	TrialActive bool   `json:"trialActive"`
	IsApproved  bool   `json:"isApproved"`
	IsListed    bool   `json:"isListed"`
}

func artistView(a *store.Artist) artistResponse {
	return artistResponse{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Slug:        a.Slug,
		IsPro:       a.IsPro,
		TrialActive: a.TrialActive,
		IsApproved:  a.IsApproved,
		IsListed:    a.IsListed,
	}
}

// handleArtistsDirectory serves the public directory of listed artists.
func (rt *Router) handleArtistsDirectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	artists, err := rt.store.ListListedArtists(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to load directory"))
		return
	}
	out := make([]artistResponse, 0, len(artists))
	for _, a := range artists {
		out = append(out, artistView(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleArtistModeration approves or declines an artist profile (admin only).
// Paths: /api/artists/{id}/approve and /api/artists/{id}/decline. Approving
// an artist whose owner already has access lists the profile immediately.
func (rt *Router) handleArtistModeration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var id int64
	var approve bool
	if v, ok := pathID(r.URL.Path, "/api/artists/", "/approve"); ok {
		id, approve = v, true
	} else if v, ok := pathID(r.URL.Path, "/api/artists/", "/decline"); ok {
		id, approve = v, false
	} else {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid artist ID")
		return
	}

	artist, err := rt.store.SetArtistApproval(r.Context(), id, approve)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to update artist"))
		return
	}
	if artist == nil {
		writeError(w, http.StatusNotFound, "not_found", "Artist not found")
		return
	}

	// Approval is the second half of the listing condition; re-run the
	// owner's sync so an already entitled owner goes live now.
	if approve && artist.UserID != nil {
		if _, err := rt.reconciler.Reconcile(r.Context(), *artist.UserID); err != nil {
			log.Error().Err(err).Int64("artist_id", id).Msg("post-approval reconcile failed")
		} else if artist, err = rt.store.GetArtist(r.Context(), id); err != nil || artist == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to reload artist"))
			return
		}
	}

	writeJSON(w, http.StatusOK, artistView(artist))
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// handleProCheckout creates a Pro subscription checkout session for the caller.
func (rt *Router) handleProCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	u, err := rt.store.GetUser(r.Context(), userID)
	if err != nil || u == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", sanitizeError(err, "Failed to load user"))
		return
	}
	if access.ProActive(u, time.Now().UTC()) {
		writeError(w, http.StatusConflict, "already_pro", "You already have an active subscription")
		return
	}

	url, err := rt.stripe.CreateProCheckout(r.Context(), u)
	if err != nil {
		writeError(w, http.StatusBadGateway, "checkout_failed", sanitizeError(err, "Unable to create checkout session"))
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

type tipSessionRequest struct {
	AmountCents int64  `json:"amountCents"`
	Purpose     string `json:"purpose"`
}

// handleTipSession creates a one-time tip checkout session. Public, rate
// limited.
func (rt *Router) handleTipSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	var req tipSessionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	url, err := rt.stripe.CreateTipCheckout(r.Context(), req.AmountCents, req.Purpose)
	if err != nil {
		writeError(w, http.StatusBadRequest, "tip_failed", sanitizeError(err, "Unable to create tip session"))
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := rt.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "Database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// pathID extracts the numeric ID between prefix and suffix in a URL path.
func pathID(path, prefix, suffix string) (int64, bool) {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if raw == "" || strings.Contains(raw, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
