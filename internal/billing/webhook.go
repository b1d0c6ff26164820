package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/rpoole444/cosLivewire-BE/internal/access"
	"github.com/rpoole444/cosLivewire-BE/internal/email"
	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// subscriptionFetchTimeout bounds the provider API call made while a webhook
// delivery is open. It must stay well under the server's write timeout so a
// hung call surfaces as a retryable 5xx instead of a dropped connection.
const subscriptionFetchTimeout = 10 * time.Second

// SubscriptionFetcher loads the full subscription object for an ID referenced
// by a checkout session. The live implementation calls the provider API; tests
// substitute a fake.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, id string) (access.Snapshot, error)
}

// WebhookHandler handles incoming Stripe webhook events.
//
// Signature verification over the raw body is the authentication mechanism
// for this endpoint. After a verified signature the handler always answers
// 2xx unless the failure is a transient infrastructure fault worth a provider
// redelivery: business anomalies (unknown user, unparseable linkage) are
// logged and acknowledged so they cannot cause redelivery storms.
type WebhookHandler struct {
	secret       string
	store        *store.Store
	reconciler   *Reconciler
	subs         SubscriptionFetcher
	notifier     *email.Notifier // optional
	now          func() time.Time
	fetchTimeout time.Duration
}

// NewWebhookHandler creates a Stripe webhook HTTP handler.
func NewWebhookHandler(secret string, s *store.Store, r *Reconciler, subs SubscriptionFetcher, notifier *email.Notifier) *WebhookHandler {
	return &WebhookHandler{
		secret:       secret,
		store:        s,
		reconciler:   r,
		subs:         subs,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
		fetchTimeout: subscriptionFetchTimeout,
	}
}

type webhookErrorResponse struct {
	Error string `json:"error"`
}

type webhookReceivedResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status,omitempty"`
}

// ServeHTTP verifies the Stripe signature, fences duplicate deliveries, and
// dispatches the event.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, webhookErrorResponse{Error: "method not allowed"})
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		status = http.StatusServiceUnavailable
		writeJSON(w, status, webhookErrorResponse{Error: "webhook secret not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "failed to read request body"})
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "invalid Stripe signature"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "invalid Stripe signature"})
		return
	}
	eventType = string(event.Type)

	reg, err := h.store.RegisterWebhookEvent(r.Context(), event.ID, eventType)
	if err != nil {
		status = http.StatusInternalServerError
		writeJSON(w, status, webhookErrorResponse{Error: "failed to register event"})
		return
	}
	switch reg {
	case store.WebhookEventDuplicate:
		writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true, Status: "duplicate"})
		return
	case store.WebhookEventInFlight:
		log.Warn().
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("Stripe webhook event already in-flight; asking provider to retry")
		status = http.StatusConflict
		writeJSON(w, status, webhookErrorResponse{Error: "event is being processed; retry later"})
		return
	}

	if err := h.handleEvent(r.Context(), &event); err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("Stripe webhook processing failed")
		_ = h.store.RecordWebhookEventError(r.Context(), event.ID, err.Error())
		status = http.StatusInternalServerError
		writeJSON(w, status, webhookErrorResponse{Error: "processing failed"})
		return
	}

	if err := h.store.MarkWebhookEventProcessed(r.Context(), event.ID); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("failed to mark webhook event processed")
	}
	writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true, Status: "processed"})
}

// handleEvent dispatches a verified event. A nil return acknowledges the
// event; an error return means a transient fault the provider should retry.
func (h *WebhookHandler) handleEvent(ctx context.Context, event *stripelib.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session checkoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("decode checkout.session: %w", err)
		}
		if strings.EqualFold(session.Mode, "payment") {
			return h.handleTipCheckout(ctx, session)
		}
		return h.handleSubscriptionCheckout(ctx, session)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub subscriptionObject
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return h.handleSubscriptionEvent(ctx, string(event.Type), sub)

	default:
		log.Info().
			Str("type", string(event.Type)).
			Str("event_id", event.ID).
			Msg("Stripe webhook ignored (unhandled type)")
		return nil
	}
}

// handleTipCheckout persists a ledger row for a one-time tip. Tips never
// touch access state.
func (h *WebhookHandler) handleTipCheckout(ctx context.Context, session checkoutSession) error {
	sessionID := strings.TrimSpace(session.ID)
	if sessionID == "" {
		log.Warn().Msg("tip checkout session missing id; ignoring")
		return nil
	}

	source := strings.TrimSpace(session.Metadata["purpose"])
	if source == "" {
		source = "platform"
	}

	tip := &store.Tip{
		ID:                    ulid.MustNew(ulid.Timestamp(h.now()), ulid.DefaultEntropy()).String(),
		TipperEmail:           session.email(),
		AmountCents:           session.AmountTotal,
		StripeSessionID:       sessionID,
		StripePaymentIntentID: strings.TrimSpace(session.PaymentIntent),
		Source:                source,
	}
	inserted, err := h.store.InsertTip(ctx, tip)
	if err != nil {
		return fmt.Errorf("insert tip: %w", err)
	}
	if inserted {
		log.Info().Str("session_id", sessionID).Int64("amount_cents", tip.AmountCents).Msg("tip recorded")
	}
	return nil
}

// handleSubscriptionCheckout resolves the purchasing user, backfills the
// billing customer reference, and applies the subscription state.
//
// Resolution order: server-owned metadata user id, then stored customer
// reference, then payer email as a last resort. An unresolvable session is
// acknowledged: the provider cannot usefully retry it.
func (h *WebhookHandler) handleSubscriptionCheckout(ctx context.Context, session checkoutSession) error {
	user, resolvedBy, err := h.resolveCheckoutUser(ctx, session)
	if err != nil {
		return err
	}
	if user == nil {
		log.Warn().
			Str("session_id", strings.TrimSpace(session.ID)).
			Str("customer_id", strings.TrimSpace(session.Customer)).
			Str("email", session.email()).
			Msg("Stripe checkout.session.completed: no matching user")
		return nil
	}

	customerID := strings.TrimSpace(session.Customer)
	if customerID != "" && user.StripeCustomerID == "" {
		if err := h.store.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
			return fmt.Errorf("backfill customer id: %w", err)
		}
	}

	snap, err := h.checkoutSnapshot(ctx, session)
	if err != nil {
		return err
	}

	granted, err := h.reconciler.ApplySubscription(ctx, user.ID, snap)
	if err != nil {
		return fmt.Errorf("apply subscription: %w", err)
	}

	log.Info().
		Int64("user_id", user.ID).
		Str("resolved_by", resolvedBy).
		Str("customer_id", customerID).
		Bool("access_granted", granted).
		Msg("Stripe checkout.session.completed processed")

	if granted && h.notifier != nil {
		if err := h.notifier.ProActivated(ctx, user.Email, user.DisplayName); err != nil {
			log.Warn().Err(err).Str("email", user.Email).Msg("failed to send pro activation email")
		}
	}
	return nil
}

func (h *WebhookHandler) resolveCheckoutUser(ctx context.Context, session checkoutSession) (*store.User, string, error) {
	if raw := strings.TrimSpace(session.Metadata["user_id"]); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Warn().Str("user_id", raw).Msg("checkout metadata user_id is not numeric")
		} else {
			u, err := h.store.GetUser(ctx, id)
			if err != nil {
				return nil, "", fmt.Errorf("lookup user by metadata id: %w", err)
			}
			if u != nil {
				return u, "metadata", nil
			}
		}
	}

	if customerID := strings.TrimSpace(session.Customer); customerID != "" {
		u, err := h.store.GetUserByStripeCustomerID(ctx, customerID)
		if err != nil {
			return nil, "", fmt.Errorf("lookup user by customer id: %w", err)
		}
		if u != nil {
			return u, "customer_id", nil
		}
	}

	if addr := session.email(); addr != "" {
		u, err := h.store.GetUserByEmail(ctx, addr)
		if err != nil {
			return nil, "", fmt.Errorf("lookup user by email: %w", err)
		}
		if u != nil {
			return u, "email", nil
		}
	}

	return nil, "", nil
}

// checkoutSnapshot fetches the subscription referenced by the session. When
// the session carries no subscription ID (the provider occasionally omits it
// on older API versions), the session itself is taken as evidence of an
// active subscription.
func (h *WebhookHandler) checkoutSnapshot(ctx context.Context, session checkoutSession) (access.Snapshot, error) {
	subID := strings.TrimSpace(session.Subscription)
	if subID == "" {
		return access.Snapshot{
			CustomerID: strings.TrimSpace(session.Customer),
			Status:     access.StatusActive,
		}, nil
	}
	if h.subs == nil {
		return access.Snapshot{}, fmt.Errorf("subscription fetcher not configured")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, h.fetchTimeout)
	defer cancel()
	snap, err := h.subs.FetchSubscription(fetchCtx, subID)
	if err != nil {
		return access.Snapshot{}, fmt.Errorf("fetch subscription %s: %w", subID, err)
	}
	return snap, nil
}

// handleSubscriptionEvent applies subscription lifecycle changes. These
// events are matched strictly by stored customer reference; they do not carry
// the payer's email reliably, so there is no email fallback.
func (h *WebhookHandler) handleSubscriptionEvent(ctx context.Context, eventType string, sub subscriptionObject) error {
	customerID := strings.TrimSpace(sub.Customer)
	if customerID == "" {
		log.Warn().Str("type", eventType).Str("subscription_id", sub.ID).Msg("subscription event missing customer; ignoring")
		return nil
	}

	user, err := h.store.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return fmt.Errorf("lookup user by customer id: %w", err)
	}
	if user == nil {
		log.Warn().
			Str("type", eventType).
			Str("customer_id", customerID).
			Str("subscription_id", sub.ID).
			Msg("subscription event: no user for customer")
		return nil
	}

	granted, err := h.reconciler.ApplySubscription(ctx, user.ID, sub.snapshot())
	if err != nil {
		return fmt.Errorf("apply subscription: %w", err)
	}

	log.Info().
		Str("type", eventType).
		Int64("user_id", user.ID).
		Str("subscription_id", sub.ID).
		Str("subscription_status", sub.Status).
		Bool("access_granted", granted).
		Msg("subscription event processed")
	return nil
}

// checkoutSession is a minimal representation of a Stripe checkout.session
// payload.
type checkoutSession struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

func (s *checkoutSession) email() string {
	if addr := strings.ToLower(strings.TrimSpace(s.CustomerEmail)); addr != "" {
		return addr
	}
	return strings.ToLower(strings.TrimSpace(s.CustomerDetails.Email))
}

// subscriptionObject is a minimal representation of a Stripe subscription
// payload.
type subscriptionObject struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CancelAt          int64  `json:"cancel_at"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CanceledAt        int64  `json:"canceled_at"`
}

func (s *subscriptionObject) snapshot() access.Snapshot {
	return access.Snapshot{
		SubscriptionID:    strings.TrimSpace(s.ID),
		CustomerID:        strings.TrimSpace(s.Customer),
		Status:            access.ParseSubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CancelAt:          unixTime(s.CancelAt),
		CurrentPeriodEnd:  unixTime(s.CurrentPeriodEnd),
		CanceledAt:        unixTime(s.CanceledAt),
	}
}

func unixTime(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("billing: encode webhook response")
	}
}
