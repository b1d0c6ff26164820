package billing

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	stripesub "github.com/stripe/stripe-go/v82/subscription"

	"github.com/rpoole444/cosLivewire-BE/internal/access"
	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

// StripeClient wraps the Stripe API calls the billing flows need. The raw
// API functions are injected so tests can run without network access.
type StripeClient struct {
	apiKey        string
	proPriceID    string
	publicSiteURL string

	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	getSubscription       func(id string, params *stripelib.SubscriptionParams) (*stripelib.Subscription, error)
}

// NewStripeClient creates a StripeClient bound to the live Stripe API.
func NewStripeClient(apiKey, proPriceID, publicSiteURL string) *StripeClient {
	stripelib.Key = strings.TrimSpace(apiKey)
	return &StripeClient{
		apiKey:                strings.TrimSpace(apiKey),
		proPriceID:            strings.TrimSpace(proPriceID),
		publicSiteURL:         strings.TrimRight(strings.TrimSpace(publicSiteURL), "/"),
		createCheckoutSession: stripesession.New,
		getSubscription:       stripesub.Get,
	}
}

// Configured reports whether live API calls can be made.
func (c *StripeClient) Configured() bool {
	return c.apiKey != ""
}

// FetchSubscription loads a subscription and reduces it to the snapshot the
// access rules consume.
func (c *StripeClient) FetchSubscription(ctx context.Context, id string) (access.Snapshot, error) {
	if !c.Configured() {
		return access.Snapshot{}, fmt.Errorf("stripe api key not configured")
	}
	sub, err := c.getSubscription(id, &stripelib.SubscriptionParams{
		Params: stripelib.Params{Context: ctx},
	})
	if err != nil {
		return access.Snapshot{}, fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		return access.Snapshot{}, fmt.Errorf("subscription %s not found", id)
	}

	snap := access.Snapshot{
		SubscriptionID:    sub.ID,
		Status:            access.ParseSubscriptionStatus(string(sub.Status)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          unixTime(sub.CancelAt),
		CanceledAt:        unixTime(sub.CanceledAt),
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	// Period boundaries live on the subscription items; take the latest.
	if sub.Items != nil {
		var periodEnd int64
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > periodEnd {
				periodEnd = item.CurrentPeriodEnd
			}
		}
		snap.CurrentPeriodEnd = unixTime(periodEnd)
	}
	return snap, nil
}

// CreateProCheckout creates a subscription-mode checkout session for the Pro
// plan. The user's ID rides in the session metadata so the completion webhook
// can resolve the purchaser without trusting the payer email.
func (c *StripeClient) CreateProCheckout(ctx context.Context, u *store.User) (string, error) {
	if !c.Configured() || c.proPriceID == "" {
		return "", fmt.Errorf("stripe checkout not configured")
	}

	params := &stripelib.CheckoutSessionParams{
		Params:        stripelib.Params{Context: ctx},
		Mode:          stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		SuccessURL:    stripelib.String(c.siteURL("/upgrade/success")),
		CancelURL:     stripelib.String(c.siteURL("/upgrade/cancelled")),
		CustomerEmail: stripelib.String(u.Email),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(c.proPriceID),
				Quantity: stripelib.Int64(1),
			},
		},
		Metadata: map[string]string{
			"user_id": strconv.FormatInt(u.ID, 10),
		},
	}
	if u.StripeCustomerID != "" {
		params.Customer = stripelib.String(u.StripeCustomerID)
		params.CustomerEmail = nil
	}

	session, err := c.createCheckoutSession(params)
	if err != nil {
		log.Error().Err(err).Int64("user_id", u.ID).Msg("pro checkout session creation failed")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		log.Error().Int64("user_id", u.ID).Msg("pro checkout session has no redirect url")
		return "", fmt.Errorf("checkout session has no redirect url")
	}
	return session.URL, nil
}

// CreateTipCheckout creates a one-time payment session for a tip. Tips use
// ad hoc price data rather than a catalog price.
func (c *StripeClient) CreateTipCheckout(ctx context.Context, amountCents int64, purpose string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("stripe checkout not configured")
	}
	if amountCents < 100 {
		return "", fmt.Errorf("tip amount must be at least 100 cents")
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		purpose = "platform"
	}

	params := &stripelib.CheckoutSessionParams{
		Params:     stripelib.Params{Context: ctx},
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModePayment)),
		SuccessURL: stripelib.String(c.siteURL("/tip/thanks")),
		CancelURL:  stripelib.String(c.siteURL("/tip/cancelled")),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Quantity: stripelib.Int64(1),
				PriceData: &stripelib.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripelib.String(string(stripelib.CurrencyUSD)),
					UnitAmount: stripelib.Int64(amountCents),
					ProductData: &stripelib.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripelib.String("Tip"),
					},
				},
			},
		},
		Metadata: map[string]string{
			"purpose": purpose,
		},
	}

	session, err := c.createCheckoutSession(params)
	if err != nil {
		log.Error().Err(err).Int64("amount_cents", amountCents).Msg("tip checkout session creation failed")
		return "", fmt.Errorf("create tip session: %w", err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		log.Error().Int64("amount_cents", amountCents).Msg("tip checkout session has no redirect url")
		return "", fmt.Errorf("tip session has no redirect url")
	}
	return session.URL, nil
}

func (c *StripeClient) siteURL(path string) string {
	if c.publicSiteURL == "" {
		return path
	}
	u, err := url.JoinPath(c.publicSiteURL, path)
	if err != nil {
		return c.publicSiteURL + path
	}
	return u
}
