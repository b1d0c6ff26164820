package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rpoole444/cosLivewire-BE/internal/billing"
	"github.com/rpoole444/cosLivewire-BE/internal/config"
	"github.com/rpoole444/cosLivewire-BE/internal/invites"
	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

// Router wires the HTTP surface: auth, access, invites, moderation, billing,
// and the Stripe webhook endpoint.
type Router struct {
	mux        *http.ServeMux
	cfg        *config.Config
	store      *store.Store
	reconciler *billing.Reconciler
	invites    *invites.Service
	stripe     *billing.StripeClient
	webhook    http.Handler

	authLimiter *RateLimiter
	apiLimiter  *RateLimiter
}

// NewRouter builds the router and registers all routes.
func NewRouter(cfg *config.Config, s *store.Store, reconciler *billing.Reconciler, inviteSvc *invites.Service, stripeClient *billing.StripeClient, webhook http.Handler) *Router {
	rt := &Router{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		store:      s,
		reconciler: reconciler,
		invites:    inviteSvc,
		stripe:     stripeClient,
		webhook:    webhook,

		// Auth endpoints: 10 attempts per minute per IP.
		authLimiter: NewRateLimiter(10, 1*time.Minute),
		// General API: 120 requests per minute per IP.
		apiLimiter: NewRateLimiter(120, 1*time.Minute),
	}
	rt.routes()
	return rt
}

func (rt *Router) routes() {
	// Webhook first: no auth, no rate limit. Signature verification is the
	// gate, and the provider's retry behavior must not hit a limiter.
	rt.mux.Handle("/api/stripe/webhook", rt.webhook)

	rt.mux.HandleFunc("/api/auth/register", rt.authLimiter.Middleware(rt.handleRegister))
	rt.mux.HandleFunc("/api/auth/login", rt.authLimiter.Middleware(rt.handleLogin))

	rt.mux.HandleFunc("/api/me/access", rt.apiLimiter.Middleware(rt.requireUser(rt.handleMeAccess)))
	rt.mux.HandleFunc("/api/trial/start", rt.apiLimiter.Middleware(rt.requireUser(rt.handleTrialStart)))
	rt.mux.HandleFunc("/api/invites/claim", rt.apiLimiter.Middleware(rt.requireUser(rt.handleInviteClaim)))
	rt.mux.HandleFunc("/api/billing/checkout", rt.apiLimiter.Middleware(rt.requireUser(rt.handleProCheckout)))
	rt.mux.HandleFunc("/api/billing/tip-session", rt.apiLimiter.Middleware(rt.handleTipSession))

	rt.mux.HandleFunc("/api/artists", rt.apiLimiter.Middleware(rt.handleArtistsDirectory))
	rt.mux.HandleFunc("/api/artists/", rt.apiLimiter.Middleware(rt.requireAdmin(rt.handleArtistModeration)))

	rt.mux.HandleFunc("/api/invites", rt.apiLimiter.Middleware(rt.requireAdmin(rt.handleInviteCreate)))
	rt.mux.HandleFunc("/api/invites/", rt.apiLimiter.Middleware(rt.requireAdmin(rt.handleInviteDeactivate)))

	rt.mux.HandleFunc("/healthz", rt.handleHealth)
	rt.mux.HandleFunc("/readyz", rt.handleReady)
	rt.mux.Handle("/metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// Close releases background resources.
func (rt *Router) Close() {
	rt.authLimiter.Stop()
	rt.apiLimiter.Stop()
}
