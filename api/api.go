// Package api provides the HTTP API of the magazine backend: the payment
// flows, the gateway webhooks, the magazines and the subscription status of
// the authenticated user.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/vibecoding/magazine-backend/billing"
	"github.com/vibecoding/magazine-backend/db"
	"github.com/vibecoding/magazine-backend/metrics"
	"github.com/vibecoding/magazine-backend/subscriptions"
	"github.com/vibecoding/magazine-backend/validator"
	"go.vocdoni.io/dvote/log"
)

// WebhookHandler translates a signed provider webhook into a payment
// notification. A nil notification means the event is acknowledged and
// ignored.
type WebhookHandler interface {
	HandleWebhookEvent(ctx context.Context, payload []byte, signatureHeader string) (*billing.Notification, error)
}

type Config struct {
	Host string
	Port int
	// Secret verifies the HS256 bearer tokens of the protected routes.
	Secret string
	DB     *db.MongoStorage
	// Billing runs the payment flows.
	Billing *billing.Service
	// Subscriptions derives the subscription status of the users.
	Subscriptions *subscriptions.Subscriptions
	// StripeWebhooks is set when Stripe is the payment gateway.
	StripeWebhooks WebhookHandler
	Metrics        *metrics.Metrics
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	db             *db.MongoStorage
	auth           *jwtauth.JWTAuth
	host           string
	port           int
	router         *chi.Mux
	validator      *validator.Validator
	billing        *billing.Service
	subscriptions  *subscriptions.Subscriptions
	stripeWebhooks WebhookHandler
	metrics        *metrics.Metrics
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *Config) *API {
	if conf == nil {
		return nil
	}
	return &API{
		db:             conf.DB,
		auth:           jwtauth.New("HS256", []byte(conf.Secret), nil),
		host:           conf.Host,
		port:           conf.Port,
		validator:      validator.New(),
		billing:        conf.Billing,
		subscriptions:  conf.Subscriptions,
		stripeWebhooks: conf.StripeWebhooks,
		metrics:        conf.Metrics,
	}
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start() {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", a.host, a.port), a.initRouter()); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
}

// Router returns the HTTP handler with every route registered.
func (a *API) Router() http.Handler {
	if a.router == nil {
		return a.initRouter()
	}
	return a.router
}

// router creates the router with all the routes and middleware.
func (a *API) initRouter() http.Handler {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	r.Use(middleware.Timeout(45 * time.Second))
	r.Use(a.metrics.Middleware)

	// protected routes
	r.Group(func(r chi.Router) {
		// seek, verify and validate JWT tokens
		r.Use(jwtauth.Verifier(a.auth))
		// handle valid JWT tokens
		r.Use(a.authenticator)
		// create a magazine
		log.Infow("new route", "method", "POST", "path", magazinesEndpoint)
		r.With(
			a.validator.AddModelMiddleware(MagazineRequest{}),
			a.validator.InputValidator,
		).Post(magazinesEndpoint, a.createMagazineHandler)
		// subscription status of the user
		log.Infow("new route", "method", "GET", "path", subscriptionsMeEndpoint)
		r.Get(subscriptionsMeEndpoint, a.subscriptionStatusHandler)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get(pingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Warnw("failed to write ping response", "error", err)
			}
		})
		// charge a billing key
		log.Infow("new route", "method", "POST", "path", paymentsEndpoint)
		r.Post(paymentsEndpoint, a.createPaymentHandler)
		// cancel a payment
		log.Infow("new route", "method", "POST", "path", paymentsCancelEndpoint)
		r.Post(paymentsCancelEndpoint, a.cancelPaymentHandler)
		// PortOne payment notifications
		log.Infow("new route", "method", "POST", "path", portoneWebhookEndpoint)
		r.Post(portoneWebhookEndpoint, a.portoneWebhookHandler)
		// Stripe payment notifications
		if a.stripeWebhooks != nil {
			log.Infow("new route", "method", "POST", "path", stripeWebhookEndpoint)
			r.Post(stripeWebhookEndpoint, a.stripeWebhookHandler)
		}
		// list magazines
		log.Infow("new route", "method", "GET", "path", magazinesEndpoint)
		r.Get(magazinesEndpoint, a.magazinesHandler)
		// get a magazine
		log.Infow("new route", "method", "GET", "path", magazineEndpoint)
		r.Get(magazineEndpoint, a.magazineHandler)
		// prometheus metrics
		log.Infow("new route", "method", "GET", "path", metricsEndpoint)
		r.Method(http.MethodGet, metricsEndpoint, a.metrics.Handler())
	})
	a.router = r
	return r
}
