package api

const (
	// GET /ping to check the service is up
	pingEndpoint = "/ping"
	// GET /metrics to scrape the prometheus metrics
	metricsEndpoint = "/metrics"

	// payment routes

	// POST /api/payments to charge a billing key and schedule the next charge
	paymentsEndpoint = "/api/payments"
	// POST /api/payments/cancel to cancel a payment
	paymentsCancelEndpoint = "/api/payments/cancel"
	// POST /api/portone to receive the PortOne payment notifications
	portoneWebhookEndpoint = "/api/portone"
	// POST /stripe/webhook to receive the Stripe events
	stripeWebhookEndpoint = "/stripe/webhook"

	// magazine routes

	// GET /magazines to list the newest magazines, POST to create one
	magazinesEndpoint = "/magazines"
	// GET /magazines/{id} to get a magazine
	magazineEndpoint = "/magazines/{id}"

	// subscription routes

	// GET /subscriptions/me to get the subscription status of the user
	subscriptionsMeEndpoint = "/subscriptions/me"
)
