package api

import (
	"net/http"

	"github.com/vibecoding/magazine-backend/api/apicommon"
	"github.com/vibecoding/magazine-backend/errors"
	"go.vocdoni.io/dvote/log"
)

// createPaymentHandler charges the billing key of the request and schedules
// the next monthly charge.
//
//	POST /api/payments
//	{"billingKey":"...","orderName":"...","amount":9900,"customer":{"id":"..."}}
func (a *API) createPaymentHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	resp, err := a.billing.CreatePayment(r.Context(), body)
	writeFlowResult(w, resp, err)
}

// cancelPaymentHandler cancels the payment identified by the transaction key.
//
//	POST /api/payments/cancel
//	{"transactionKey":"..."}
func (a *API) cancelPaymentHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	resp, err := a.billing.CancelPayment(r.Context(), body)
	writeFlowResult(w, resp, err)
}

// portoneWebhookHandler applies a PortOne payment notification.
//
//	POST /api/portone
//	{"payment_id":"...","status":"Paid"}
func (a *API) portoneWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	resp, err := a.billing.HandleNotification(r.Context(), body)
	writeFlowResult(w, resp, err)
}

// stripeWebhookHandler verifies a Stripe event and applies the payment
// notification it carries. Events unrelated to the subscriptions are
// acknowledged so Stripe does not retry them.
func (a *API) stripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	notification, err := a.stripeWebhooks.HandleWebhookEvent(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Warnw("rejected stripe webhook", "error", err)
		errors.ErrInvalidWebhook.WithErr(err).Write(w)
		return
	}
	if notification == nil {
		apicommon.HTTPWriteJSON(w, map[string]bool{"received": true})
		return
	}
	resp, apiErr := a.billing.ProcessNotification(r.Context(), *notification, nil)
	writeFlowResult(w, resp, apiErr)
}
