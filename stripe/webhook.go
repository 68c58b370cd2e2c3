package stripe

import (
	"context"
	"encoding/json"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v81"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
	"github.com/vibecoding/magazine-backend/billing"
	"go.vocdoni.io/dvote/log"
)

// handled event types
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventChargeRefunded         = "charge.refunded"
)

// ValidateWebhookEvent validates the signature of the payload and parses the
// event.
func (c *Client) ValidateWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error) {
	event, err := stripewebhook.ConstructEventWithOptions(payload, signatureHeader, c.config.WebhookSecret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, NewStripeError(ErrWebhookValidation.Code, ErrWebhookValidation.Message, err)
	}
	return &event, nil
}

// HandleWebhookEvent validates the payload and translates it into a payment
// notification. Events that do not concern a payment made by the service
// return a nil notification and no error.
func (c *Client) HandleWebhookEvent(ctx context.Context, payload []byte, signatureHeader string,
) (*billing.Notification, error) {
	event, err := c.ValidateWebhookEvent(payload, signatureHeader)
	if err != nil {
		return nil, err
	}
	return c.notification(ctx, event)
}

func (c *Client) notification(ctx context.Context, event *stripeapi.Event) (*billing.Notification, error) {
	if event.Data == nil {
		return nil, NewStripeError(ErrInvalidEvent.Code, "event without data", nil)
	}
	switch string(event.Type) {
	case EventPaymentIntentSucceeded:
		var pi stripeapi.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, NewStripeError(ErrInvalidEvent.Code, "cannot decode payment intent", err)
		}
		return paymentNotification(event, pi.Metadata, billing.StatusPaid), nil
	case EventChargeRefunded:
		var charge stripeapi.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, NewStripeError(ErrInvalidEvent.Code, "cannot decode charge", err)
		}
		// partial refunds keep the subscription
		if !charge.Refunded || charge.PaymentIntent == nil {
			log.Debugw("stripe webhook: ignoring charge", "event", event.ID, "charge", charge.ID)
			return nil, nil
		}
		pi, err := c.paymentIntent(ctx, charge.PaymentIntent.ID)
		if err != nil {
			return nil, fmt.Errorf("cannot fetch payment intent %s: %w", charge.PaymentIntent.ID, err)
		}
		return paymentNotification(event, pi.Metadata, billing.StatusCancelled), nil
	default:
		log.Debugf("stripe webhook: received unhandled event type %s (id %s)", event.Type, event.ID)
		return nil, nil
	}
}

func paymentNotification(event *stripeapi.Event, metadata map[string]string, status string) *billing.Notification {
	paymentID := metadata[metadataPaymentID]
	if paymentID == "" {
		log.Debugw("stripe webhook: payment not created by the service", "event", event.ID)
		return nil
	}
	return &billing.Notification{PaymentID: paymentID, Status: status}
}
