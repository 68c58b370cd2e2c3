// Package stripe implements gateway.Gateway on top of Stripe. A billing key
// is a saved PaymentMethod id and the customer id a Stripe Customer id.
// Stripe has no one-off scheduled charges, so schedules are kept in the
// local store and executed by the scheduler worker.
package stripe

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v81"
	stripeclient "github.com/stripe/stripe-go/v81/client"
	"github.com/vibecoding/magazine-backend/db"
	"github.com/vibecoding/magazine-backend/gateway"
	"github.com/vibecoding/magazine-backend/metrics"
	"go.vocdoni.io/dvote/log"
)

// metadata key holding the payment id chosen by the service
const metadataPaymentID = "payment_id"

// operation names, used as metric labels and as error prefixes
const (
	opPay            = "stripe-pay"
	opCancel         = "stripe-cancel"
	opGet            = "stripe-get"
	opCreateSchedule = "stripe-create-schedule"
	opListSchedules  = "stripe-list-schedules"
	opDeleteSchedule = "stripe-delete-schedules"
)

var opErrorPrefix = map[string]string{
	opPay:            "Stripe 결제 요청 실패",
	opCancel:         "Stripe 결제 취소 요청 실패",
	opGet:            "Stripe 결제 조회 실패",
	opCreateSchedule: "스케줄 생성 실패",
	opListSchedules:  "예약 결제 조회 실패",
	opDeleteSchedule: "예약 결제 삭제 실패",
}

// Store keeps the scheduled charges and the PaymentIntent created for each
// payment id.
type Store interface {
	SetSchedule(schedule *db.Schedule) error
	Schedules(filter db.ScheduleFilter) ([]db.Schedule, error)
	RevokeSchedules(billingKey string, ids []string) (int64, error)
	SetGatewayPaymentID(paymentID, gatewayID string) error
	GatewayPaymentID(paymentID string) (string, error)
}

// Client is a Stripe gateway. It is safe for concurrent use.
type Client struct {
	config  *Config
	api     *stripeclient.API
	store   Store
	metrics *metrics.Metrics
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient creates a new Stripe client with the given configuration.
func NewClient(config *Config, store Store, m *metrics.Metrics) *Client {
	var backends *stripeapi.Backends
	if config.BackendURL != "" {
		backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
			URL:               stripeapi.String(config.BackendURL),
			MaxNetworkRetries: stripeapi.Int64(0),
			LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelError},
		})
		backends = &stripeapi.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	api := &stripeclient.API{}
	api.Init(config.APIKey, backends)
	return &Client{
		config:  config,
		api:     api,
		store:   store,
		metrics: m,
	}
}

// HasSecret reports whether the API key is configured.
func (c *Client) HasSecret() bool {
	return c.config.APIKey != ""
}

// Secret describes the Stripe API key.
func (*Client) Secret() gateway.SecretInfo {
	return gateway.SecretInfo{Step: "load-stripe-secret", EnvVar: "MAGAZINE_STRIPE_SECRET", Name: "Stripe"}
}

// PayWithBillingKey creates and confirms an off-session PaymentIntent. The
// payment id is both the idempotency key and the payment_id metadata, so a
// retried charge is not billed twice.
func (c *Client) PayWithBillingKey(ctx context.Context, paymentID string, p gateway.BillingKeyPayment) error {
	start := time.Now()
	params := &stripeapi.PaymentIntentParams{
		Amount:        stripeapi.Int64(p.Amount),
		Currency:      stripeapi.String(currency(p.Currency)),
		Customer:      stripeapi.String(p.CustomerID),
		PaymentMethod: stripeapi.String(p.BillingKey),
		Description:   stripeapi.String(p.OrderName),
		Confirm:       stripeapi.Bool(true),
		OffSession:    stripeapi.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata(metadataPaymentID, paymentID)
	params.SetIdempotencyKey(paymentID)

	pi, err := c.api.PaymentIntents.New(params)
	if err == nil && pi.Status != stripeapi.PaymentIntentStatusSucceeded &&
		pi.Status != stripeapi.PaymentIntentStatusProcessing {
		err = fmt.Errorf("%s: payment intent %s is %s", opErrorPrefix[opPay], pi.ID, pi.Status)
	}
	err = wrapError(opPay, err)
	c.metrics.ObserveGateway(opPay, start, err)
	if err != nil {
		return err
	}
	log.Debugw("stripe payment intent confirmed", "paymentId", paymentID, "paymentIntent", pi.ID)
	c.rememberPaymentIntent(paymentID, pi.ID)
	return nil
}

// CancelPayment refunds the PaymentIntent created for paymentID.
func (c *Client) CancelPayment(ctx context.Context, paymentID, reason string) error {
	start := time.Now()
	err := c.cancel(ctx, paymentID, reason)
	c.metrics.ObserveGateway(opCancel, start, err)
	return err
}

func (c *Client) cancel(ctx context.Context, paymentID, reason string) error {
	pi, err := c.findPaymentIntent(ctx, paymentID)
	if err != nil {
		return wrapError(opCancel, err)
	}
	params := &stripeapi.RefundParams{
		PaymentIntent: stripeapi.String(pi.ID),
		Reason:        stripeapi.String(string(stripeapi.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	params.SetIdempotencyKey("refund-" + paymentID)
	_, err = c.api.Refunds.New(params)
	return wrapError(opCancel, err)
}

// GetPayment returns the PaymentIntent created for paymentID.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	start := time.Now()
	pi, err := c.findPaymentIntent(ctx, paymentID)
	err = wrapError(opGet, err)
	c.metrics.ObserveGateway(opGet, start, err)
	if err != nil {
		return nil, err
	}
	p := &gateway.Payment{
		ID:        paymentID,
		Status:    paymentStatus(pi.Status),
		OrderName: pi.Description,
		Amount:    pi.Amount,
	}
	if pi.PaymentMethod != nil {
		p.BillingKey = pi.PaymentMethod.ID
	}
	if pi.Customer != nil {
		p.CustomerID = pi.Customer.ID
	}
	return p, nil
}

// CreateSchedule stores the charge in the local schedule store.
func (c *Client) CreateSchedule(_ context.Context, paymentID string, p gateway.BillingKeyPayment,
	timeToPay time.Time,
) error {
	start := time.Now()
	err := c.store.SetSchedule(&db.Schedule{
		PaymentID:  paymentID,
		BillingKey: p.BillingKey,
		OrderName:  p.OrderName,
		Amount:     p.Amount,
		Currency:   currency(p.Currency),
		CustomerID: p.CustomerID,
		TimeToPay:  timeToPay,
	})
	if err != nil {
		err = fmt.Errorf("%s: %w", opErrorPrefix[opCreateSchedule], err)
	}
	c.metrics.ObserveGateway(opCreateSchedule, start, err)
	return err
}

// ListSchedules returns the pending schedules of the billing key.
func (c *Client) ListSchedules(_ context.Context, filter gateway.ScheduleFilter) ([]gateway.Schedule, error) {
	start := time.Now()
	stored, err := c.store.Schedules(db.ScheduleFilter{
		BillingKey: filter.BillingKey,
		Status:     db.ScheduleStatusScheduled,
		From:       filter.From,
		Until:      filter.Until,
	})
	if err != nil {
		err = fmt.Errorf("%s: %w", opErrorPrefix[opListSchedules], err)
	}
	c.metrics.ObserveGateway(opListSchedules, start, err)
	if err != nil {
		return nil, err
	}
	out := make([]gateway.Schedule, 0, len(stored))
	for _, s := range stored {
		out = append(out, gateway.Schedule{
			ID:        s.ID,
			PaymentID: s.PaymentID,
			Status:    string(s.Status),
			TimeToPay: s.TimeToPay,
		})
	}
	return out, nil
}

// DeleteSchedules revokes the schedules so the scheduler skips them.
func (c *Client) DeleteSchedules(_ context.Context, billingKey string, scheduleIDs []string) error {
	start := time.Now()
	n, err := c.store.RevokeSchedules(billingKey, scheduleIDs)
	if err == nil && n == 0 {
		err = fmt.Errorf("no pending schedule matched")
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", opErrorPrefix[opDeleteSchedule], err)
	}
	c.metrics.ObserveGateway(opDeleteSchedule, start, err)
	return err
}

// rememberPaymentIntent records the PaymentIntent of the payment. A failure
// is only logged, findPaymentIntent falls back to the search API.
func (c *Client) rememberPaymentIntent(paymentID, intentID string) {
	if err := c.store.SetGatewayPaymentID(paymentID, intentID); err != nil {
		log.Warnw("could not record stripe payment intent",
			"paymentId", paymentID, "paymentIntent", intentID, "error", err)
	}
}

// findPaymentIntent returns the PaymentIntent created for paymentID. The
// recorded intent id is fetched directly. The search API is only used for
// payments without a record, since its index lags behind new intents.
func (c *Client) findPaymentIntent(ctx context.Context, paymentID string) (*stripeapi.PaymentIntent, error) {
	intentID, err := c.store.GatewayPaymentID(paymentID)
	switch {
	case err == nil:
		return c.paymentIntent(ctx, intentID)
	case !stderrors.Is(err, db.ErrNotFound):
		log.Warnw("could not read stripe payment intent", "paymentId", paymentID, "error", err)
	}
	pi, err := c.searchPaymentIntent(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	c.rememberPaymentIntent(paymentID, pi.ID)
	return pi, nil
}

// searchPaymentIntent searches the PaymentIntent tagged with paymentID.
func (c *Client) searchPaymentIntent(ctx context.Context, paymentID string) (*stripeapi.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentSearchParams{
		SearchParams: stripeapi.SearchParams{
			Query:   fmt.Sprintf("metadata['%s']:'%s'", metadataPaymentID, escapeQuery(paymentID)),
			Limit:   stripeapi.Int64(1),
			Context: ctx,
		},
	}
	results := c.api.PaymentIntents.Search(params)
	if !results.Next() {
		if err := results.Err(); err != nil {
			return nil, err
		}
		return nil, NewStripeError(ErrPaymentNotFound.Code,
			fmt.Sprintf("payment intent for payment %s not found", paymentID), nil)
	}
	return results.PaymentIntent(), nil
}

// paymentIntent fetches a PaymentIntent by its Stripe id.
func (c *Client) paymentIntent(ctx context.Context, id string) (*stripeapi.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	return c.api.PaymentIntents.Get(id, params)
}

// wrapError converts Stripe API errors into gateway errors so the billing
// flows report them like any other gateway rejection.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *stripeapi.Error
	if stderrors.As(err, &apiErr) {
		status := apiErr.HTTPStatusCode
		if status == 0 {
			status = 502
		}
		return &gateway.Error{
			Op:         opErrorPrefix[op],
			StatusCode: status,
			Status:     apiErr.Msg,
			Body:       []byte(apiErr.Error()),
		}
	}
	if stderrors.Is(err, ErrPaymentNotFound) {
		return &gateway.Error{Op: opErrorPrefix[op], StatusCode: 404, Status: err.Error()}
	}
	if strings.HasPrefix(err.Error(), opErrorPrefix[op]) {
		return err
	}
	return fmt.Errorf("%s: %w", opErrorPrefix[op], err)
}

func currency(c string) string {
	if c == "" {
		return DefaultCurrency
	}
	return strings.ToLower(c)
}

// paymentStatus maps a PaymentIntent status to the gateway vocabulary.
func paymentStatus(s stripeapi.PaymentIntentStatus) string {
	switch s {
	case stripeapi.PaymentIntentStatusSucceeded:
		return "PAID"
	case stripeapi.PaymentIntentStatusCanceled:
		return "CANCELLED"
	default:
		return strings.ToUpper(string(s))
	}
}

// escapeQuery escapes the quotes of a search query value.
func escapeQuery(v string) string {
	return strings.ReplaceAll(v, "'", `\'`)
}
