// Package gateway defines the payment gateway operations used by the billing
// flows, independent of the provider that implements them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCurrency is used when a payment does not set one.
const DefaultCurrency = "KRW"

// DefaultCancelReason is sent when the caller does not provide a reason.
const DefaultCancelReason = "취소 사유 없음"

// DefaultSecretStep is the checklist step recorded for gateways that do not
// report their secret.
const DefaultSecretStep = "load-gateway-secret"

// SecretInfo names the API secret of a gateway in the flow checklists.
type SecretInfo struct {
	// Step is the checklist step that loads the secret.
	Step string
	// EnvVar is the variable reported when the secret is missing.
	EnvVar string
	// Name is the display name of the gateway.
	Name string
}

// ErrUnavailable is returned when the gateway is not accepting requests,
// for example when its circuit breaker is open.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Gateway is implemented by every payment provider.
type Gateway interface {
	// PayWithBillingKey charges the saved card identified by the billing key.
	PayWithBillingKey(ctx context.Context, paymentID string, p BillingKeyPayment) error
	// CancelPayment cancels (refunds) a payment.
	CancelPayment(ctx context.Context, paymentID, reason string) error
	// GetPayment returns the payment detail known by the gateway.
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	// CreateSchedule schedules a billing-key charge at timeToPay under paymentID.
	CreateSchedule(ctx context.Context, paymentID string, p BillingKeyPayment, timeToPay time.Time) error
	// ListSchedules returns the schedules of a billing key in a time window.
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)
	// DeleteSchedules revokes the given schedules of a billing key.
	DeleteSchedules(ctx context.Context, billingKey string, scheduleIDs []string) error
}

// BillingKeyPayment describes a charge against a billing key.
type BillingKeyPayment struct {
	BillingKey string
	OrderName  string
	Amount     int64
	Currency   string
	CustomerID string
}

// CurrencyOrDefault returns the payment currency or DefaultCurrency.
func (p BillingKeyPayment) CurrencyOrDefault() string {
	if p.Currency == "" {
		return DefaultCurrency
	}
	return p.Currency
}

// Payment is the payment detail returned by the gateway. Fields may be empty
// when the gateway does not report them.
type Payment struct {
	ID         string
	Status     string
	BillingKey string
	OrderName  string
	Amount     int64
	CustomerID string
}

// BillingKeyPayment builds the charge needed to bill the same customer again.
func (p *Payment) BillingKeyPayment() BillingKeyPayment {
	return BillingKeyPayment{
		BillingKey: p.BillingKey,
		OrderName:  p.OrderName,
		Amount:     p.Amount,
		Currency:   DefaultCurrency,
		CustomerID: p.CustomerID,
	}
}

// ScheduleFilter selects schedules of a billing key between From and Until.
type ScheduleFilter struct {
	BillingKey string
	From       time.Time
	Until      time.Time
}

// Schedule is a charge scheduled in the gateway. PaymentID is the id the
// charge will be created with once executed.
type Schedule struct {
	ID        string
	PaymentID string
	Status    string
	TimeToPay time.Time
}

// Error is returned when the gateway answers with an unexpected status.
// Body holds the raw response body when it was a JSON object or array,
// Status the status text otherwise.
type Error struct {
	Op         string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *Error) Error() string {
	detail := e.Status
	if len(e.Body) > 0 {
		detail = strings.TrimSpace(string(e.Body))
	}
	return fmt.Sprintf("%s (%d): %s", e.Op, e.StatusCode, detail)
}
