package billing

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/vibecoding/magazine-backend/checklist"
	"github.com/vibecoding/magazine-backend/gateway"
)

// notification statuses sent by the gateway
const (
	StatusPaid      = "Paid"
	StatusCancelled = "Cancelled"
)

// Notification is a payment status change reported by the gateway.
type Notification struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

const detailBodyValid = "요청 본문 검증 완료"

// nonEmptyString returns the trimmed value when v is a non blank string.
func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// maxFloatAmount is 2^63, the first float64 that does not fit in an int64.
const maxFloatAmount = float64(1 << 63)

// positiveAmount accepts JSON numbers that are whole, greater than zero and
// fit in an int64.
func positiveAmount(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, i > 0
	}
	// exponents and trailing zero decimals, such as 9.9e3 or 9900.0
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || f <= 0 || f != math.Trunc(f) || f >= maxFloatAmount {
		return 0, false
	}
	return int64(f), true
}

// parsePaymentRequest validates a create payment body. On failure it returns
// nil and the detail recorded in the checklist.
func parsePaymentRequest(raw any, cl *checklist.Checklist) (*gateway.BillingKeyPayment, string) {
	fail := func(step, detail string) (*gateway.BillingKeyPayment, string) {
		cl.Fail(step, detail)
		return nil, detail
	}
	body, ok := raw.(map[string]any)
	if !ok {
		return fail("validate-request-body", "요청 본문이 객체 형태가 아닙니다.")
	}
	billingKey, ok := nonEmptyString(body["billingKey"])
	if !ok {
		return fail("validate-billing-key", "billingKey 값이 유효한 문자열이어야 합니다.")
	}
	orderName, ok := nonEmptyString(body["orderName"])
	if !ok {
		return fail("validate-order-name", "orderName 값이 유효한 문자열이어야 합니다.")
	}
	amount, ok := positiveAmount(body["amount"])
	if !ok {
		return fail("validate-amount", "amount 값은 0보다 큰 숫자여야 합니다.")
	}
	customer, _ := body["customer"].(map[string]any)
	customerID, ok := nonEmptyString(customer["id"])
	if !ok {
		return fail("validate-customer", "customer.id 값이 유효한 문자열이어야 합니다.")
	}
	cl.Pass("validate-request-body", detailBodyValid)
	return &gateway.BillingKeyPayment{
		BillingKey: billingKey,
		OrderName:  orderName,
		Amount:     amount,
		Currency:   gateway.DefaultCurrency,
		CustomerID: customerID,
	}, ""
}

// parseCancelRequest validates a cancel body and returns the transaction key,
// or an empty key and the failure detail.
func parseCancelRequest(raw any, cl *checklist.Checklist) (string, string) {
	body, ok := raw.(map[string]any)
	if !ok {
		detail := "요청 본문이 객체 형태가 아닙니다."
		cl.Fail("validate-request-body", detail)
		return "", detail
	}
	transactionKey, ok := nonEmptyString(body["transactionKey"])
	if !ok {
		detail := "transactionKey 값이 유효한 문자열이어야 합니다."
		cl.Fail("validate-transaction-key", detail)
		return "", detail
	}
	cl.Pass("validate-request-body", detailBodyValid)
	return transactionKey, ""
}

// parseNotification validates a webhook body.
func parseNotification(raw any, cl *checklist.Checklist) (*Notification, string) {
	fail := func(step, detail string) (*Notification, string) {
		cl.Fail(step, detail)
		return nil, detail
	}
	body, ok := raw.(map[string]any)
	if !ok {
		return fail("validate-request-body", "요청 본문이 객체 형식이 아닙니다.")
	}
	paymentID, ok := nonEmptyString(body["payment_id"])
	if !ok {
		return fail("validate-payment-id", "payment_id 값이 유효한 문자열이어야 합니다.")
	}
	status, _ := body["status"].(string)
	if status != StatusPaid && status != StatusCancelled {
		return fail("validate-status", `status 값은 "Paid" 또는 "Cancelled" 이어야 합니다.`)
	}
	cl.Pass("validate-request-body", detailBodyValid)
	return &Notification{PaymentID: paymentID, Status: status}, ""
}
