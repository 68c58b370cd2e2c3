// Package portone implements gateway.Gateway on top of the PortOne V2 REST
// API. Requests are authenticated with the API secret and guarded by a
// circuit breaker.
package portone

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"github.com/vibecoding/magazine-backend/gateway"
	"github.com/vibecoding/magazine-backend/metrics"
	"go.vocdoni.io/dvote/log"
)

// DefaultBaseURL is the PortOne API endpoint.
const DefaultBaseURL = "https://api.portone.io"

// operation names, used as metric labels and as error prefixes
const (
	opPay            = "pay"
	opCancel         = "cancel"
	opGet            = "get"
	opCreateSchedule = "create-schedule"
	opListSchedules  = "list-schedules"
	opDeleteSchedule = "delete-schedules"
)

var opErrorPrefix = map[string]string{
	opPay:            "PortOne API 호출 실패",
	opCancel:         "PortOne 결제 취소 API 호출 실패",
	opGet:            "PortOne 결제 조회 실패",
	opCreateSchedule: "PortOne 스케줄 생성 실패",
	opListSchedules:  "PortOne 예약 결제 조회 실패",
	opDeleteSchedule: "PortOne 예약 결제 삭제 실패",
}

// Config holds the client settings.
type Config struct {
	Secret     string
	BaseURL    string
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Client is a PortOne API client. It is safe for concurrent use.
type Client struct {
	secret  string
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

var _ gateway.Gateway = (*Client)(nil)

// New creates a client. An empty secret is accepted, HasSecret lets the
// callers report it per request.
func New(conf *Config) *Client {
	baseURL := conf.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := conf.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		secret:  conf.Secret,
		baseURL: baseURL,
		http:    httpClient,
		metrics: conf.Metrics,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "portone-api",
			MaxRequests: 3,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				// rejected requests are the caller's fault, they must not
				// open the breaker
				var gwErr *gateway.Error
				if stderrors.As(err, &gwErr) {
					return gwErr.StatusCode < http.StatusInternalServerError
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// HasSecret reports whether the API secret is configured.
func (c *Client) HasSecret() bool {
	return c.secret != ""
}

// Secret describes the PortOne API secret.
func (*Client) Secret() gateway.SecretInfo {
	return gateway.SecretInfo{Step: "load-portone-secret", EnvVar: "PORTONE_API_SECRET", Name: "PortOne"}
}

type amount struct {
	Total int64 `json:"total"`
}

type customer struct {
	ID string `json:"id"`
}

type billingKeyPaymentRequest struct {
	BillingKey string   `json:"billingKey"`
	OrderName  string   `json:"orderName"`
	Amount     amount   `json:"amount"`
	Customer   customer `json:"customer"`
	Currency   string   `json:"currency"`
}

func newBillingKeyPaymentRequest(p gateway.BillingKeyPayment) billingKeyPaymentRequest {
	return billingKeyPaymentRequest{
		BillingKey: p.BillingKey,
		OrderName:  p.OrderName,
		Amount:     amount{Total: p.Amount},
		Customer:   customer{ID: p.CustomerID},
		Currency:   p.CurrencyOrDefault(),
	}
}

type scheduleRequest struct {
	Payment   billingKeyPaymentRequest `json:"payment"`
	TimeToPay string                   `json:"timeToPay"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type paymentResponse struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	BillingKey string    `json:"billingKey"`
	OrderName  string    `json:"orderName"`
	Amount     *amount   `json:"amount"`
	Customer   *customer `json:"customer"`
}

type scheduleFilter struct {
	BillingKey string `json:"billingKey,omitempty"`
	From       string `json:"from,omitempty"`
	Until      string `json:"until,omitempty"`
}

type listSchedulesRequest struct {
	Filter scheduleFilter `json:"filter"`
}

type scheduleItem struct {
	ID        string `json:"id"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	TimeToPay string `json:"timeToPay"`
}

type listSchedulesResponse struct {
	Items []scheduleItem `json:"items"`
}

type deleteSchedulesRequest struct {
	BillingKey  string   `json:"billingKey,omitempty"`
	ScheduleIDs []string `json:"scheduleIds"`
}

// PayWithBillingKey implements gateway.Gateway.
func (c *Client) PayWithBillingKey(ctx context.Context, paymentID string, p gateway.BillingKeyPayment) error {
	path := "/payments/" + url.PathEscape(paymentID) + "/billing-key"
	return c.do(ctx, opPay, http.MethodPost, path, newBillingKeyPaymentRequest(p), nil)
}

// CancelPayment implements gateway.Gateway.
func (c *Client) CancelPayment(ctx context.Context, paymentID, reason string) error {
	if reason == "" {
		reason = gateway.DefaultCancelReason
	}
	path := "/payments/" + url.PathEscape(paymentID) + "/cancel"
	return c.do(ctx, opCancel, http.MethodPost, path, cancelRequest{Reason: reason}, nil)
}

// GetPayment implements gateway.Gateway.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	var res paymentResponse
	if err := c.do(ctx, opGet, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &res); err != nil {
		return nil, err
	}
	p := &gateway.Payment{
		ID:         res.ID,
		Status:     res.Status,
		BillingKey: res.BillingKey,
		OrderName:  res.OrderName,
	}
	if res.Amount != nil {
		p.Amount = res.Amount.Total
	}
	if res.Customer != nil {
		p.CustomerID = res.Customer.ID
	}
	return p, nil
}

// CreateSchedule implements gateway.Gateway.
func (c *Client) CreateSchedule(ctx context.Context, paymentID string, p gateway.BillingKeyPayment,
	timeToPay time.Time,
) error {
	req := scheduleRequest{
		Payment:   newBillingKeyPaymentRequest(p),
		TimeToPay: timeToPay.UTC().Format(time.RFC3339),
	}
	log.Debugw("creating payment schedule", "paymentID", paymentID, "timeToPay", req.TimeToPay)
	path := "/payments/" + url.PathEscape(paymentID) + "/schedule"
	return c.do(ctx, opCreateSchedule, http.MethodPost, path, req, nil)
}

// ListSchedules implements gateway.Gateway. The filter travels as a JSON
// body on a GET request, as the API expects.
func (c *Client) ListSchedules(ctx context.Context, filter gateway.ScheduleFilter) ([]gateway.Schedule, error) {
	req := listSchedulesRequest{Filter: scheduleFilter{BillingKey: filter.BillingKey}}
	if !filter.From.IsZero() {
		req.Filter.From = filter.From.UTC().Format(time.RFC3339)
	}
	if !filter.Until.IsZero() {
		req.Filter.Until = filter.Until.UTC().Format(time.RFC3339)
	}
	var res listSchedulesResponse
	if err := c.do(ctx, opListSchedules, http.MethodGet, "/payment-schedules", req, &res); err != nil {
		return nil, err
	}
	schedules := make([]gateway.Schedule, 0, len(res.Items))
	for _, item := range res.Items {
		s := gateway.Schedule{ID: item.ID, PaymentID: item.PaymentID, Status: item.Status}
		if item.TimeToPay != "" {
			if t, err := time.Parse(time.RFC3339, item.TimeToPay); err == nil {
				s.TimeToPay = t
			}
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

// DeleteSchedules implements gateway.Gateway.
func (c *Client) DeleteSchedules(ctx context.Context, billingKey string, scheduleIDs []string) error {
	req := deleteSchedulesRequest{BillingKey: billingKey, ScheduleIDs: scheduleIDs}
	return c.do(ctx, opDeleteSchedule, http.MethodDelete, "/payment-schedules", req, nil)
}

// do sends the request through the circuit breaker and decodes a 2xx
// response into out when it is not nil.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.send(ctx, op, method, path, in, out)
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%s: %w", opErrorPrefix[op], gateway.ErrUnavailable)
	}
	c.metrics.ObserveGateway(op, start, err)
	return err
}

func (c *Client) send(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "PortOne "+c.secret)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", opErrorPrefix[op], err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", opErrorPrefix[op], err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		gwErr := &gateway.Error{
			Op:         opErrorPrefix[op],
			StatusCode: res.StatusCode,
			Status:     http.StatusText(res.StatusCode),
		}
		if isJSONDocument(data) {
			gwErr.Body = data
		}
		log.Debugw("portone request rejected", "op", op, "status", res.StatusCode, "body", string(data))
		return gwErr
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s: 응답이 비어 있습니다", opErrorPrefix[op])
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: could not decode response: %w", opErrorPrefix[op], err)
	}
	return nil
}

// isJSONDocument reports whether data is a JSON object or array. Scalars
// are not useful as an error detail.
func isJSONDocument(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid(trimmed)
}
