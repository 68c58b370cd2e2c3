// Package billing implements the subscription payment flows: charging a
// billing key, cancelling a payment and applying the asynchronous payment
// notifications sent by the gateway. Every flow records its steps in a
// checklist that is returned to the caller, on success and on failure.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vibecoding/magazine-backend/checklist"
	"github.com/vibecoding/magazine-backend/db"
	"github.com/vibecoding/magazine-backend/errors"
	"github.com/vibecoding/magazine-backend/events"
	"github.com/vibecoding/magazine-backend/eventstore"
	"github.com/vibecoding/magazine-backend/gateway"
	"github.com/vibecoding/magazine-backend/metrics"
	"github.com/vibecoding/magazine-backend/subscriptions"
	"go.vocdoni.io/dvote/log"
)

// flow names used as metric labels
const (
	FlowCreatePayment = "create-payment"
	FlowCancelPayment = "cancel-payment"
	FlowNotification  = "notification"
)

// Storage is the ledger access used by the notification flow.
type Storage interface {
	InsertPayment(payment *db.Payment) error
	LatestPayment(transactionKey string) (*db.Payment, error)
}

// SecretChecker is implemented by gateways that can tell whether their API
// secret is configured.
type SecretChecker interface {
	HasSecret() bool
	Secret() gateway.SecretInfo
}

// Config holds the dependencies of the billing service. Only Gateway is
// required, a nil DB makes the notification flow fail at load-storage.
type Config struct {
	Gateway   gateway.Gateway
	DB        Storage
	Events    eventstore.Store
	Publisher events.Publisher
	Metrics   *metrics.Metrics

	Now          func() time.Time
	NewID        func() string
	RandomMinute func() int
}

// Service runs the payment flows.
type Service struct {
	gateway   gateway.Gateway
	db        Storage
	events    eventstore.Store
	publisher events.Publisher
	metrics   *metrics.Metrics

	now          func() time.Time
	newID        func() string
	randomMinute func() int
}

// New creates a billing service.
func New(conf *Config) (*Service, error) {
	if conf == nil || conf.Gateway == nil {
		return nil, fmt.Errorf("missing payment gateway")
	}
	s := &Service{
		gateway:      conf.Gateway,
		db:           conf.DB,
		events:       conf.Events,
		publisher:    conf.Publisher,
		metrics:      conf.Metrics,
		now:          conf.Now,
		newID:        conf.NewID,
		randomMinute: conf.RandomMinute,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.randomMinute == nil {
		s.randomMinute = subscriptions.RandomMinute
	}
	return s, nil
}

// Response is the body returned by a successful flow.
type Response struct {
	Success   bool             `json:"success"`
	PaymentID string           `json:"paymentId,omitempty"`
	Checklist []checklist.Item `json:"checklist"`
}

func success(cl *checklist.Checklist, paymentID string) *Response {
	return &Response{Success: true, PaymentID: paymentID, Checklist: cl.Items()}
}

// fail attaches the checklist to the error and counts the failed flow.
func (s *Service) fail(flow string, e errors.Error, cl *checklist.Checklist) *errors.Error {
	s.metrics.IncFlow(flow, metrics.ResultError)
	e = e.WithChecklist(cl)
	return &e
}

// unexpected records an error that no step accounts for, such as an
// undecodable request body.
func (s *Service) unexpected(flow string, err error, cl *checklist.Checklist) *errors.Error {
	cl.Fail("handle-unexpected-error", err.Error())
	return s.fail(flow, errors.ErrGenericInternalServerError, cl)
}

// loadSecret fails when the gateway reports a missing API secret. The step
// and the message name the secret of the configured gateway.
func (s *Service) loadSecret(flow string, cl *checklist.Checklist) *errors.Error {
	sc, ok := s.gateway.(SecretChecker)
	if !ok {
		cl.Pass(gateway.DefaultSecretStep, "비밀키 확인 생략")
		return nil
	}
	info := sc.Secret()
	if !sc.HasSecret() {
		msg := info.EnvVar + " 환경변수가 설정되지 않았습니다."
		cl.Fail(info.Step, msg)
		return s.fail(flow, errors.ErrGatewaySecretMissing.WithMessage(msg), cl)
	}
	cl.Pass(info.Step, info.Name+" 비밀키 로드 완료")
	return nil
}

// decodeBody decodes a JSON document keeping numbers as json.Number.
func decodeBody(body []byte) (any, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return raw, nil
}

// CreatePayment charges the billing key of the request body and schedules
// the next monthly charge. A failed schedule does not fail the flow, the
// ledger row is written later by the Paid notification.
func (s *Service) CreatePayment(ctx context.Context, body []byte) (*Response, *errors.Error) {
	cl := checklist.New()
	raw, err := decodeBody(body)
	if err != nil {
		return nil, s.unexpected(FlowCreatePayment, err, cl)
	}
	payment, detail := parsePaymentRequest(raw, cl)
	if payment == nil {
		return nil, s.fail(FlowCreatePayment, errors.ErrInvalidPaymentRequest.WithMessage(detail), cl)
	}
	if apiErr := s.loadSecret(FlowCreatePayment, cl); apiErr != nil {
		return nil, apiErr
	}

	paymentID := s.newID()
	cl.Pass("generate-payment-id", "결제 ID 생성: "+paymentID)
	log.Infow("requesting billing-key payment",
		"paymentId", paymentID, "customerId", payment.CustomerID, "amount", payment.Amount)

	if err := s.gateway.PayWithBillingKey(ctx, paymentID, *payment); err != nil {
		cl.Fail("request-portone-payment", err.Error())
		return nil, s.fail(FlowCreatePayment, errors.ErrGatewayRequestFailed.WithMessage(err.Error()), cl)
	}
	cl.Pass("request-portone-payment", "PortOne billing-key 결제 요청 성공")

	nextID := s.newID()
	timeToPay := s.now().AddDate(0, 1, 0)
	if err := s.gateway.CreateSchedule(ctx, nextID, *payment, timeToPay); err != nil {
		// the first charge went through, so the flow goes on
		log.Warnw("could not create the payment schedule",
			"paymentId", paymentID, "scheduleId", nextID, "error", err)
		cl.Fail("create-schedule", err.Error())
	} else {
		cl.Pass("create-schedule", "정기 결제 스케줄 생성 완료")
	}

	cl.Pass("payment-flow-complete", "결제 요청 완료. 결제 정보는 webhook에서 저장됩니다.")
	s.metrics.IncFlow(FlowCreatePayment, metrics.ResultOK)
	return success(cl, paymentID), nil
}

// CancelPayment asks the gateway to cancel the payment of the request body.
// The ledger is only updated by the Cancelled notification.
func (s *Service) CancelPayment(ctx context.Context, body []byte) (*Response, *errors.Error) {
	cl := checklist.New()
	raw, err := decodeBody(body)
	if err != nil {
		return nil, s.unexpected(FlowCancelPayment, err, cl)
	}
	transactionKey, detail := parseCancelRequest(raw, cl)
	if transactionKey == "" {
		return nil, s.fail(FlowCancelPayment, errors.ErrInvalidPaymentRequest.WithMessage(detail), cl)
	}
	if apiErr := s.loadSecret(FlowCancelPayment, cl); apiErr != nil {
		return nil, apiErr
	}

	log.Infow("requesting payment cancellation", "transactionKey", transactionKey)
	if err := s.gateway.CancelPayment(ctx, transactionKey, gateway.DefaultCancelReason); err != nil {
		cl.Fail("request-portone-cancel", err.Error())
		return nil, s.fail(FlowCancelPayment, errors.ErrGatewayRequestFailed.WithMessage(err.Error()), cl)
	}
	cl.Pass("request-portone-cancel", "PortOne 결제 취소 요청 성공")

	cl.Pass("complete-cancel-flow", "결제 취소 처리 완료 (DB 저장 없이 응답 반환)")
	s.metrics.IncFlow(FlowCancelPayment, metrics.ResultOK)
	return success(cl, ""), nil
}
