package billing

import (
	"context"
	"fmt"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vibecoding/magazine-backend/checklist"
	"github.com/vibecoding/magazine-backend/db"
	"github.com/vibecoding/magazine-backend/errors"
	"github.com/vibecoding/magazine-backend/events"
	"github.com/vibecoding/magazine-backend/eventstore"
	"github.com/vibecoding/magazine-backend/gateway"
	"github.com/vibecoding/magazine-backend/metrics"
	"github.com/vibecoding/magazine-backend/portone"
	"github.com/vibecoding/magazine-backend/test"
)

var testNow = time.Date(2026, 10, 17, 15, 4, 5, 0, time.Local)

// memoryLedger is an in-memory Storage.
type memoryLedger struct {
	mtx       sync.Mutex
	rows      []db.Payment
	insertErr error
}

func (m *memoryLedger) InsertPayment(p *db.Payment) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	p.CreatedAt = testNow.Add(time.Duration(len(m.rows)) * time.Second)
	m.rows = append(m.rows, *p)
	return nil
}

func (m *memoryLedger) LatestPayment(transactionKey string) (*db.Payment, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].TransactionKey == transactionKey {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, db.ErrNotFound
}

// recordingPublisher keeps the published events.
type recordingPublisher struct {
	events []events.PaymentEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e events.PaymentEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (*recordingPublisher) Close() error { return nil }

type testEnv struct {
	srv       *test.PortOneServer
	ledger    *memoryLedger
	publisher *recordingPublisher
	store     *eventstore.MemoryStore
	svc       *Service
}

func newTestEnv(c *qt.C, secret string) *testEnv {
	env := &testEnv{
		srv:       test.StartPortOneServer(),
		ledger:    &memoryLedger{},
		publisher: &recordingPublisher{},
		store:     eventstore.NewMemoryStore(time.Hour),
	}
	c.Cleanup(env.srv.Close)
	c.Cleanup(env.store.Close)
	ids := 0
	svc, err := New(&Config{
		Gateway:      portone.New(&portone.Config{Secret: secret, BaseURL: env.srv.URL}),
		DB:           env.ledger,
		Events:       env.store,
		Publisher:    env.publisher,
		Metrics:      metrics.New(),
		Now:          func() time.Time { return testNow },
		NewID:        func() string { ids++; return fmt.Sprintf("id-%d", ids) },
		RandomMinute: func() int { return 7 },
	})
	c.Assert(err, qt.IsNil)
	env.svc = svc
	return env
}

// assertFlowOK fails when the flow returned an API error. The flows return a
// concrete *errors.Error, which qt.IsNil would reject even when nil.
func assertFlowOK(c *qt.C, apiErr *errors.Error) {
	c.Helper()
	c.Assert(apiErr == nil, qt.IsTrue, qt.Commentf("unexpected error: %v", apiErr))
}

func steps(items []checklist.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Step + ":" + string(it.Status)
	}
	return out
}

const validPaymentBody = `{"billingKey":" billing-key-1 ","orderName":"월간 구독","amount":9900,"customer":{"id":"customer-1"}}`

func TestNewRequiresGateway(t *testing.T) {
	c := qt.New(t)
	_, err := New(&Config{})
	c.Assert(err, qt.IsNotNil)
	_, err = New(nil)
	c.Assert(err, qt.IsNotNil)
}

func TestCreatePayment(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, test.PortOneSecret)
	ctx := context.Background()

	res, apiErr := env.svc.CreatePayment(ctx, []byte(validPaymentBody))
	assertFlowOK(c, apiErr)
	c.Assert(res.Success, qt.IsTrue)
	c.Assert(res.PaymentID, qt.Equals, "id-1")
	c.Assert(steps(res.Checklist), qt.DeepEquals, []string{
		"validate-request-body:passed",
		"load-portone-secret:passed",
		"generate-payment-id:passed",
		"request-portone-payment:passed",
		"create-schedule:passed",
		"payment-flow-complete:passed",
	})
	c.Assert(res.Checklist[2].Detail, qt.Equals, "결제 ID 생성: id-1")

	paid, ok := env.srv.Payment("id-1")
	c.Assert(ok, qt.IsTrue)
	c.Assert(paid.BillingKey, qt.Equals, "billing-key-1")
	c.Assert(paid.Amount, qt.Equals, int64(9900))

	schedules := env.srv.Schedules()
	c.Assert(schedules, qt.HasLen, 1)
	c.Assert(schedules[0].PaymentID, qt.Equals, "id-2")
	c.Assert(schedules[0].TimeToPay.Equal(testNow.AddDate(0, 1, 0)), qt.IsTrue)

	// no ledger row is written before the notification arrives
	c.Assert(env.ledger.rows, qt.HasLen, 0)
}

func TestCreatePaymentValidation(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, test.PortOneSecret)
	ctx := context.Background()

	for _, tc := range []struct {
		body   string
		step   string
		detail string
	}{
		{`"text"`, "validate-request-body", "요청 본문이 객체 형태가 아닙니다."},
		{`null`, "validate-request-body", "요청 본문이 객체 형태가 아닙니다."},
		{`{"billingKey":"  ","orderName":"x","amount":1,"customer":{"id":"c"}}`,
			"validate-billing-key", "billingKey 값이 유효한 문자열이어야 합니다."},
		{`{"billingKey":"bk","amount":1,"customer":{"id":"c"}}`,
			"validate-order-name", "orderName 값이 유효한 문자열이어야 합니다."},
		{`{"billingKey":"bk","orderName":"x","amount":0,"customer":{"id":"c"}}`,
			"validate-amount", "amount 값은 0보다 큰 숫자여야 합니다."},
		{`{"billingKey":"bk","orderName":"x","amount":"9900","customer":{"id":"c"}}`,
			"validate-amount", "amount 값은 0보다 큰 숫자여야 합니다."},
		{`{"billingKey":"bk","orderName":"x","amount":99.5,"customer":{"id":"c"}}`,
			"validate-amount", "amount 값은 0보다 큰 숫자여야 합니다."},
		{`{"billingKey":"bk","orderName":"x","amount":1}`,
			"validate-customer", "customer.id 값이 유효한 문자열이어야 합니다."},
		{`{"billingKey":"bk","orderName":"x","amount":1,"customer":{"id":""}}`,
			"validate-customer", "customer.id 값이 유효한 문자열이어야 합니다."},
	} {
		_, apiErr := env.svc.CreatePayment(ctx, []byte(tc.body))
		c.Assert(apiErr, qt.IsNotNil, qt.Commentf("body %s", tc.body))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusBadRequest)
		c.Assert(apiErr.Error(), qt.Equals, tc.detail)
		last, _ := apiErr.Checklist.Last()
		c.Assert(last, qt.DeepEquals, checklist.Item{Step: tc.step, Status: checklist.StatusFailed, Detail: tc.detail})
	}

	// undecodable JSON is an unexpected error
	_, apiErr := env.svc.CreatePayment(ctx, []byte(`{"billingKey":`))
	c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusInternalServerError)
	c.Assert(apiErr.Error(), qt.Equals, "서버 내부 오류가 발생했습니다.")
	last, _ := apiErr.Checklist.Last()
	c.Assert(last.Step, qt.Equals, "handle-unexpected-error")
}

func TestCreatePaymentFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing secret", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, "")
		_, apiErr := env.svc.CreatePayment(ctx, []byte(validPaymentBody))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusInternalServerError)
		c.Assert(apiErr.Error(), qt.Equals, "PORTONE_API_SECRET 환경변수가 설정되지 않았습니다.")
		c.Assert(steps(apiErr.Checklist.Items()), qt.DeepEquals, []string{
			"validate-request-body:passed",
			"load-portone-secret:failed",
		})
	})

	t.Run("missing secret of another gateway", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, "")
		env.svc.gateway = stripeLikeGateway{env.svc.gateway.(*portone.Client)}
		_, apiErr := env.svc.CreatePayment(ctx, []byte(validPaymentBody))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusInternalServerError)
		c.Assert(apiErr.Error(), qt.Equals, "MAGAZINE_STRIPE_SECRET 환경변수가 설정되지 않았습니다.")
		c.Assert(steps(apiErr.Checklist.Items()), qt.DeepEquals, []string{
			"validate-request-body:passed",
			"load-stripe-secret:failed",
		})
	})

	t.Run("gateway rejects the charge", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		env.srv.Fail(test.PortOneOpPay, http.StatusBadRequest)
		_, apiErr := env.svc.CreatePayment(ctx, []byte(validPaymentBody))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusBadGateway)
		c.Assert(apiErr.Error(), qt.Matches, `PortOne API 호출 실패 \(400\): .*PG_PROVIDER.*`)
		last, _ := apiErr.Checklist.Last()
		c.Assert(last.Step, qt.Equals, "request-portone-payment")
		c.Assert(last.Status, qt.Equals, checklist.StatusFailed)
		c.Assert(env.srv.Schedules(), qt.HasLen, 0)
	})

	t.Run("schedule failure only warns", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		env.srv.Fail(test.PortOneOpSchedule, http.StatusConflict)
		res, apiErr := env.svc.CreatePayment(ctx, []byte(validPaymentBody))
		assertFlowOK(c, apiErr)
		c.Assert(res.Success, qt.IsTrue)
		c.Assert(res.Checklist[4].Step, qt.Equals, "create-schedule")
		c.Assert(res.Checklist[4].Status, qt.Equals, checklist.StatusFailed)
		c.Assert(res.Checklist[4].Detail, qt.Matches, `PortOne 스케줄 생성 실패 \(409\): .*`)
		c.Assert(res.Checklist[5].Step, qt.Equals, "payment-flow-complete")
	})
}

func TestCancelPayment(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, test.PortOneSecret)
	ctx := context.Background()

	res, apiErr := env.svc.CreatePayment(ctx, []byte(validPaymentBody))
	assertFlowOK(c, apiErr)

	res, apiErr = env.svc.CancelPayment(ctx, []byte(fmt.Sprintf(`{"transactionKey":" %s "}`, res.PaymentID)))
	assertFlowOK(c, apiErr)
	c.Assert(steps(res.Checklist), qt.DeepEquals, []string{
		"validate-request-body:passed",
		"load-portone-secret:passed",
		"request-portone-cancel:passed",
		"complete-cancel-flow:passed",
	})
	paid, _ := env.srv.Payment("id-1")
	c.Assert(paid.Status, qt.Equals, "CANCELLED")

	_, apiErr = env.svc.CancelPayment(ctx, []byte(`{"transactionKey":""}`))
	c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusBadRequest)
	c.Assert(apiErr.Error(), qt.Equals, "transactionKey 값이 유효한 문자열이어야 합니다.")

	_, apiErr = env.svc.CancelPayment(ctx, []byte(`{"transactionKey":"unknown"}`))
	c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusBadGateway)
	c.Assert(apiErr.Error(), qt.Matches, `PortOne 결제 취소 API 호출 실패 \(404\): .*`)
}

func notificationBody(paymentID, status string) []byte {
	return []byte(fmt.Sprintf(`{"payment_id":%q,"status":%q}`, paymentID, status))
}

func TestNotificationPaidThenCancelled(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, test.PortOneSecret)
	ctx := context.Background()

	created, apiErr := env.svc.CreatePayment(ctx, []byte(validPaymentBody))
	assertFlowOK(c, apiErr)
	paymentID := created.PaymentID

	res, apiErr := env.svc.HandleNotification(ctx, notificationBody(paymentID, StatusPaid))
	assertFlowOK(c, apiErr)
	c.Assert(steps(res.Checklist), qt.DeepEquals, []string{
		"validate-request-body:passed",
		"load-portone-secret:passed",
		"fetch-portone-payment:passed",
		"load-storage:passed",
		"insert-payment-record:passed",
		"publish-payment-event:passed",
		"schedule-next-subscription:passed",
		"complete-subscription-flow:passed",
	})

	c.Assert(env.ledger.rows, qt.HasLen, 1)
	row := env.ledger.rows[0]
	c.Assert(row.TransactionKey, qt.Equals, paymentID)
	c.Assert(row.CustomerID, qt.Equals, "customer-1")
	c.Assert(row.Amount, qt.Equals, int64(9900))
	c.Assert(row.Status, qt.Equals, db.PaymentStatusPaid)
	c.Assert(row.StartAt, qt.Equals, testNow)
	c.Assert(row.EndAt, qt.Equals, testNow.AddDate(0, 0, 30))
	c.Assert(row.EndGraceAt, qt.Equals, testNow.AddDate(0, 0, 31))
	c.Assert(row.NextScheduleAt.Hour(), qt.Equals, 10)
	c.Assert(row.NextScheduleAt.Minute(), qt.Equals, 7)
	c.Assert(row.NextScheduleID, qt.Equals, "id-3")

	// one schedule from the create flow, one for the next period
	c.Assert(env.srv.Schedules(), qt.HasLen, 2)
	c.Assert(env.publisher.events, qt.HasLen, 1)
	c.Assert(env.publisher.events[0].Topic, qt.Equals, events.TopicPaymentPaid)

	// a redelivered notification is skipped
	res, apiErr = env.svc.HandleNotification(ctx, notificationBody(paymentID, StatusPaid))
	assertFlowOK(c, apiErr)
	last := res.Checklist[len(res.Checklist)-1]
	c.Assert(last.Step, qt.Equals, "check-duplicate-notification")
	c.Assert(last.Status, qt.Equals, checklist.StatusSkipped)
	c.Assert(env.ledger.rows, qt.HasLen, 1)

	res, apiErr = env.svc.HandleNotification(ctx, notificationBody(paymentID, StatusCancelled))
	assertFlowOK(c, apiErr)
	c.Assert(steps(res.Checklist), qt.DeepEquals, []string{
		"validate-request-body:passed",
		"load-portone-secret:passed",
		"fetch-portone-payment:passed",
		"load-storage:passed",
		"query-payment-record:passed",
		"insert-cancellation-record:passed",
		"publish-payment-event:passed",
		"query-scheduled-payments:passed",
		"find-matching-schedule:passed",
		"delete-scheduled-payments:passed",
		"complete-cancellation-flow:passed",
	})

	c.Assert(env.ledger.rows, qt.HasLen, 2)
	cancelled := env.ledger.rows[1]
	c.Assert(cancelled.Status, qt.Equals, db.PaymentStatusCancel)
	c.Assert(cancelled.Amount, qt.Equals, int64(-9900))
	c.Assert(cancelled.NextScheduleID, qt.Equals, row.NextScheduleID)
	c.Assert(cancelled.EndGraceAt, qt.Equals, row.EndGraceAt)

	// only the schedule of the next period was revoked
	remaining := env.srv.Schedules()
	c.Assert(remaining, qt.HasLen, 1)
	c.Assert(remaining[0].PaymentID, qt.Equals, "id-2")
	c.Assert(env.publisher.events[1].Topic, qt.Equals, events.TopicPaymentCancelled)
	c.Assert(env.publisher.events[1].Amount, qt.Equals, int64(-9900))
}

func TestNotificationValidation(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, test.PortOneSecret)
	ctx := context.Background()

	for _, tc := range []struct {
		body   string
		step   string
		detail string
	}{
		{`[]`, "validate-request-body", "요청 본문이 객체 형식이 아닙니다."},
		{`{"status":"Paid"}`, "validate-payment-id", "payment_id 값이 유효한 문자열이어야 합니다."},
		{`{"payment_id":42,"status":"Paid"}`, "validate-payment-id", "payment_id 값이 유효한 문자열이어야 합니다."},
		{`{"payment_id":"p","status":"Ready"}`, "validate-status", `status 값은 "Paid" 또는 "Cancelled" 이어야 합니다.`},
	} {
		_, apiErr := env.svc.HandleNotification(ctx, []byte(tc.body))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusBadRequest)
		c.Assert(apiErr.Error(), qt.Equals, tc.detail)
		last, _ := apiErr.Checklist.Last()
		c.Assert(last.Step, qt.Equals, tc.step)
	}
}

func TestNotificationFailures(t *testing.T) {
	ctx := context.Background()

	paidPayment := test.PortOnePayment{
		ID: "payment-1", Status: "PAID", BillingKey: "billing-key-1",
		OrderName: "월간 구독", Amount: 9900, CustomerID: "customer-1",
	}

	t.Run("fetch fails", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		_, apiErr := env.svc.HandleNotification(ctx, notificationBody("missing", StatusPaid))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusBadGateway)
		c.Assert(apiErr.Error(), qt.Equals, "PortOne 결제 정보를 조회하지 못했습니다.")
		last, _ := apiErr.Checklist.Last()
		c.Assert(last.Step, qt.Equals, "handle-fetch-payment-error")
		c.Assert(last.Detail, qt.Contains, "PortOne 결제 조회 실패 (404)")
	})

	t.Run("storage not configured", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		env.srv.AddPayment(paidPayment)
		env.svc.db = nil
		_, apiErr := env.svc.HandleNotification(ctx, notificationBody("payment-1", StatusPaid))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusInternalServerError)
		last, _ := apiErr.Checklist.Last()
		c.Assert(last.Step, qt.Equals, "load-storage")
	})

	t.Run("invalid amount", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		p := paidPayment
		p.Amount = 0
		env.srv.AddPayment(p)
		_, apiErr := env.svc.HandleNotification(ctx, notificationBody("payment-1", StatusPaid))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusInternalServerError)
		c.Assert(apiErr.Error(), qt.Equals, "PortOne 결제 정보에서 유효한 결제 금액을 확인할 수 없습니다.")
	})

	t.Run("missing detail fields", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		p := paidPayment
		p.CustomerID = ""
		env.srv.AddPayment(p)
		_, apiErr := env.svc.HandleNotification(ctx, notificationBody("payment-1", StatusPaid))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusInternalServerError)
		c.Assert(apiErr.Error(), qt.Equals, "PortOne 결제 정보에서 구독 예약에 필요한 필드를 확인할 수 없습니다.")
		c.Assert(env.ledger.rows, qt.HasLen, 0)
	})

	t.Run("insert fails", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		env.srv.AddPayment(paidPayment)
		env.ledger.insertErr = fmt.Errorf("write concern error")
		_, apiErr := env.svc.HandleNotification(ctx, notificationBody("payment-1", StatusPaid))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusInternalServerError)
		c.Assert(apiErr.Error(), qt.Equals, "결제 정보를 저장하지 못했습니다.")
		last, _ := apiErr.Checklist.Last()
		c.Assert(last.Step, qt.Equals, "handle-storage-error")
		c.Assert(env.srv.Schedules(), qt.HasLen, 0)
	})

	t.Run("schedule fails after the insert", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		env.srv.AddPayment(paidPayment)
		env.srv.Fail(test.PortOneOpSchedule, http.StatusInternalServerError)
		_, apiErr := env.svc.HandleNotification(ctx, notificationBody("payment-1", StatusPaid))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusBadGateway)
		c.Assert(apiErr.Error(), qt.Equals, "다음 구독 결제를 예약하지 못했습니다.")
		last, _ := apiErr.Checklist.Last()
		c.Assert(last.Step, qt.Equals, "handle-schedule-error")
		// the ledger row is kept, nothing is compensated
		c.Assert(env.ledger.rows, qt.HasLen, 1)

		// the failed notification is not marked as processed
		exists, err := env.store.Exists(ctx, eventstore.Key("payment-1", StatusPaid))
		c.Assert(err, qt.IsNil)
		c.Assert(exists, qt.IsFalse)
	})

	t.Run("cancel without ledger row", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		env.srv.AddPayment(paidPayment)
		_, apiErr := env.svc.HandleNotification(ctx, notificationBody("payment-1", StatusCancelled))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusInternalServerError)
		c.Assert(apiErr.Error(), qt.Equals, "구독 취소를 처리하지 못했습니다.")
		items := apiErr.Checklist.Items()
		c.Assert(items[len(items)-2].Detail, qt.Equals, "payment 조회 실패: 레코드를 찾을 수 없습니다")
		c.Assert(items[len(items)-1].Step, qt.Equals, "handle-cancellation-error")
	})

	t.Run("cancel without matching schedule", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		env.srv.AddPayment(paidPayment)
		c.Assert(env.ledger.InsertPayment(&db.Payment{
			TransactionKey: "payment-1",
			Amount:         9900,
			Status:         db.PaymentStatusPaid,
			NextScheduleAt: testNow.AddDate(0, 0, 31),
			NextScheduleID: "never-scheduled",
		}), qt.IsNil)
		_, apiErr := env.svc.HandleNotification(ctx, notificationBody("payment-1", StatusCancelled))
		c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusInternalServerError)
		items := apiErr.Checklist.Items()
		c.Assert(items[len(items)-2], qt.DeepEquals, checklist.Item{
			Step:   "find-matching-schedule",
			Status: checklist.StatusFailed,
			Detail: "일치하는 예약 결제를 찾을 수 없습니다.",
		})
		// the cancellation row was written before the lookup failed
		c.Assert(env.ledger.rows, qt.HasLen, 2)
	})

	t.Run("publish failure does not stop the flow", func(t *testing.T) {
		c := qt.New(t)
		env := newTestEnv(c, test.PortOneSecret)
		env.srv.AddPayment(paidPayment)
		env.publisher.err = fmt.Errorf("kafka: client has run out of available brokers")
		res, apiErr := env.svc.HandleNotification(ctx, notificationBody("payment-1", StatusPaid))
		assertFlowOK(c, apiErr)
		c.Assert(res.Checklist[5].Step, qt.Equals, "publish-payment-event")
		c.Assert(res.Checklist[5].Status, qt.Equals, checklist.StatusFailed)
	})
}

// stripeLikeGateway reports its secret under another name.
type stripeLikeGateway struct {
	*portone.Client
}

func (stripeLikeGateway) Secret() gateway.SecretInfo {
	return gateway.SecretInfo{Step: "load-stripe-secret", EnvVar: "MAGAZINE_STRIPE_SECRET", Name: "Stripe"}
}

func TestPositiveAmount(t *testing.T) {
	c := qt.New(t)

	for _, tc := range []struct {
		in     string
		amount int64
		ok     bool
	}{
		{"9900", 9900, true},
		{"9900.0", 9900, true},
		{"9.9e3", 9900, true},
		{"9223372036854775807", math.MaxInt64, true},
		{"9223372036854775808", 0, false},
		{"9.223372036854775807e18", 0, false},
		{"1e19", 0, false},
		{"0", 0, false},
		{"-1", 0, false},
		{"99.5", 0, false},
	} {
		amount, ok := positiveAmount(json.Number(tc.in))
		c.Assert(ok, qt.Equals, tc.ok, qt.Commentf("amount %s", tc.in))
		if tc.ok {
			c.Assert(amount, qt.Equals, tc.amount, qt.Commentf("amount %s", tc.in))
		}
	}
	_, ok := positiveAmount("9900")
	c.Assert(ok, qt.IsFalse)
}

func TestCreatePaymentAmountOverflow(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, test.PortOneSecret)

	body := `{"billingKey":"bk","orderName":"x","amount":9223372036854775808,"customer":{"id":"c"}}`
	_, apiErr := env.svc.CreatePayment(context.Background(), []byte(body))
	c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusBadRequest)
	last, _ := apiErr.Checklist.Last()
	c.Assert(last.Step, qt.Equals, "validate-amount")
	_, charged := env.srv.Payment("id-1")
	c.Assert(charged, qt.IsFalse)
}

func TestConcurrentNotificationDeliveries(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, test.PortOneSecret)
	ctx := context.Background()

	created, apiErr := env.svc.CreatePayment(ctx, []byte(validPaymentBody))
	assertFlowOK(c, apiErr)

	const deliveries = 5
	statuses := make([]int, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, apiErr := env.svc.HandleNotification(ctx, notificationBody(created.PaymentID, StatusPaid))
			statuses[i] = http.StatusOK
			if apiErr != nil {
				statuses[i] = apiErr.HTTPstatus
			}
		}(i)
	}
	wg.Wait()

	for _, status := range statuses {
		c.Assert(status == http.StatusOK || status == http.StatusConflict, qt.IsTrue,
			qt.Commentf("statuses %v", statuses))
	}
	c.Assert(env.ledger.rows, qt.HasLen, 1)
	// one schedule from the create flow, one for the next period
	c.Assert(env.srv.Schedules(), qt.HasLen, 2)
	c.Assert(env.publisher.events, qt.HasLen, 1)

	res, apiErr := env.svc.HandleNotification(ctx, notificationBody(created.PaymentID, StatusPaid))
	assertFlowOK(c, apiErr)
	last := res.Checklist[len(res.Checklist)-1]
	c.Assert(last.Step, qt.Equals, "check-duplicate-notification")
	c.Assert(last.Status, qt.Equals, checklist.StatusSkipped)
}

func TestNotificationInProgress(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, test.PortOneSecret)
	ctx := context.Background()

	created, apiErr := env.svc.CreatePayment(ctx, []byte(validPaymentBody))
	assertFlowOK(c, apiErr)
	key := eventstore.Key(created.PaymentID, StatusPaid)

	// another delivery owns the notification
	state, err := env.store.Claim(ctx, key)
	c.Assert(err, qt.IsNil)
	c.Assert(state, qt.Equals, eventstore.StateClaimed)

	_, apiErr = env.svc.HandleNotification(ctx, notificationBody(created.PaymentID, StatusPaid))
	c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusConflict)
	last, _ := apiErr.Checklist.Last()
	c.Assert(last.Step, qt.Equals, "check-duplicate-notification")
	c.Assert(last.Status, qt.Equals, checklist.StatusFailed)
	c.Assert(env.ledger.rows, qt.HasLen, 0)

	// the owner gave up, the redelivery is applied
	c.Assert(env.store.Release(ctx, key), qt.IsNil)
	_, apiErr = env.svc.HandleNotification(ctx, notificationBody(created.PaymentID, StatusPaid))
	assertFlowOK(c, apiErr)
	c.Assert(env.ledger.rows, qt.HasLen, 1)
	processed, err := env.store.Exists(ctx, key)
	c.Assert(err, qt.IsNil)
	c.Assert(processed, qt.IsTrue)
}
