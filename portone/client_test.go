package portone

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vibecoding/magazine-backend/gateway"
	"github.com/vibecoding/magazine-backend/metrics"
	"github.com/vibecoding/magazine-backend/test"
)

var testPayment = gateway.BillingKeyPayment{
	BillingKey: "billing-key-1",
	OrderName:  "월간 구독",
	Amount:     9900,
	CustomerID: "customer-1",
}

func newTestClient(srv *test.PortOneServer, secret string) *Client {
	return New(&Config{Secret: secret, BaseURL: srv.URL, Metrics: metrics.New()})
}

func TestPayAndGetPayment(t *testing.T) {
	c := qt.New(t)
	srv := test.StartPortOneServer()
	defer srv.Close()
	client := newTestClient(srv, test.PortOneSecret)
	ctx := context.Background()

	c.Assert(client.HasSecret(), qt.IsTrue)
	c.Assert(client.PayWithBillingKey(ctx, "payment-1", testPayment), qt.IsNil)

	p, err := client.GetPayment(ctx, "payment-1")
	c.Assert(err, qt.IsNil)
	c.Assert(p.ID, qt.Equals, "payment-1")
	c.Assert(p.BillingKey, qt.Equals, testPayment.BillingKey)
	c.Assert(p.OrderName, qt.Equals, testPayment.OrderName)
	c.Assert(p.Amount, qt.Equals, testPayment.Amount)
	c.Assert(p.CustomerID, qt.Equals, testPayment.CustomerID)
	c.Assert(p.BillingKeyPayment().Currency, qt.Equals, gateway.DefaultCurrency)
}

func TestRejectedRequest(t *testing.T) {
	c := qt.New(t)
	srv := test.StartPortOneServer()
	defer srv.Close()
	ctx := context.Background()

	// wrong secret
	err := newTestClient(srv, "wrong").PayWithBillingKey(ctx, "payment-1", testPayment)
	var gwErr *gateway.Error
	c.Assert(stderrors.As(err, &gwErr), qt.IsTrue)
	c.Assert(gwErr.StatusCode, qt.Equals, http.StatusUnauthorized)
	c.Assert(err.Error(), qt.Matches, `PortOne API 호출 실패 \(401\): \{.*UNAUTHORIZED.*\}`)

	// injected failure
	client := newTestClient(srv, test.PortOneSecret)
	srv.Fail(test.PortOneOpPay, http.StatusBadRequest)
	err = client.PayWithBillingKey(ctx, "payment-2", testPayment)
	c.Assert(stderrors.As(err, &gwErr), qt.IsTrue)
	c.Assert(gwErr.StatusCode, qt.Equals, http.StatusBadRequest)

	// unknown payment
	_, err = client.GetPayment(ctx, "missing")
	c.Assert(stderrors.As(err, &gwErr), qt.IsTrue)
	c.Assert(gwErr.StatusCode, qt.Equals, http.StatusNotFound)
	c.Assert(err.Error(), qt.Contains, "PortOne 결제 조회 실패 (404)")
}

func TestCancelPayment(t *testing.T) {
	c := qt.New(t)
	srv := test.StartPortOneServer()
	defer srv.Close()
	client := newTestClient(srv, test.PortOneSecret)
	ctx := context.Background()

	c.Assert(client.PayWithBillingKey(ctx, "payment-1", testPayment), qt.IsNil)
	c.Assert(client.CancelPayment(ctx, "payment-1", ""), qt.IsNil)
	p, ok := srv.Payment("payment-1")
	c.Assert(ok, qt.IsTrue)
	c.Assert(p.Status, qt.Equals, "CANCELLED")

	err := client.CancelPayment(ctx, "unknown", "")
	c.Assert(err, qt.ErrorMatches, `(?s)PortOne 결제 취소 API 호출 실패 \(404\).*`)
}

func TestSchedules(t *testing.T) {
	c := qt.New(t)
	srv := test.StartPortOneServer()
	defer srv.Close()
	client := newTestClient(srv, test.PortOneSecret)
	ctx := context.Background()

	at := time.Date(2026, 11, 17, 10, 23, 0, 0, time.UTC)
	c.Assert(client.CreateSchedule(ctx, "next-1", testPayment, at), qt.IsNil)
	c.Assert(client.CreateSchedule(ctx, "next-2", testPayment, at.AddDate(0, 1, 0)), qt.IsNil)

	schedules, err := client.ListSchedules(ctx, gateway.ScheduleFilter{
		BillingKey: testPayment.BillingKey,
		From:       at.AddDate(0, 0, -1),
		Until:      at.AddDate(0, 0, 1),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(schedules, qt.HasLen, 1)
	c.Assert(schedules[0].PaymentID, qt.Equals, "next-1")
	c.Assert(schedules[0].TimeToPay.Equal(at), qt.IsTrue)

	c.Assert(client.DeleteSchedules(ctx, testPayment.BillingKey, []string{schedules[0].ID}), qt.IsNil)
	c.Assert(srv.Schedules(), qt.HasLen, 1)
}

func TestCircuitBreakerOpens(t *testing.T) {
	c := qt.New(t)
	srv := test.StartPortOneServer()
	defer srv.Close()
	client := newTestClient(srv, test.PortOneSecret)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		srv.Fail(test.PortOneOpGet, http.StatusInternalServerError)
		_, err := client.GetPayment(ctx, "any")
		c.Assert(err, qt.IsNotNil)
	}
	_, err := client.GetPayment(ctx, "any")
	c.Assert(stderrors.Is(err, gateway.ErrUnavailable), qt.IsTrue)
}

func TestClientErrorsDoNotOpenBreaker(t *testing.T) {
	c := qt.New(t)
	srv := test.StartPortOneServer()
	defer srv.Close()
	client := newTestClient(srv, test.PortOneSecret)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := client.GetPayment(ctx, "missing")
		c.Assert(stderrors.Is(err, gateway.ErrUnavailable), qt.IsFalse)
	}
}

func TestErrorBodyDetail(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	for _, tc := range []struct {
		body   string
		detail string
	}{
		{`{"type":"PAYMENT_NOT_FOUND"}`, `{"type":"PAYMENT_NOT_FOUND"}`},
		{`[{"type":"INVALID_REQUEST"}]`, `[{"type":"INVALID_REQUEST"}]`},
		{`"oops"`, "Bad Request"},
		{`42`, "Bad Request"},
		{`<html>bad gateway</html>`, "Bad Request"},
		{``, "Bad Request"},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(tc.body))
		}))
		client := New(&Config{Secret: test.PortOneSecret, BaseURL: srv.URL})
		_, err := client.GetPayment(ctx, "payment-1")
		srv.Close()
		c.Assert(err, qt.ErrorMatches, `PortOne 결제 조회 실패 \(400\): `+regexp.QuoteMeta(tc.detail),
			qt.Commentf("body %q", tc.body))
	}
}

func TestSecretInfo(t *testing.T) {
	c := qt.New(t)
	client := New(&Config{})
	c.Assert(client.HasSecret(), qt.IsFalse)
	c.Assert(client.Secret().Step, qt.Equals, "load-portone-secret")
	c.Assert(client.Secret().EnvVar, qt.Equals, "PORTONE_API_SECRET")
}
