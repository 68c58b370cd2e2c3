package db

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func newTestPayment(key string, amount int64) *Payment {
	start := time.Now().Truncate(time.Millisecond)
	end := start.AddDate(0, 0, 30)
	return &Payment{
		TransactionKey: key,
		CustomerID:     "customer-1",
		Amount:         amount,
		Status:         PaymentStatusPaid,
		StartAt:        start,
		EndAt:          end,
		EndGraceAt:     end.AddDate(0, 0, 1),
		NextScheduleAt: end.AddDate(0, 0, 1),
		NextScheduleID: "next-" + key,
	}
}

func TestInsertPayment(t *testing.T) {
	c := qt.New(t)
	resetDB(t)

	c.Assert(testDB.InsertPayment(nil), qt.Equals, ErrInvalidData)
	c.Assert(testDB.InsertPayment(&Payment{Status: PaymentStatusPaid}), qt.Equals, ErrInvalidData)

	payment := newTestPayment("tx-1", 9900)
	c.Assert(testDB.InsertPayment(payment), qt.IsNil)
	c.Assert(payment.ID.IsZero(), qt.IsFalse)
	c.Assert(payment.CreatedAt.IsZero(), qt.IsFalse)

	latest, err := testDB.LatestPayment("tx-1")
	c.Assert(err, qt.IsNil)
	c.Assert(latest.ID, qt.Equals, payment.ID)
	c.Assert(latest.Amount, qt.Equals, int64(9900))
	c.Assert(latest.Status, qt.Equals, PaymentStatusPaid)
	c.Assert(latest.EndGraceAt.Equal(payment.EndGraceAt), qt.IsTrue)
	c.Assert(latest.NextScheduleID, qt.Equals, "next-tx-1")

	_, err = testDB.LatestPayment("unknown")
	c.Assert(err, qt.Equals, ErrNotFound)
	_, err = testDB.LatestPayment("")
	c.Assert(err, qt.Equals, ErrInvalidData)
}

func TestLedgerIsAppendOnly(t *testing.T) {
	c := qt.New(t)
	resetDB(t)

	paid := newTestPayment("tx-1", 9900)
	c.Assert(testDB.InsertPayment(paid), qt.IsNil)

	// the cancellation is inserted right after, possibly in the same
	// millisecond, and must still be the latest row
	cancel := paid.Cancellation()
	c.Assert(testDB.InsertPayment(cancel), qt.IsNil)

	latest, err := testDB.LatestPayment("tx-1")
	c.Assert(err, qt.IsNil)
	c.Assert(latest.Status, qt.Equals, PaymentStatusCancel)
	c.Assert(latest.Amount, qt.Equals, int64(-9900))
	c.Assert(latest.NextScheduleID, qt.Equals, paid.NextScheduleID)
	c.Assert(latest.StartAt.Equal(paid.StartAt), qt.IsTrue)

	rows, err := testDB.PaymentsByTransaction("tx-1")
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 2)
	c.Assert(rows[0].Status, qt.Equals, PaymentStatusCancel)
	c.Assert(rows[1].Status, qt.Equals, PaymentStatusPaid)
}

func TestPaymentsByCustomer(t *testing.T) {
	c := qt.New(t)
	resetDB(t)

	c.Assert(testDB.InsertPayment(newTestPayment("tx-1", 9900)), qt.IsNil)
	c.Assert(testDB.InsertPayment(newTestPayment("tx-2", 9900)), qt.IsNil)
	other := newTestPayment("tx-3", 9900)
	other.CustomerID = "customer-2"
	c.Assert(testDB.InsertPayment(other), qt.IsNil)

	rows, err := testDB.PaymentsByCustomer("customer-1")
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 2)
	c.Assert(rows[0].TransactionKey, qt.Equals, "tx-2")

	rows, err = testDB.PaymentsByCustomer("nobody")
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 0)

	_, err = testDB.PaymentsByCustomer("")
	c.Assert(err, qt.Equals, ErrInvalidData)
}
