// Package subscriptions computes subscription periods and derives the
// subscription state of a customer from the payments ledger.
package subscriptions

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/vibecoding/magazine-backend/checklist"
	"github.com/vibecoding/magazine-backend/db"
)

const (
	// PeriodDays is the length of a paid period.
	PeriodDays = 30
	// GraceDays is how long a subscription stays active after its period ends.
	GraceDays = 1
	// ScheduleHour is the local hour at which the next charge is scheduled.
	ScheduleHour = 10
)

// State is the subscription state of a customer.
type State string

const (
	StateSubscribed State = "subscribed"
	StateFree       State = "free"
)

// Period holds the dates stored in a Paid ledger row.
type Period struct {
	StartAt        time.Time
	EndAt          time.Time
	EndGraceAt     time.Time
	NextScheduleAt time.Time
}

// NewPeriod returns the period of a payment made at now. The next charge is
// scheduled the day after the period ends, at ScheduleHour:minute in the
// location of now.
func NewPeriod(now time.Time, minute int) Period {
	end := now.AddDate(0, 0, PeriodDays)
	next := end.AddDate(0, 0, GraceDays)
	return Period{
		StartAt:        now,
		EndAt:          end,
		EndGraceAt:     end.AddDate(0, 0, GraceDays),
		NextScheduleAt: time.Date(next.Year(), next.Month(), next.Day(), ScheduleHour, minute, 0, 0, now.Location()),
	}
}

// RandomMinute returns a minute in [0, 60) used to spread the scheduled
// charges along the hour.
func RandomMinute() int {
	return rand.IntN(60)
}

// Status is the derived subscription state.
type Status struct {
	State          State      `json:"status"`
	TransactionKey string     `json:"transactionKey,omitempty"`
	ActiveUntil    *time.Time `json:"activeUntil,omitempty"`
}

// IsActive reports whether the row grants access at now: it must be a Paid
// row and now must be within [StartAt, EndGraceAt].
func IsActive(row *db.Payment, now time.Time) bool {
	return row.Status == db.PaymentStatusPaid &&
		!now.Before(row.StartAt) && !now.After(row.EndGraceAt)
}

// LatestByTransaction groups the rows by transaction key and keeps the most
// recent row of each group. Groups are returned from the most recently
// updated to the oldest.
func LatestByTransaction(rows []db.Payment) []db.Payment {
	latest := map[string]int{}
	var out []db.Payment
	for _, row := range rows {
		i, ok := latest[row.TransactionKey]
		if !ok {
			latest[row.TransactionKey] = len(out)
			out = append(out, row)
			continue
		}
		if row.CreatedAt.After(out[i].CreatedAt) {
			out[i] = row
		}
	}
	// stable selection sort by CreatedAt desc, the input is usually sorted
	// already
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Derive computes the subscription status from the rows of a customer and
// records each step in a checklist.
func Derive(rows []db.Payment, now time.Time) (*Status, *checklist.Checklist) {
	cl := checklist.New()
	cl.Pass("fetch-all-payments", fmt.Sprintf("payment 조회 성공 (총 %d건)", len(rows)))
	if len(rows) == 0 {
		cl.Pass("check-payment-records", "결제 레코드가 없음 - Free 상태")
		return &Status{State: StateFree}, cl
	}

	latest := LatestByTransaction(rows)
	cl.Pass("group-by-transaction-key", fmt.Sprintf("transaction_key로 그룹화 완료 (%d개 그룹)", len(latest)))

	var active []db.Payment
	for i := range latest {
		if IsActive(&latest[i], now) {
			active = append(active, latest[i])
		}
	}
	cl.Pass("filter-active-subscriptions", fmt.Sprintf("활성 구독 필터링 완료 (%d건)", len(active)))

	if len(active) == 0 {
		cl.Pass("set-subscription-status", "Free 상태 설정")
		return &Status{State: StateFree}, cl
	}
	until := active[0].EndGraceAt
	cl.Pass("set-subscription-status",
		fmt.Sprintf("구독중 상태 설정 (transaction_key: %s)", active[0].TransactionKey))
	return &Status{
		State:          StateSubscribed,
		TransactionKey: active[0].TransactionKey,
		ActiveUntil:    &until,
	}, cl
}

// PaymentStore is the ledger access needed to derive a status.
type PaymentStore interface {
	PaymentsByCustomer(customerID string) ([]db.Payment, error)
}

// Config holds the configuration for the subscriptions service.
type Config struct {
	DB  PaymentStore
	Now func() time.Time
}

// Subscriptions answers subscription status queries.
type Subscriptions struct {
	db  PaymentStore
	now func() time.Time
}

// New creates a new Subscriptions service.
func New(conf *Config) *Subscriptions {
	if conf == nil {
		return nil
	}
	now := conf.Now
	if now == nil {
		now = time.Now
	}
	return &Subscriptions{db: conf.DB, now: now}
}

// CustomerStatus derives the status of the customer from its ledger rows.
// On a storage failure the customer is reported as free together with the
// error and a failed handle-error step.
func (s *Subscriptions) CustomerStatus(customerID string) (*Status, *checklist.Checklist, error) {
	rows, err := s.db.PaymentsByCustomer(customerID)
	if err != nil {
		cl := checklist.New()
		cl.Fail("fetch-all-payments", fmt.Sprintf("payment 조회 실패: %v", err))
		cl.Fail("handle-error", "payment 상태 조회 중 오류가 발생했습니다.")
		return &Status{State: StateFree}, cl, err
	}
	status, cl := Derive(rows, s.now())
	return status, cl, nil
}
