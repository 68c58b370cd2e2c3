// Package scheduler executes the charges kept in the local schedule store,
// for gateways that cannot schedule payments themselves.
package scheduler

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/vibecoding/magazine-backend/db"
	"github.com/vibecoding/magazine-backend/gateway"
	"github.com/vibecoding/magazine-backend/metrics"
	"go.vocdoni.io/dvote/log"
)

// DefaultInterval is how often the store is polled for due charges.
const DefaultInterval = time.Minute

// FlowScheduledCharge is the metric label of the executed charges.
const FlowScheduledCharge = "scheduled-charge"

// Store gives access to the scheduled charges.
type Store interface {
	ClaimDueSchedule(now time.Time) (*db.Schedule, error)
	SetScheduleStatus(id string, status db.ScheduleStatus, lastError string) error
}

// Charger charges a billing key.
type Charger interface {
	PayWithBillingKey(ctx context.Context, paymentID string, p gateway.BillingKeyPayment) error
}

// Scheduler polls the store and charges every due schedule once. A charge
// that fails is marked FAILED and never retried.
type Scheduler struct {
	store    Store
	charger  Charger
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a scheduler. A zero interval uses DefaultInterval.
func New(store Store, charger Charger, interval time.Duration, m *metrics.Metrics) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:    store,
		charger:  charger,
		interval: interval,
		metrics:  m,
		now:      time.Now,
	}
}

// Start runs the polling loop until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Infow("payment scheduler started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infow("payment scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Warnw("scheduled charges run failed", "error", err)
			}
		}
	}
}

// RunOnce executes all the charges due now and returns how many were
// attempted.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	executed := 0
	for {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		schedule, err := s.store.ClaimDueSchedule(s.now())
		if stderrors.Is(err, db.ErrNotFound) {
			return executed, nil
		}
		if err != nil {
			return executed, err
		}
		executed++
		s.execute(ctx, schedule)
	}
}

func (s *Scheduler) execute(ctx context.Context, schedule *db.Schedule) {
	err := s.charger.PayWithBillingKey(ctx, schedule.PaymentID, gateway.BillingKeyPayment{
		BillingKey: schedule.BillingKey,
		OrderName:  schedule.OrderName,
		Amount:     schedule.Amount,
		Currency:   schedule.Currency,
		CustomerID: schedule.CustomerID,
	})
	status, lastError, result := db.ScheduleStatusSucceeded, "", metrics.ResultOK
	if err != nil {
		status, lastError, result = db.ScheduleStatusFailed, err.Error(), metrics.ResultError
		log.Warnw("scheduled charge failed",
			"scheduleId", schedule.ID, "paymentId", schedule.PaymentID, "error", err)
	} else {
		log.Infow("scheduled charge executed",
			"scheduleId", schedule.ID, "paymentId", schedule.PaymentID, "amount", schedule.Amount)
	}
	s.metrics.IncFlow(FlowScheduledCharge, result)
	if err := s.store.SetScheduleStatus(schedule.ID, status, lastError); err != nil {
		log.Errorw(err, "cannot update schedule status "+schedule.ID)
	}
}
