package billing

import (
	"context"
	stderrors "errors"
	"fmt"

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

// HandleNotification validates a webhook body and applies it.
func (s *Service) HandleNotification(ctx context.Context, body []byte) (*Response, *errors.Error) {
	cl := checklist.New()
	raw, err := decodeBody(body)
	if err != nil {
		return nil, s.unexpected(FlowNotification, err, cl)
	}
	n, detail := parseNotification(raw, cl)
	if n == nil {
		return nil, s.fail(FlowNotification, errors.ErrInvalidPaymentRequest.WithMessage(detail), cl)
	}
	return s.ProcessNotification(ctx, *n, cl)
}

// ProcessNotification applies an already validated notification. A Paid
// notification appends a ledger row and schedules the next charge, a
// Cancelled one appends the negated row and revokes the scheduled charge.
// Steps are appended to cl, a nil cl starts a new checklist.
func (s *Service) ProcessNotification(ctx context.Context, n Notification, cl *checklist.Checklist,
) (*Response, *errors.Error) {
	if cl == nil {
		cl = checklist.New()
	}
	log.Infow("processing payment notification", "paymentId", n.PaymentID, "status", n.Status)
	if apiErr := s.loadSecret(FlowNotification, cl); apiErr != nil {
		return nil, apiErr
	}

	key := eventstore.Key(n.PaymentID, n.Status)
	claimed := false
	if s.events != nil {
		state, err := s.events.Claim(ctx, key)
		switch {
		case err != nil:
			log.Warnw("could not claim notification", "key", key, "error", err)
		case state == eventstore.StateProcessed:
			cl.Skip("check-duplicate-notification",
				fmt.Sprintf("이미 처리된 알림입니다 (payment_id: %s, status: %s)", n.PaymentID, n.Status))
			s.metrics.IncFlow(FlowNotification, metrics.ResultOK)
			return success(cl, ""), nil
		case state == eventstore.StateInProgress:
			msg := fmt.Sprintf("처리 중인 알림입니다 (payment_id: %s, status: %s)", n.PaymentID, n.Status)
			cl.Fail("check-duplicate-notification", msg)
			return nil, s.fail(FlowNotification, errors.ErrNotificationInProgress.WithMessage(msg), cl)
		default:
			claimed = true
		}
	}

	res, apiErr := s.applyNotification(ctx, n, cl)
	if s.events != nil && claimed {
		if apiErr != nil {
			// let the gateway redeliver it
			if err := s.events.Release(ctx, key); err != nil {
				log.Warnw("could not release notification", "key", key, "error", err)
			}
		} else if err := s.events.MarkProcessed(ctx, key); err != nil {
			log.Warnw("could not mark notification as processed", "key", key, "error", err)
		}
	}
	return res, apiErr
}

// applyNotification fetches the payment from the gateway and applies the
// notification to the ledger.
func (s *Service) applyNotification(ctx context.Context, n Notification, cl *checklist.Checklist,
) (*Response, *errors.Error) {
	detail, err := s.gateway.GetPayment(ctx, n.PaymentID)
	if err != nil {
		cl.Fail("fetch-portone-payment", err.Error())
		cl.Fail("handle-fetch-payment-error", err.Error())
		return nil, s.fail(FlowNotification, errors.ErrGatewayFetchFailed, cl)
	}
	cl.Pass("fetch-portone-payment", "PortOne 결제 정보 조회 성공")

	if s.db == nil {
		cl.Fail("load-storage", errors.ErrStorageNotConfigured.Error())
		return nil, s.fail(FlowNotification, errors.ErrStorageNotConfigured, cl)
	}
	cl.Pass("load-storage", "저장소 연결 확인 완료")

	var apiErr *errors.Error
	if n.Status == StatusCancelled {
		apiErr = s.applyCancelled(ctx, n, detail, cl)
	} else {
		apiErr = s.applyPaid(ctx, n, detail, cl)
	}
	if apiErr != nil {
		return nil, apiErr
	}
	s.metrics.IncFlow(FlowNotification, metrics.ResultOK)
	return success(cl, ""), nil
}

// applyPaid records the payment and schedules the charge of the next period.
func (s *Service) applyPaid(ctx context.Context, n Notification, detail *gateway.Payment,
	cl *checklist.Checklist,
) *errors.Error {
	if detail.Amount <= 0 {
		msg := "PortOne 결제 정보에서 유효한 결제 금액을 확인할 수 없습니다."
		cl.Fail("validate-payment-amount", msg)
		return s.fail(FlowNotification, errors.ErrInvalidPaymentDetail.WithMessage(msg), cl)
	}
	if detail.BillingKey == "" || detail.OrderName == "" || detail.CustomerID == "" {
		msg := "PortOne 결제 정보에서 구독 예약에 필요한 필드를 확인할 수 없습니다."
		cl.Fail("validate-payment-detail", msg)
		return s.fail(FlowNotification, errors.ErrInvalidPaymentDetail.WithMessage(msg), cl)
	}

	period := subscriptions.NewPeriod(s.now(), s.randomMinute())
	row := &db.Payment{
		TransactionKey: n.PaymentID,
		CustomerID:     detail.CustomerID,
		Amount:         detail.Amount,
		Status:         db.PaymentStatusPaid,
		StartAt:        period.StartAt,
		EndAt:          period.EndAt,
		EndGraceAt:     period.EndGraceAt,
		NextScheduleAt: period.NextScheduleAt,
		NextScheduleID: s.newID(),
	}
	if err := s.db.InsertPayment(row); err != nil {
		msg := "payment 등록 실패: " + err.Error()
		cl.Fail("insert-payment-record", msg)
		cl.Fail("handle-storage-error", msg)
		return s.fail(FlowNotification, errors.ErrPaymentStoreFailed, cl)
	}
	cl.Pass("insert-payment-record", "payment 컬렉션 등록 성공")
	s.metrics.ObservePaymentAmount(string(row.Status), row.Amount)
	s.publish(ctx, events.TopicPaymentPaid, row, cl)

	if err := s.gateway.CreateSchedule(ctx, row.NextScheduleID, detail.BillingKeyPayment(), row.NextScheduleAt); err != nil {
		cl.Fail("schedule-next-subscription", err.Error())
		cl.Fail("handle-schedule-error", err.Error())
		return s.fail(FlowNotification, errors.ErrScheduleFailed, cl)
	}
	cl.Pass("schedule-next-subscription", "PortOne 다음달 구독 결제 예약 성공")
	cl.Pass("complete-subscription-flow", "구독 결제 완료 및 다음 결제 예약 처리 완료")
	log.Infow("subscription payment recorded",
		"transactionKey", row.TransactionKey,
		"nextScheduleId", row.NextScheduleID,
		"nextScheduleAt", row.NextScheduleAt)
	return nil
}

// applyCancelled records the cancellation and revokes the charge scheduled
// for the next period.
func (s *Service) applyCancelled(ctx context.Context, n Notification, detail *gateway.Payment,
	cl *checklist.Checklist,
) *errors.Error {
	cancelErr := func(step, msg string) *errors.Error {
		cl.Fail(step, msg)
		cl.Fail("handle-cancellation-error", msg)
		return s.fail(FlowNotification, errors.ErrCancellationFailed, cl)
	}

	record, err := s.db.LatestPayment(n.PaymentID)
	if err != nil {
		reason := err.Error()
		if stderrors.Is(err, db.ErrNotFound) {
			reason = "레코드를 찾을 수 없습니다"
		}
		return cancelErr("query-payment-record", "payment 조회 실패: "+reason)
	}
	cl.Pass("query-payment-record", "payment 컬렉션 조회 성공")

	cancellation := record.Cancellation()
	if err := s.db.InsertPayment(cancellation); err != nil {
		return cancelErr("insert-cancellation-record", "취소 레코드 등록 실패: "+err.Error())
	}
	cl.Pass("insert-cancellation-record", "취소 레코드 등록 성공")
	s.metrics.ObservePaymentAmount(string(cancellation.Status), cancellation.Amount)
	s.publish(ctx, events.TopicPaymentCancelled, cancellation, cl)

	schedules, err := s.gateway.ListSchedules(ctx, gateway.ScheduleFilter{
		BillingKey: detail.BillingKey,
		From:       record.NextScheduleAt.AddDate(0, 0, -1),
		Until:      record.NextScheduleAt.AddDate(0, 0, 1),
	})
	if err != nil {
		return cancelErr("query-scheduled-payments", err.Error())
	}
	cl.Pass("query-scheduled-payments", "PortOne 예약 결제 조회 성공")

	var match *gateway.Schedule
	for i := range schedules {
		if schedules[i].PaymentID == record.NextScheduleID {
			match = &schedules[i]
			break
		}
	}
	if match == nil {
		return cancelErr("find-matching-schedule", "일치하는 예약 결제를 찾을 수 없습니다.")
	}
	cl.Pass("find-matching-schedule", "예약 결제 ID 발견: "+match.ID)

	if err := s.gateway.DeleteSchedules(ctx, detail.BillingKey, []string{match.ID}); err != nil {
		return cancelErr("delete-scheduled-payments", err.Error())
	}
	cl.Pass("delete-scheduled-payments", "PortOne 예약 결제 삭제 성공")
	cl.Pass("complete-cancellation-flow", "구독 취소 처리 완료")
	log.Infow("subscription cancelled",
		"transactionKey", record.TransactionKey, "scheduleId", match.ID)
	return nil
}

// publish sends the ledger change to the publisher, if any. A failure is
// recorded and logged but does not stop the flow.
func (s *Service) publish(ctx context.Context, topic string, row *db.Payment, cl *checklist.Checklist) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.PaymentEvent{
		Topic:          topic,
		TransactionKey: row.TransactionKey,
		CustomerID:     row.CustomerID,
		Amount:         row.Amount,
		Status:         string(row.Status),
		EndGraceAt:     row.EndGraceAt,
		OccurredAt:     s.now(),
	})
	if err != nil {
		log.Warnw("could not publish payment event", "topic", topic, "error", err)
		cl.Fail("publish-payment-event", "이벤트 발행 실패: "+err.Error())
		return
	}
	cl.Pass("publish-payment-event", topic+" 이벤트 발행 완료")
}
