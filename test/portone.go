package test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// PortOneSecret is the API secret accepted by the fake PortOne server.
const PortOneSecret = "test-portone-secret"

// PortOnePayment is a payment known by the fake PortOne server.
type PortOnePayment struct {
	ID         string
	Status     string
	BillingKey string
	OrderName  string
	Amount     int64
	CustomerID string
}

// PortOneSchedule is a schedule known by the fake PortOne server.
type PortOneSchedule struct {
	ID         string
	PaymentID  string
	BillingKey string
	OrderName  string
	Amount     int64
	CustomerID string
	TimeToPay  time.Time
	Status     string
}

// PortOneServer is an in-memory fake of the PortOne REST API. Failures can be
// injected per operation with Fail.
type PortOneServer struct {
	*httptest.Server

	mtx       sync.Mutex
	payments  map[string]*PortOnePayment
	schedules map[string]*PortOneSchedule
	failures  map[string]int
	nextID    int
}

// Fake PortOne operations that can be made to fail.
const (
	PortOneOpPay            = "pay"
	PortOneOpCancel         = "cancel"
	PortOneOpGet            = "get"
	PortOneOpSchedule       = "schedule"
	PortOneOpListSchedules  = "list-schedules"
	PortOneOpDeleteSchedule = "delete-schedules"
)

// StartPortOneServer starts the fake server. Close it when done.
func StartPortOneServer() *PortOneServer {
	s := &PortOneServer{
		payments:  map[string]*PortOnePayment{},
		schedules: map[string]*PortOneSchedule{},
		failures:  map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/", s.handlePayments)
	mux.HandleFunc("/payment-schedules", s.handleSchedules)
	s.Server = httptest.NewServer(s.auth(mux))
	return s
}

// Fail makes the next request of op answer with the given HTTP status.
func (s *PortOneServer) Fail(op string, status int) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.failures[op] = status
}

// AddPayment registers a payment so it can be fetched.
func (s *PortOneServer) AddPayment(p PortOnePayment) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	cp := p
	s.payments[p.ID] = &cp
}

// Payment returns a copy of the payment with the given id.
func (s *PortOneServer) Payment(id string) (PortOnePayment, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return PortOnePayment{}, false
	}
	return *p, true
}

// Schedules returns a copy of the active schedules.
func (s *PortOneServer) Schedules() []PortOneSchedule {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := []PortOneSchedule{}
	for _, sc := range s.schedules {
		if sc.Status == "SCHEDULED" {
			out = append(out, *sc)
		}
	}
	return out
}

func (s *PortOneServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "PortOne "+PortOneSecret {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"type": "UNAUTHORIZED", "message": "invalid secret"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *PortOneServer) failure(op string) (int, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	status, ok := s.failures[op]
	if ok {
		delete(s.failures, op)
	}
	return status, ok
}

type fakePaymentBody struct {
	BillingKey string `json:"billingKey"`
	OrderName  string `json:"orderName"`
	Amount     struct {
		Total int64 `json:"total"`
	} `json:"amount"`
	Customer struct {
		ID string `json:"id"`
	} `json:"customer"`
	Currency string `json:"currency"`
}

func (s *PortOneServer) handlePayments(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/payments/"), "/")
	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	switch {
	case r.Method == http.MethodPost && action == "billing-key":
		if status, ok := s.failure(PortOneOpPay); ok {
			writeJSON(w, status, map[string]string{"type": "PG_PROVIDER", "message": "card declined"})
			return
		}
		var body fakePaymentBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"type": "INVALID_REQUEST"})
			return
		}
		s.AddPayment(PortOnePayment{
			ID: id, Status: "PAID", BillingKey: body.BillingKey, OrderName: body.OrderName,
			Amount: body.Amount.Total, CustomerID: body.Customer.ID,
		})
		writeJSON(w, http.StatusOK, map[string]any{"payment": map[string]string{"pgTxId": "pg-" + id}})
	case r.Method == http.MethodPost && action == "cancel":
		if status, ok := s.failure(PortOneOpCancel); ok {
			writeJSON(w, status, map[string]string{"type": "PAYMENT_NOT_PAID"})
			return
		}
		s.mtx.Lock()
		p, ok := s.payments[id]
		if ok {
			p.Status = "CANCELLED"
		}
		s.mtx.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"type": "PAYMENT_NOT_FOUND"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cancellation": map[string]string{"status": "SUCCEEDED"}})
	case r.Method == http.MethodPost && action == "schedule":
		if status, ok := s.failure(PortOneOpSchedule); ok {
			writeJSON(w, status, map[string]string{"type": "INVALID_REQUEST"})
			return
		}
		var body struct {
			Payment   fakePaymentBody `json:"payment"`
			TimeToPay time.Time       `json:"timeToPay"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"type": "INVALID_REQUEST"})
			return
		}
		s.mtx.Lock()
		s.nextID++
		scheduleID := fmt.Sprintf("schedule-%d", s.nextID)
		s.schedules[scheduleID] = &PortOneSchedule{
			ID: scheduleID, PaymentID: id, BillingKey: body.Payment.BillingKey,
			OrderName: body.Payment.OrderName, Amount: body.Payment.Amount.Total,
			CustomerID: body.Payment.Customer.ID, TimeToPay: body.TimeToPay, Status: "SCHEDULED",
		}
		s.mtx.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"schedule": map[string]string{"id": scheduleID}})
	case r.Method == http.MethodGet && action == "":
		if status, ok := s.failure(PortOneOpGet); ok {
			writeJSON(w, status, map[string]string{"type": "PAYMENT_NOT_FOUND"})
			return
		}
		p, ok := s.Payment(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"type": "PAYMENT_NOT_FOUND"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":         p.ID,
			"status":     p.Status,
			"billingKey": p.BillingKey,
			"orderName":  p.OrderName,
			"amount":     map[string]int64{"total": p.Amount},
			"customer":   map[string]string{"id": p.CustomerID},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *PortOneServer) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if status, ok := s.failure(PortOneOpListSchedules); ok {
			writeJSON(w, status, map[string]string{"type": "INVALID_REQUEST"})
			return
		}
		var body struct {
			Filter struct {
				BillingKey string    `json:"billingKey"`
				From       time.Time `json:"from"`
				Until      time.Time `json:"until"`
			} `json:"filter"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"type": "INVALID_REQUEST"})
			return
		}
		items := []map[string]string{}
		for _, sc := range s.Schedules() {
			if body.Filter.BillingKey != "" && sc.BillingKey != body.Filter.BillingKey {
				continue
			}
			if !body.Filter.From.IsZero() && sc.TimeToPay.Before(body.Filter.From) {
				continue
			}
			if !body.Filter.Until.IsZero() && sc.TimeToPay.After(body.Filter.Until) {
				continue
			}
			items = append(items, map[string]string{
				"id":        sc.ID,
				"paymentId": sc.PaymentID,
				"status":    sc.Status,
				"timeToPay": sc.TimeToPay.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodDelete:
		if status, ok := s.failure(PortOneOpDeleteSchedule); ok {
			writeJSON(w, status, map[string]string{"type": "INVALID_REQUEST"})
			return
		}
		var body struct {
			BillingKey  string   `json:"billingKey"`
			ScheduleIDs []string `json:"scheduleIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"type": "INVALID_REQUEST"})
			return
		}
		s.mtx.Lock()
		revoked := []string{}
		for _, id := range body.ScheduleIDs {
			if sc, ok := s.schedules[id]; ok && sc.Status == "SCHEDULED" {
				sc.Status = "REVOKED"
				revoked = append(revoked, id)
			}
		}
		s.mtx.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"revokedScheduleIds": revoked})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
