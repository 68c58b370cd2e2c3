package db

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentStatus is the status of a ledger row.
type PaymentStatus string

// ScheduleStatus is the status of a locally stored scheduled charge.
type ScheduleStatus string

// Payment is a row of the subscription ledger. Rows are never updated, a
// cancellation is recorded as a new row with the amount negated.
type Payment struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TransactionKey string             `json:"transactionKey" bson:"transactionKey"`
	CustomerID     string             `json:"customerId,omitempty" bson:"customerId,omitempty"`
	Amount         int64              `json:"amount" bson:"amount"`
	Status         PaymentStatus      `json:"status" bson:"status"`
	StartAt        time.Time          `json:"startAt" bson:"startAt"`
	EndAt          time.Time          `json:"endAt" bson:"endAt"`
	EndGraceAt     time.Time          `json:"endGraceAt" bson:"endGraceAt"`
	NextScheduleAt time.Time          `json:"nextScheduleAt" bson:"nextScheduleAt"`
	NextScheduleID string             `json:"nextScheduleId" bson:"nextScheduleId"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
}

// Cancellation returns the row that cancels p: same transaction, customer
// and period, negated amount.
func (p *Payment) Cancellation() *Payment {
	return &Payment{
		TransactionKey: p.TransactionKey,
		CustomerID:     p.CustomerID,
		Amount:         -p.Amount,
		Status:         PaymentStatusCancel,
		StartAt:        p.StartAt,
		EndAt:          p.EndAt,
		EndGraceAt:     p.EndGraceAt,
		NextScheduleAt: p.NextScheduleAt,
		NextScheduleID: p.NextScheduleID,
	}
}

// Magazine is a published article.
type Magazine struct {
	ID          string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Content     string    `json:"content" bson:"content"`
	Category    string    `json:"category" bson:"category"`
	ImageURL    string    `json:"imageUrl" bson:"imageUrl"`
	Tags        []string  `json:"tags" bson:"tags"`
	AuthorID    string    `json:"authorId,omitempty" bson:"authorId,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// MagazineFilter selects magazines. A zero Limit means DefaultMagazinesLimit.
type MagazineFilter struct {
	Category string
	Limit    int64
}

// Schedule is a charge scheduled by the service itself, used with gateways
// that do not support scheduled payments.
type Schedule struct {
	ID         string         `json:"id" bson:"_id"`
	PaymentID  string         `json:"paymentId" bson:"paymentId"`
	BillingKey string         `json:"billingKey" bson:"billingKey"`
	OrderName  string         `json:"orderName" bson:"orderName"`
	Amount     int64          `json:"amount" bson:"amount"`
	Currency   string         `json:"currency" bson:"currency"`
	CustomerID string         `json:"customerId" bson:"customerId"`
	TimeToPay  time.Time      `json:"timeToPay" bson:"timeToPay"`
	Status     ScheduleStatus `json:"status" bson:"status"`
	LastError  string         `json:"lastError,omitempty" bson:"lastError,omitempty"`
	CreatedAt  time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// ScheduleFilter selects schedules. Zero fields are ignored.
type ScheduleFilter struct {
	BillingKey string
	Status     ScheduleStatus
	From       time.Time
	Until      time.Time
}

// GatewayPayment links a payment id chosen by the service to the id the
// gateway gave to the object that charged it.
type GatewayPayment struct {
	PaymentID string    `json:"paymentId" bson:"_id"`
	GatewayID string    `json:"gatewayId" bson:"gatewayId"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
