package db

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// latestFirst sorts ledger rows from the newest to the oldest. The _id breaks
// ties between rows created in the same millisecond.
var latestFirst = bson.D{
	{Key: "createdAt", Value: -1},
	{Key: "_id", Value: -1},
}

// InsertPayment appends a row to the ledger. It sets the row ID and, if
// empty, its creation time. Rows are never updated afterwards.
func (ms *MongoStorage) InsertPayment(payment *Payment) error {
	if payment == nil || payment.TransactionKey == "" || payment.Status == "" {
		return ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := defaultContext()
	defer cancel()

	payment.ID = primitive.NewObjectID()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	if _, err := ms.payments.InsertOne(ctx, payment); err != nil {
		return err
	}
	return nil
}

// LatestPayment returns the most recent ledger row of the transaction.
func (ms *MongoStorage) LatestPayment(transactionKey string) (*Payment, error) {
	if transactionKey == "" {
		return nil, ErrInvalidData
	}
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := defaultContext()
	defer cancel()

	payment := &Payment{}
	opts := options.FindOne().SetSort(latestFirst)
	err := ms.payments.FindOne(ctx, bson.M{"transactionKey": transactionKey}, opts).Decode(payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return payment, nil
}

// PaymentsByTransaction returns every row of the transaction, newest first.
func (ms *MongoStorage) PaymentsByTransaction(transactionKey string) ([]Payment, error) {
	return ms.findPayments(bson.M{"transactionKey": transactionKey})
}

// PaymentsByCustomer returns every row of the customer, newest first.
func (ms *MongoStorage) PaymentsByCustomer(customerID string) ([]Payment, error) {
	if customerID == "" {
		return nil, ErrInvalidData
	}
	return ms.findPayments(bson.M{"customerId": customerID})
}

func (ms *MongoStorage) findPayments(filter bson.M) ([]Payment, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := defaultContext()
	defer cancel()

	payments := []Payment{}
	if err := findAll(ctx, ms.payments, filter, options.Find().SetSort(latestFirst), &payments); err != nil {
		return nil, err
	}
	return payments, nil
}
