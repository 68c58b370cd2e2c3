package db

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetGatewayPaymentID records the gateway id of the payment, replacing any
// previous one.
func (ms *MongoStorage) SetGatewayPaymentID(paymentID, gatewayID string) error {
	if paymentID == "" || gatewayID == "" {
		return ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := defaultContext()
	defer cancel()

	doc := &GatewayPayment{PaymentID: paymentID, GatewayID: gatewayID, UpdatedAt: time.Now()}
	opts := options.Replace().SetUpsert(true)
	_, err := ms.gatewayPayments.ReplaceOne(ctx, bson.M{"_id": paymentID}, doc, opts)
	return err
}

// GatewayPaymentID returns the gateway id recorded for the payment.
func (ms *MongoStorage) GatewayPaymentID(paymentID string) (string, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := defaultContext()
	defer cancel()

	doc := &GatewayPayment{}
	if err := ms.gatewayPayments.FindOne(ctx, bson.M{"_id": paymentID}).Decode(doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", err
	}
	return doc.GatewayID, nil
}
