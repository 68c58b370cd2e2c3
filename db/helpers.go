package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// collection names, the migrations create them with their validators
const (
	paymentsCollection        = "payments"
	magazinesCollection       = "magazines"
	schedulesCollection       = "schedules"
	gatewayPaymentsCollection = "gateway_payments"
	migrationsCollection      = "migrations"
)

// initCollections sets the collection handlers. The collections themselves
// are created by the migrations.
func (ms *MongoStorage) initCollections() {
	database := ms.DBClient.Database(ms.database)
	ms.payments = database.Collection(paymentsCollection)
	ms.magazines = database.Collection(magazinesCollection)
	ms.schedules = database.Collection(schedulesCollection)
	ms.gatewayPayments = database.Collection(gatewayPaymentsCollection)
	ms.migrations = database.Collection(migrationsCollection)
}

// defaultContext returns the context used by every storage method.
func defaultContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// findAll runs the query and decodes every document into out, which must be
// a pointer to a slice.
func findAll(ctx context.Context, collection *mongo.Collection, filter bson.M,
	opts *options.FindOptions, out any,
) error {
	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", collection.Name(), err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("error closing cursor", "error", err)
		}
	}()
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", collection.Name(), err)
	}
	return nil
}

// timeRange returns the filter for field between from and until. Zero bounds
// are ignored and a nil map means no bound at all.
func timeRange(from, until time.Time) bson.M {
	if from.IsZero() && until.IsZero() {
		return nil
	}
	r := bson.M{}
	if !from.IsZero() {
		r["$gte"] = from
	}
	if !until.IsZero() {
		r["$lte"] = until
	}
	return r
}
