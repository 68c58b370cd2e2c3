package migrations

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	AddMigration(2, "initial_indexes", upInitialIndexes, downInitialIndexes)
}

var initialIndexes = map[string][]mongo.IndexModel{
	"payments": {
		// latest row of a transaction
		{
			Keys:    bson.D{{Key: "transactionKey", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("transactionKey_createdAt"),
		},
		// subscription status of a customer
		{
			Keys:    bson.D{{Key: "customerId", Value: 1}},
			Options: options.Index().SetName("customerId").SetSparse(true),
		},
	},
	"magazines": {
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("category_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt"),
		},
	},
	"schedules": {
		// a payment id can only be scheduled once
		{
			Keys:    bson.D{{Key: "paymentId", Value: 1}},
			Options: options.Index().SetName("paymentId").SetUnique(true),
		},
		// due schedules lookup
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "timeToPay", Value: 1}},
			Options: options.Index().SetName("status_timeToPay"),
		},
		{
			Keys:    bson.D{{Key: "billingKey", Value: 1}, {Key: "timeToPay", Value: 1}},
			Options: options.Index().SetName("billingKey_timeToPay"),
		},
	},
}

func upInitialIndexes(ctx context.Context, database *mongo.Database) error {
	for name, indexes := range initialIndexes {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

func downInitialIndexes(ctx context.Context, database *mongo.Database) error {
	for name, indexes := range initialIndexes {
		for _, index := range indexes {
			if _, err := database.Collection(name).Indexes().DropOne(ctx, *index.Options.Name); err != nil {
				return fmt.Errorf("failed to drop index %s on %s: %w", *index.Options.Name, name, err)
			}
		}
	}
	return nil
}
