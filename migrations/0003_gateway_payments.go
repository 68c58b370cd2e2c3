package migrations

import (
	"context"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	AddMigration(3, "gateway_payments", upGatewayPayments, downGatewayPayments)
}

var gatewayPaymentsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "gatewayId"},
		"properties": bson.M{
			"gatewayId": bson.M{
				"bsonType":    "string",
				"description": "the id given by the gateway must be a string and is required",
				"minLength":   1,
			},
		},
	},
}

func upGatewayPayments(ctx context.Context, database *mongo.Database) error {
	current, err := listCollectionsInDB(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to get current collections: %w", err)
	}
	if slices.Contains(current, "gateway_payments") {
		return nil
	}
	opts := options.CreateCollection().
		SetValidator(gatewayPaymentsCollectionValidator).
		SetValidationLevel("strict").
		SetValidationAction("error")
	if err := database.CreateCollection(ctx, "gateway_payments", opts); err != nil {
		return fmt.Errorf("failed to create collection gateway_payments: %w", err)
	}
	return nil
}

func downGatewayPayments(ctx context.Context, database *mongo.Database) error {
	return database.Collection("gateway_payments").Drop(ctx)
}
