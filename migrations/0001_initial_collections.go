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
	AddMigration(1, "initial_collections", upInitialCollections, downInitialCollections)
}

var collectionsToCreate = []string{
	"payments",
	"magazines",
	"schedules",
	"migrations",
}

var collectionsValidators = map[string]bson.M{
	"payments":  paymentsCollectionValidator,
	"magazines": magazinesCollectionValidator,
	"schedules": schedulesCollectionValidator,
}

var paymentsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"transactionKey", "amount", "status", "createdAt"},
		"properties": bson.M{
			"transactionKey": bson.M{
				"bsonType":    "string",
				"description": "the gateway payment id must be a string and is required",
				"minLength":   1,
			},
			"amount": bson.M{
				"bsonType":    []string{"int", "long"},
				"description": "must be an integer, negative for cancellations",
			},
			"status": bson.M{
				"enum":        []string{"Paid", "Cancel"},
				"description": "must be Paid or Cancel",
			},
			"createdAt": bson.M{
				"bsonType":    "date",
				"description": "must be a date and is required",
			},
		},
	},
}

var magazinesCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "title", "category", "createdAt"},
		"properties": bson.M{
			"title": bson.M{
				"bsonType":    "string",
				"description": "must be a string and is required",
				"minLength":   1,
			},
			"category": bson.M{
				"enum":        []string{"frontend", "backend", "devops", "ai", "mobile", "etc"},
				"description": "must be one of the magazine categories",
			},
			"tags": bson.M{
				"bsonType":    []string{"array", "null"},
				"description": "must be an array of strings or null",
			},
		},
	},
}

var schedulesCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "paymentId", "billingKey", "timeToPay", "status"},
		"properties": bson.M{
			"paymentId": bson.M{
				"bsonType":    "string",
				"description": "must be a string and is required",
			},
			"billingKey": bson.M{
				"bsonType":    "string",
				"description": "must be a string and is required",
			},
			"timeToPay": bson.M{
				"bsonType":    "date",
				"description": "must be a date and is required",
			},
			"status": bson.M{
				"enum":        []string{"SCHEDULED", "STARTED", "SUCCEEDED", "FAILED", "REVOKED"},
				"description": "must be a valid schedule status",
			},
		},
	},
}

func upInitialCollections(ctx context.Context, database *mongo.Database) error {
	// get the current collections names to create only the missing ones
	currentCollections, err := listCollectionsInDB(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to get current collections: %w", err)
	}
	for _, name := range collectionsToCreate {
		validator, hasValidator := collectionsValidators[name]
		if slices.Contains(currentCollections, name) {
			// keep the validator of existing collections up to date
			if hasValidator {
				if err := database.RunCommand(ctx, bson.D{
					{Key: "collMod", Value: name},
					{Key: "validator", Value: validator},
				}).Err(); err != nil {
					return fmt.Errorf("failed to update %s validator: %w", name, err)
				}
			}
			continue
		}
		opts := options.CreateCollection()
		if hasValidator {
			opts = opts.SetValidator(validator).SetValidationLevel("strict").SetValidationAction("error")
		}
		if err := database.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

// downInitialCollections does nothing, dropping the ledger is never an
// acceptable rollback.
func downInitialCollections(context.Context, *mongo.Database) error {
	return nil
}
