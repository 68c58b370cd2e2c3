package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.vocdoni.io/dvote/log"
)

// listCollectionsInDB returns the names of the collections in the given database.
func listCollectionsInDB(ctx context.Context, database *mongo.Database) ([]string, error) {
	cursor, err := database.ListCollections(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("failed to close collections cursor", "error", err)
		}
	}()
	var collections []struct {
		Name string `bson:"name"`
	}
	if err := cursor.All(ctx, &collections); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(collections))
	for _, col := range collections {
		names = append(names, col.Name)
	}
	return names, nil
}
