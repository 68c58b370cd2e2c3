package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vibecoding/magazine-backend/migrations"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// MigrationRecord represents a migration record stored in MongoDB
type MigrationRecord struct {
	Version   int       `bson:"version"`
	AppliedAt time.Time `bson:"applied_at"`
}

// RunMigrationsUp applies, in order, every registered migration newer than
// the last one recorded in the database.
func (ms *MongoStorage) RunMigrationsUp() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	current, err := ms.lastAppliedMigration(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}
	migs := migrations.SortedByVersionAsc()
	if len(migs) == 0 || migs[len(migs)-1].Version <= current {
		log.Debugw("database is up-to-date", "version", current)
		return nil
	}

	log.Infow("starting database migrations", "available", len(migs), "current", current)
	database := ms.DBClient.Database(ms.database)
	for _, mig := range migs {
		if mig.Version <= current {
			continue
		}
		log.Infow("applying migration", "version", mig.Version, "name", mig.Name)
		if err := mig.Up(ctx, database); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		if _, err := ms.migrations.InsertOne(ctx, MigrationRecord{
			Version:   mig.Version,
			AppliedAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", mig.Version, err)
		}
	}
	log.Infow("database migrations completed")
	return nil
}

// RunMigrationsDown rolls back the last steps migrations. A non positive
// steps rolls back every applied migration.
func (ms *MongoStorage) RunMigrationsDown(steps int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	current, err := ms.lastAppliedMigration(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}
	if steps <= 0 || steps > current {
		steps = current
	}
	registry := migrations.AsMap()
	database := ms.DBClient.Database(ms.database)
	for version := current; version > current-steps; version-- {
		mig, ok := registry[version]
		if !ok {
			return fmt.Errorf("migration %d not found in registry", version)
		}
		log.Infow("rolling back migration", "version", mig.Version, "name", mig.Name)
		if err := mig.Down(ctx, database); err != nil {
			return fmt.Errorf("failed to rollback migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		if _, err := ms.migrations.DeleteOne(ctx, bson.M{"version": version}); err != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", version, err)
		}
	}
	return nil
}

// lastAppliedMigration returns the highest applied migration version, 0 if
// none was applied.
func (ms *MongoStorage) lastAppliedMigration(ctx context.Context) (int, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var record MigrationRecord
	if err := ms.migrations.FindOne(ctx, bson.M{}, opts).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}
	return record.Version, nil
}
