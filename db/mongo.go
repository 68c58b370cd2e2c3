package db

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.vocdoni.io/dvote/log"
)

// ResetDBEnv is the environment variable that, when set, drops the database
// on startup.
const ResetDBEnv = "MAGAZINE_MONGO_RESET_DB"

// MongoStorage uses an external MongoDB service for storing the payments
// ledger, the magazines and the locally scheduled charges.
type MongoStorage struct {
	DBClient *mongo.Client
	database string
	keysLock sync.RWMutex

	payments        *mongo.Collection
	magazines       *mongo.Collection
	schedules       *mongo.Collection
	gatewayPayments *mongo.Collection
	migrations      *mongo.Collection
}

func New(url, database string) (*MongoStorage, error) {
	if url == "" {
		return nil, fmt.Errorf("mongo URL is not defined")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database is not defined")
	}
	log.Infow("connecting to mongodb", "database", database)
	opts := options.Client()
	opts.ApplyURI(url)
	opts.SetMaxConnecting(200)
	timeout := time.Second * 10
	opts.ConnectTimeout = &timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	// check if the connection is successful
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ms := &MongoStorage{
		DBClient: client,
		database: database,
	}
	ms.initCollections()
	// if reset flag is enabled, Reset drops the database and runs the
	// migrations again, else just apply the pending ones
	if reset := os.Getenv(ResetDBEnv); reset != "" {
		if err := ms.Reset(); err != nil {
			return nil, err
		}
		return ms, nil
	}
	if err := ms.RunMigrationsUp(); err != nil {
		return nil, err
	}
	return ms, nil
}

func (ms *MongoStorage) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.DBClient.Disconnect(ctx); err != nil {
		log.Warn(err)
	}
}

// Reset drops the whole database and applies every migration again.
func (ms *MongoStorage) Reset() error {
	log.Infof("resetting database")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.DBClient.Database(ms.database).Drop(ctx); err != nil {
		return err
	}
	return ms.RunMigrationsUp()
}

// Ping checks that the database is reachable.
func (ms *MongoStorage) Ping(ctx context.Context) error {
	return ms.DBClient.Ping(ctx, readpref.Primary())
}
