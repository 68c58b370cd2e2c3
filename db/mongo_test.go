package db

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/vibecoding/magazine-backend/test"
)

var (
	testDB   *MongoStorage
	mongoURI string
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	// start a MongoDB container for testing
	dbContainer, err := test.StartMongoContainer(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to start MongoDB container: %v", err))
	}
	// get the MongoDB connection string
	mongoURI, err = dbContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		panic(fmt.Sprintf("failed to get MongoDB endpoint: %v", err))
	}
	testDB, err = New(mongoURI, test.RandomDatabaseName())
	if err != nil {
		panic(fmt.Sprintf("failed to create new MongoDB connection: %v", err))
	}

	code := m.Run()

	testDB.Close()
	if err := dbContainer.Terminate(ctx); err != nil {
		panic(fmt.Sprintf("failed to stop MongoDB container: %v", err))
	}
	os.Exit(code)
}

// resetDB drops every document between tests.
func resetDB(t *testing.T) {
	t.Helper()
	if err := testDB.Reset(); err != nil {
		t.Fatalf("failed to reset database: %v", err)
	}
}
