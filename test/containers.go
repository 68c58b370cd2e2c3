// Package test provides testing utilities for the magazine backend, including
// test containers for MongoDB and Redis and a fake PortOne API.
package test

import (
	"context"
	"fmt"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.vocdoni.io/dvote/util"
)

const (
	// MongoPort is the port exposed by the MongoDB test container.
	MongoPort = "27017/tcp"
	// RedisPort is the port exposed by the Redis test container.
	RedisPort = "6379/tcp"
)

// StartMongoContainer starts a MongoDB container. Use
// container.Endpoint(ctx, "mongodb") to get the connection string.
func StartMongoContainer(ctx context.Context) (testcontainers.Container, error) {
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{MongoPort},
				WaitingFor: wait.ForAll(
					wait.ForLog("Waiting for connections"),
					wait.ForListeningPort(nat.Port(MongoPort)),
				),
			},
			Started: true,
		})
}

// StartRedisContainer starts a Redis container and returns it together with
// its host:port address.
func StartRedisContainer(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{RedisPort},
				WaitingFor:   wait.ForListeningPort(nat.Port(RedisPort)),
			},
			Started: true,
		})
	if err != nil {
		return nil, "", err
	}
	addr, err := container.PortEndpoint(ctx, nat.Port(RedisPort), "")
	if err != nil {
		return container, "", fmt.Errorf("failed to get redis endpoint: %w", err)
	}
	return container, addr, nil
}

// RandomDatabaseName returns a unique database name so tests sharing a
// container do not interfere.
func RandomDatabaseName() string {
	return "magazine-test-" + util.RandomHex(8)
}
