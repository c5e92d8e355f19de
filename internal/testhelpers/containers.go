// Package testhelpers starts throwaway Postgres, Redis and Firestore
// emulator containers for integration tests (go test -tags integration
// ./...). Docker is required.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcfirestore "github.com/testcontainers/testcontainers-go/modules/gcloud/firestore"
	"github.com/testcontainers/testcontainers-go/wait"

	"call-pipeline/pkg/utils"
)

const (
	postgresImage  = "postgres:16-alpine"
	redisImage     = "redis:7-alpine"
	firestoreImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:513.0.0-emulators"
)

// StartPostgres runs a Postgres container and returns an open *sql.DB.
// The container and pool are torn down via t.Cleanup.
func StartPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "calls",
			"POSTGRES_PASSWORD": "calls",
			"POSTGRES_DB":       "calls",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://calls:calls@%s:%s/calls?sslmode=disable", host, port.Port())

	db, err := utils.OpenPostgres(ctx, "pgx", dsn, utils.PostgresPoolConfig{MaxOpenConns: 5, PingTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// StartRedis runs a Redis container and returns a connected client.
func StartRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	addr, err := c.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// StartFirestore runs the Firestore emulator and returns a client opened the
// way the server opens one. FIRESTORE_EMULATOR_HOST is set for the test, so
// the test must not run in parallel with others.
func StartFirestore(t *testing.T) *firestore.Client {
	t.Helper()
	ctx := context.Background()

	c, err := tcfirestore.Run(ctx, firestoreImage)
	if err != nil {
		t.Fatalf("start firestore emulator: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	t.Setenv("FIRESTORE_EMULATOR_HOST", c.URI())
	client, err := utils.OpenFirestore(ctx, utils.FirestoreConfig{ProjectID: c.ProjectID()})
	if err != nil {
		t.Fatalf("open firestore: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
