// Package testdb starts a migrated PostgreSQL container for integration tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/JaimeStill/headcount/internal/migrations"
)

const image = "postgres:16-alpine"

// Start returns a connection pool to a fresh, fully migrated database. The test
// is skipped under -short or when Docker is unavailable.
func Start(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	if err := dockerAvailable(ctx); err != nil {
		t.Skipf("docker not available: %v", err)
	}

	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("headcount_test"),
		postgres.WithUsername("headcount"),
		postgres.WithPassword("headcount"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Errorf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Up(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}

// testcontainers panics when the docker socket cannot be found.
func dockerAvailable(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("testcontainers panicked: %v", r)
		}
	}()

	cli, err := testcontainers.NewDockerClientWithOpts(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	_, err = cli.Ping(ctx)
	return err
}
