package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testDBOnce sync.Once
	testDBConn string
	testDBErr  error
)

// newTestPool starts one postgres container per test binary, applies the
// migrations once and returns a fresh pool. Tests isolate their data with
// random tenant and user identifiers.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	testDBOnce.Do(func() {
		testDBConn, testDBErr = startTestDatabase()
	})
	if testDBErr != nil {
		t.Fatalf("start test database: %v", testDBErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, PoolConfig{ConnString: testDBConn})
	if err != nil {
		t.Fatalf("create test pool: %v", err)
	}
	t.Cleanup(func() { ClosePool(pool) })
	return pool
}

func startTestDatabase() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("directory"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	if err != nil {
		return "", fmt.Errorf("run postgres container: %w", err)
	}

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return "", fmt.Errorf("container connection string: %w", err)
	}

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	if err != nil {
		return "", err
	}
	defer ClosePool(pool)

	if _, err := Migrate(ctx, pool); err != nil {
		return "", err
	}
	return connString, nil
}
