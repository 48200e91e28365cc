// Package database establishes PostgreSQL connections for the sidereal services.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
)

// Open establishes a PostgreSQL connection using the provided DSN and verifies
// connectivity with a ping. The returned *sql.DB must be closed by the caller.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// OpenWithRetry opens a PostgreSQL connection, retrying the initial ping with
// exponential backoff up to maxElapsed. Used at process start where the
// database may still be coming up.
func OpenWithRetry(ctx context.Context, dsn string, maxElapsed time.Duration) (*sql.DB, error) {
	var db *sql.DB

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed

	operation := func() error {
		var err error
		db, err = Open(ctx, dsn)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return db, nil
}
