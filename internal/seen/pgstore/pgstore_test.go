package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/herald/internal/postgres"
	"github.com/linnemanlabs/herald/internal/seen"
	"github.com/linnemanlabs/herald/internal/seen/pgstore"
	"github.com/linnemanlabs/herald/internal/seen/seentest"
)

func openPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("HERALD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HERALD_TEST_DATABASE_URL not set, skipping integration test")
	}
	pool, err := postgres.NewPool(context.Background(), dsn, postgres.WithMaxConns(8))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestStore_Contract(t *testing.T) {
	pool := openPool(t)

	seentest.Run(t, func(t *testing.T) seen.Store {
		ctx := context.Background()
		s, err := pgstore.New(ctx, pool)
		if err != nil {
			t.Fatalf("pgstore.New: %v", err)
		}
		for _, table := range []string{"herald_seen_meta", "herald_seen_ids", "herald_seen_titles"} {
			if _, err := pool.Exec(ctx, "DELETE FROM "+table); err != nil {
				t.Fatalf("clear %s: %v", table, err)
			}
		}
		return s
	})
}

func TestNew_SchemaIdempotent(t *testing.T) {
	pool := openPool(t)
	ctx := context.Background()

	for range 2 {
		if _, err := pgstore.New(ctx, pool); err != nil {
			t.Fatalf("pgstore.New: %v", err)
		}
	}
}
