// Package pgstore provides a PostgreSQL implementation of seen.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/herald/internal/postgres"
	"github.com/linnemanlabs/herald/internal/seen"
)

var tracer = otel.Tracer("github.com/linnemanlabs/herald/internal/seen/pgstore")

//go:embed schema.sql
var schema string

// advisoryLockKey identifies the run lease among other advisory locks.
const advisoryLockKey int64 = 0x68657261_6c64

// Store persists seen state in PostgreSQL as two ordered tables plus a
// single metadata row holding the revision.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx = postgres.WithOperation(ctx, strings.ToLower(name))
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Load reads the state in one repeatable-read snapshot.
func (s *Store) Load(ctx context.Context) (*seen.State, error) {
	ctx, span := startSpan(ctx, "pgstore.Load", "SELECT")
	defer span.End()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only

	st := &seen.State{}
	err = tx.QueryRow(ctx, `SELECT version, revision, updated_at FROM herald_seen_meta`).
		Scan(&st.Version, &st.Revision, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fail(span, seen.ErrNotInitialized)
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w: read meta: %w", seen.ErrCorrupt, err))
	}
	st.UpdatedAt = st.UpdatedAt.UTC()

	rows, err := tx.Query(ctx, `SELECT item_id FROM herald_seen_ids ORDER BY pos`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query ids: %w", err))
	}
	st.IDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w: scan ids: %w", seen.ErrCorrupt, err))
	}

	rows, err = tx.Query(ctx, `SELECT title, fingerprint, item_id, seen_at FROM herald_seen_titles ORDER BY pos`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query titles: %w", err))
	}
	st.Titles, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (seen.Title, error) {
		var t seen.Title
		err := row.Scan(&t.Title, &t.Fingerprint, &t.ID, &t.SeenAt)
		t.SeenAt = t.SeenAt.UTC()
		return t, err
	})
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w: scan titles: %w", seen.ErrCorrupt, err))
	}

	if err := st.Validate(); err != nil {
		return nil, fail(span, fmt.Errorf("%w: %w", seen.ErrCorrupt, err))
	}
	span.SetAttributes(
		attribute.Int("herald.seen.ids", len(st.IDs)),
		attribute.Int("herald.seen.titles", len(st.Titles)),
	)
	return st, nil
}

// Save rewrites both lists if the stored revision equals st.Revision.
func (s *Store) Save(ctx context.Context, st *seen.State) error {
	ctx, span := startSpan(ctx, "pgstore.Save", "UPSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	var rev int64
	err = tx.QueryRow(ctx, `SELECT revision FROM herald_seen_meta FOR UPDATE`).Scan(&rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return fail(span, seen.ErrNotInitialized)
	}
	if err != nil {
		return fail(span, fmt.Errorf("read revision: %w", err))
	}
	if rev != st.Revision {
		return fail(span, fmt.Errorf("%w: stored revision %d, state loaded at %d", seen.ErrConflict, rev, st.Revision))
	}

	if err := replaceLists(ctx, tx, st); err != nil {
		return fail(span, err)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE herald_seen_meta SET version = $1, revision = $2, updated_at = $3`,
		seen.CurrentVersion, rev+1, now,
	); err != nil {
		return fail(span, fmt.Errorf("update meta: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	st.Revision = rev + 1
	st.UpdatedAt = now
	return nil
}

func replaceLists(ctx context.Context, tx pgx.Tx, st *seen.State) error {
	if _, err := tx.Exec(ctx, `DELETE FROM herald_seen_ids`); err != nil {
		return fmt.Errorf("clear ids: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM herald_seen_titles`); err != nil {
		return fmt.Errorf("clear titles: %w", err)
	}

	_, err := tx.CopyFrom(ctx, pgx.Identifier{"herald_seen_ids"}, []string{"pos", "item_id"},
		pgx.CopyFromSlice(len(st.IDs), func(i int) ([]any, error) {
			return []any{i, st.IDs[i]}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy ids: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"herald_seen_titles"}, []string{"pos", "title", "fingerprint", "item_id", "seen_at"},
		pgx.CopyFromSlice(len(st.Titles), func(i int) ([]any, error) {
			t := st.Titles[i]
			return []any{i, t.Title, t.Fingerprint, t.ID, t.SeenAt}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy titles: %w", err)
	}
	return nil
}

// Reset empties both lists and creates the metadata row if needed.
func (s *Store) Reset(ctx context.Context) error {
	ctx, span := startSpan(ctx, "pgstore.Reset", "UPSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := replaceLists(ctx, tx, seen.New()); err != nil {
		return fail(span, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO herald_seen_meta (singleton, version, revision, updated_at)
		 VALUES (true, $1, 0, now())
		 ON CONFLICT (singleton) DO UPDATE SET
			version    = EXCLUDED.version,
			revision   = herald_seen_meta.revision + 1,
			updated_at = EXCLUDED.updated_at`,
		seen.CurrentVersion,
	); err != nil {
		return fail(span, fmt.Errorf("reset meta: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Lock takes a session advisory lock on a dedicated connection, which is
// held until the lease is released.
func (s *Store) Lock(ctx context.Context) (seen.Lease, error) {
	ctx, span := startSpan(ctx, "pgstore.Lock", "SELECT")
	defer span.End()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("acquire conn: %w", err))
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, advisoryLockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, fail(span, fmt.Errorf("try advisory lock: %w", err))
	}
	if !ok {
		conn.Release()
		return nil, fail(span, seen.ErrLocked)
	}
	return &lease{conn: conn}, nil
}

type lease struct {
	conn *pgxpool.Conn
}

func (l *lease) Release() error {
	if l.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
	if err != nil {
		// closing the session drops the lock with it
		_ = l.conn.Conn().Close(ctx)
	}
	l.conn.Release()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
