// Package poolstore persists the post-scoring item pool of recent runs in a
// BadgerDB database so the override surface can browse and force-publish
// items after the run that produced them has exited.
package poolstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/herald/internal/alerting"
)

const (
	latestKey = "pool/latest"
	runPrefix = "pool/run/"
)

// DefaultTTL is how long a run's pool is retained.
const DefaultTTL = 7 * 24 * time.Hour

// Config describes where and how pools are stored.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory keeps everything in memory; used by tests and dry runs.
	InMemory bool

	// TTL bounds how long each pool is kept. Zero means DefaultTTL.
	TTL time.Duration

	Logger log.Logger
}

// Store is a BadgerDB-backed alerting.PoolStore.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

var _ alerting.PoolStore = (*Store)(nil)

// Open opens or creates the pool database.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("pool path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create pool directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{l: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open pool database: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePool stores p under its run ID and makes it the latest pool.
func (s *Store) SavePool(ctx context.Context, p *alerting.Pool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.RunID == "" {
		return errors.New("pool has no run id")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pool: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(badger.NewEntry([]byte(runPrefix+p.RunID), data).WithTTL(s.ttl)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(latestKey), []byte(p.RunID)).WithTTL(s.ttl))
	})
	if err != nil {
		return fmt.Errorf("save pool %s: %w", p.RunID, err)
	}
	return nil
}

// LatestPool returns the pool of the most recent saved run, or
// alerting.ErrNoPool when there is none.
func (s *Store) LatestPool(ctx context.Context) (*alerting.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var p *alerting.Pool
	err := s.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		runID, err := it.ValueCopy(nil)
		if err != nil {
			return err
		}
		p, err = getPool(txn, string(runID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, alerting.ErrNoPool
	}
	if err != nil {
		return nil, fmt.Errorf("load latest pool: %w", err)
	}
	return p, nil
}

// Pool returns the pool of a specific run.
func (s *Store) Pool(ctx context.Context, runID string) (*alerting.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var p *alerting.Pool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = getPool(txn, runID)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, alerting.ErrNoPool
	}
	if err != nil {
		return nil, fmt.Errorf("load pool %s: %w", runID, err)
	}
	return p, nil
}

// RunIDs lists the retained runs, oldest first.
func (s *Store) RunIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), runPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return ids, nil
}

// CollectGarbage runs one value-log GC pass. Having nothing to rewrite is
// not an error.
func (s *Store) CollectGarbage() error {
	if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("pool value log gc: %w", err)
	}
	return nil
}

func getPool(txn *badger.Txn, runID string) (*alerting.Pool, error) {
	it, err := txn.Get([]byte(runPrefix + runID))
	if err != nil {
		return nil, err
	}
	var p alerting.Pool
	err = it.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	})
	if err != nil {
		return nil, fmt.Errorf("decode pool %s: %w", runID, err)
	}
	return &p, nil
}

// badgerLogger routes badger's internal logging into the process logger.
type badgerLogger struct {
	l log.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(context.Background(), fmt.Errorf(format, args...), "badger error")
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.l.Info(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Debugf(string, ...any) {}
