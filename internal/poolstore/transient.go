package poolstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/linnemanlabs/herald/internal/alerting"
)

// Transient opens the database for each call and closes it again, so a
// long-running reader such as the override API does not hold badger's
// directory lock while a scheduled run needs to write the next pool.
// Calls are serialized within the process.
type Transient struct {
	mu  sync.Mutex
	cfg Config
}

var _ alerting.PoolStore = (*Transient)(nil)

// NewTransient returns a Transient for a persistent store at cfg.Path.
func NewTransient(cfg Config) *Transient {
	return &Transient{cfg: cfg}
}

func (t *Transient) with(fn func(*Store) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := Open(t.cfg)
	if err != nil {
		return err
	}
	err = fn(s)
	if cerr := s.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close pool database: %w", cerr)
	}
	return err
}

// SavePool implements alerting.PoolStore.
func (t *Transient) SavePool(ctx context.Context, p *alerting.Pool) error {
	return t.with(func(s *Store) error { return s.SavePool(ctx, p) })
}

// LatestPool implements alerting.PoolStore.
func (t *Transient) LatestPool(ctx context.Context) (*alerting.Pool, error) {
	var p *alerting.Pool
	err := t.with(func(s *Store) error {
		var err error
		p, err = s.LatestPool(ctx)
		return err
	})
	return p, err
}
