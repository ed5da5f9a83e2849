package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/linnemanlabs/herald/internal/seen"
	"github.com/linnemanlabs/herald/internal/seen/seentest"
)

func TestStore_Contract(t *testing.T) {
	t.Parallel()
	seentest.Run(t, func(*testing.T) seen.Store { return New() })
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewInitialized()
	ctx := context.Background()

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	st.Record(seen.Title{ID: "a", Fingerprint: "a"}, seen.Limits{})

	again, _ := s.Load(ctx)
	if again.HasID("a") {
		t.Error("mutating a loaded state leaked into the store")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := NewInitialized()
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			if l, err := s.Lock(ctx); err == nil {
				st, _ := s.Load(ctx)
				st.Record(seen.Title{ID: "x", Fingerprint: "x"}, seen.Limits{})
				_ = s.Save(ctx, st)
				_ = l.Release()
			}
		}()
	}
	wg.Wait()

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.IDs) != 1 {
		t.Errorf("ids = %v, want a single x", st.IDs)
	}
}
