// Package seentest is a behavioural test suite shared by every seen.Store
// implementation.
package seentest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/herald/internal/seen"
)

// Factory returns a fresh, never-initialized store.
type Factory func(t *testing.T) seen.Store

// Run exercises the seen.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("load before reset", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(context.Background())
		if !errors.Is(err, seen.ErrNotInitialized) {
			t.Fatalf("Load err = %v, want ErrNotInitialized", err)
		}
	})

	t.Run("reset then load", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Reset(ctx); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		st, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(st.IDs) != 0 || len(st.Titles) != 0 {
			t.Errorf("fresh state not empty: %d ids, %d titles", len(st.IDs), len(st.Titles))
		}
		if st.Version != seen.CurrentVersion {
			t.Errorf("Version = %d, want %d", st.Version, seen.CurrentVersion)
		}
	})

	t.Run("save round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustReset(t, s)

		st, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		lim := seen.Limits{MaxIDs: 10, MaxTitles: 10}
		st.Record(seen.Title{Title: "JPMorgan launches Bitcoin ETF", Fingerprint: "jpmorgan launch bitcoin etf", ID: "a", SeenAt: at}, lim)
		st.Record(seen.Title{Title: "Circle unveils euro stablecoin", Fingerprint: "circle launch euro stablecoin", ID: "b", SeenAt: at.Add(time.Minute)}, lim)
		rev := st.Revision

		if err := s.Save(ctx, st); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if st.Revision != rev+1 {
			t.Errorf("Revision after save = %d, want %d", st.Revision, rev+1)
		}

		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got.Revision != st.Revision {
			t.Errorf("loaded revision = %d, want %d", got.Revision, st.Revision)
		}
		if !got.HasID("a") || !got.HasID("b") || got.HasID("c") {
			t.Errorf("ids = %v", got.IDs)
		}
		if len(got.Titles) != 2 || got.Titles[0].ID != "a" || got.Titles[1].Fingerprint != "circle launch euro stablecoin" {
			t.Fatalf("titles = %+v", got.Titles)
		}
		if !got.Titles[0].SeenAt.Equal(at) {
			t.Errorf("SeenAt = %v, want %v", got.Titles[0].SeenAt, at)
		}
	})

	t.Run("stale revision conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustReset(t, s)

		first, _ := s.Load(ctx)
		second, _ := s.Load(ctx)

		first.Record(seen.Title{ID: "x", Fingerprint: "x"}, seen.Limits{})
		if err := s.Save(ctx, first); err != nil {
			t.Fatalf("first Save: %v", err)
		}
		second.Record(seen.Title{ID: "y", Fingerprint: "y"}, seen.Limits{})
		if err := s.Save(ctx, second); !errors.Is(err, seen.ErrConflict) {
			t.Fatalf("second Save err = %v, want ErrConflict", err)
		}

		got, _ := s.Load(ctx)
		if got.HasID("y") {
			t.Error("conflicting save was applied")
		}
	})

	t.Run("reset discards history", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustReset(t, s)

		st, _ := s.Load(ctx)
		st.Record(seen.Title{ID: "x", Fingerprint: "x"}, seen.Limits{})
		if err := s.Save(ctx, st); err != nil {
			t.Fatalf("Save: %v", err)
		}
		mustReset(t, s)

		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got.HasID("x") {
			t.Error("reset kept old ids")
		}
		if got.Revision <= st.Revision {
			t.Errorf("revision after reset = %d, want above %d", got.Revision, st.Revision)
		}
	})

	t.Run("lease is exclusive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		l1, err := s.Lock(ctx)
		if err != nil {
			t.Fatalf("Lock: %v", err)
		}
		if _, err := s.Lock(ctx); !errors.Is(err, seen.ErrLocked) {
			t.Fatalf("second Lock err = %v, want ErrLocked", err)
		}
		if err := l1.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		l2, err := s.Lock(ctx)
		if err != nil {
			t.Fatalf("Lock after release: %v", err)
		}
		_ = l2.Release()
	})
}

func mustReset(t *testing.T, s seen.Store) {
	t.Helper()
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
}
