package poolstore

import (
	"context"
	"errors"
	"testing"

	"github.com/linnemanlabs/herald/internal/alerting"
)

func TestTransient_ReleasesLockBetweenCalls(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	tr := NewTransient(Config{Path: dir})

	if _, err := tr.LatestPool(ctx); !errors.Is(err, alerting.ErrNoPool) {
		t.Fatalf("LatestPool on empty store = %v, want ErrNoPool", err)
	}

	// a writer can open the directory while the transient store is idle
	s, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Open while transient idle: %v", err)
	}
	if err := s.SavePool(ctx, samplePool("01HWRITER")); err != nil {
		t.Fatalf("SavePool: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := tr.LatestPool(ctx)
	if err != nil {
		t.Fatalf("LatestPool: %v", err)
	}
	if got.RunID != "01HWRITER" {
		t.Errorf("RunID = %q, want 01HWRITER", got.RunID)
	}

	if err := tr.SavePool(ctx, samplePool("01HTRANSIENT")); err != nil {
		t.Fatalf("transient SavePool: %v", err)
	}
	got, err = tr.LatestPool(ctx)
	if err != nil {
		t.Fatalf("LatestPool: %v", err)
	}
	if got.RunID != "01HTRANSIENT" {
		t.Errorf("RunID = %q, want 01HTRANSIENT", got.RunID)
	}
}

func TestTransient_OpenError(t *testing.T) {
	t.Parallel()

	tr := NewTransient(Config{})
	if _, err := tr.LatestPool(context.Background()); err == nil {
		t.Fatal("expected error without a path")
	}
}
