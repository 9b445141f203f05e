package store

import (
	"context"
	"testing"
	"time"

	"github.com/matzehuels/fusegraph/pkg/errors"
	"github.com/matzehuels/fusegraph/pkg/io"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close(ctx)

	run := &Run{
		ID:         "run-1",
		CreatedAt:  time.Now(),
		ModuleHash: "abc",
		OptLevel:   2,
		Report:     &io.Report{},
	}
	if err := s.Save(ctx, run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ModuleHash != "abc" {
		t.Errorf("ModuleHash = %q, want abc", got.ModuleHash)
	}

	_, err = s.Get(ctx, "missing")
	if !errors.Is(err, errors.ErrCodeRunNotFound) {
		t.Errorf("missing run error = %v, want RUN_NOT_FOUND", err)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, &Run{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("List returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("List order = %s, %s; want c, b", runs[0].ID, runs[1].ID)
	}
}

func TestMemoryStore_SaveRequiresID(t *testing.T) {
	if err := NewMemoryStore().Save(context.Background(), &Run{}); err == nil {
		t.Error("saving a run without id must fail")
	}
}
