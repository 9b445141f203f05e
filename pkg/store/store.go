// Package store persists partition run reports for the debug service.
//
// Two backends are provided: [MemoryStore] for development and testing,
// and [MongoStore] for deployments where runs must survive restarts and be
// shared between instances.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matzehuels/fusegraph/pkg/errors"
	"github.com/matzehuels/fusegraph/pkg/io"
)

// Run is one persisted partition run.
type Run struct {
	ID           string     `bson:"_id" json:"id"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	ModuleHash   string     `bson:"module_hash" json:"module_hash"`
	OptLevel     int        `bson:"opt_level" json:"opt_level"`
	MaxFuseDepth int        `bson:"max_fuse_depth" json:"max_fuse_depth"`
	Report       *io.Report `bson:"report" json:"report"`
}

// Store saves and retrieves runs.
type Store interface {
	// Save persists a run. Saving an existing ID overwrites it.
	Save(ctx context.Context, run *Run) error

	// Get returns the run with the given ID, or a RUN_NOT_FOUND error.
	Get(ctx context.Context, id string) (*Run, error)

	// List returns up to limit runs, newest first.
	List(ctx context.Context, limit int) ([]*Run, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

// Save stores the run.
func (s *MemoryStore) Save(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "run has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// Get returns the run with the given ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeRunNotFound, "run %q not found", id)
	}
	return run, nil
}

// List returns up to limit runs, newest first.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Close does nothing for the in-memory store.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
