package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// JobStore keeps job snapshots for polling and history
type JobStore interface {
	Save(ctx context.Context, job *ReconcileJob) error
	Get(ctx context.Context, id uuid.UUID) (*ReconcileJob, error)
	// List returns the most recently submitted jobs first
	List(ctx context.Context, limit int) ([]*ReconcileJob, error)
	Close() error
}

// InMemoryJobStore keeps the newest jobs in process memory
type InMemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]*ReconcileJob
	order []uuid.UUID // newest first
	limit int
}

// NewInMemoryJobStore creates a store bounded to limit jobs
func NewInMemoryJobStore(limit int) *InMemoryJobStore {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &InMemoryJobStore{jobs: make(map[uuid.UUID]*ReconcileJob), limit: limit}
}

const defaultHistoryLimit = 100

// Save stores a copy of the job
func (s *InMemoryJobStore) Save(_ context.Context, job *ReconcileJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		s.order = append([]uuid.UUID{job.ID}, s.order...)
		if len(s.order) > s.limit {
			for _, id := range s.order[s.limit:] {
				delete(s.jobs, id)
			}
			s.order = s.order[:s.limit]
		}
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of the job
func (s *InMemoryJobStore) Get(_ context.Context, id uuid.UUID) (*ReconcileJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns copies of the newest jobs
func (s *InMemoryJobStore) List(_ context.Context, limit int) ([]*ReconcileJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*ReconcileJob, 0, limit)
	for _, id := range s.order[:limit] {
		out = append(out, s.jobs[id].Clone())
	}
	return out, nil
}

// Close is a no-op
func (s *InMemoryJobStore) Close() error {
	return nil
}

var _ JobStore = (*InMemoryJobStore)(nil)
