package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

var (
	jobKeyPrefix   = []byte("job/")
	indexKeyPrefix = []byte("idx/")
)

// PebbleJobStore keeps job snapshots on disk so history survives restarts.
// Jobs are indexed by inverted submission time, which makes a forward scan
// newest first.
type PebbleJobStore struct {
	db    *pebble.DB
	limit int
	mu    sync.Mutex
}

// NewPebbleJobStore opens (or creates) the store in dir
func NewPebbleJobStore(dir string, limit int) (*PebbleJobStore, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleJobStore{db: db, limit: limit}, nil
}

func jobKey(id uuid.UUID) []byte {
	return append(append([]byte(nil), jobKeyPrefix...), id.String()...)
}

func indexKey(job *ReconcileJob) []byte {
	inverted := uint64(math.MaxInt64 - job.SubmittedAt.UnixNano())
	return fmt.Appendf(append([]byte(nil), indexKeyPrefix...), "%020d/%s", inverted, job.ID)
}

// prefixUpperBound returns the smallest key greater than every key with prefix
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

// Save writes the job and, for a new job, its index entry. History beyond
// the limit is pruned.
func (s *PebbleJobStore) Save(ctx context.Context, job *ReconcileJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, closer, err := s.db.Get(jobKey(job.ID))
	isNew := errors.Is(err, pebble.ErrNotFound)
	switch {
	case err == nil:
		_ = closer.Close()
	case !isNew:
		return fmt.Errorf("pebble get: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(jobKey(job.ID), data, nil); err != nil {
		return err
	}
	if isNew {
		if err := b.Set(indexKey(job), []byte(job.ID.String()), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble commit: %w", err)
	}

	if isNew {
		return s.prune()
	}
	return nil
}

func (s *PebbleJobStore) prune() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: indexKeyPrefix,
		UpperBound: prefixUpperBound(indexKeyPrefix),
	})
	if err != nil {
		return err
	}

	var stale [][]byte
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
		if n <= s.limit {
			continue
		}
		idx := append([]byte(nil), iter.Key()...)
		id := append([]byte(nil), iter.Value()...)
		stale = append(stale, idx, append(append([]byte(nil), jobKeyPrefix...), id...))
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	b := s.db.NewBatch()
	defer b.Close()
	for _, k := range stale {
		if err := b.Delete(k, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.NoSync)
}

// Get reads one job
func (s *PebbleJobStore) Get(ctx context.Context, id uuid.UUID) (*ReconcileJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, closer, err := s.db.Get(jobKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	var job ReconcileJob
	if err := json.Unmarshal(v, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// List returns the newest jobs first
func (s *PebbleJobStore) List(ctx context.Context, limit int) ([]*ReconcileJob, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: indexKeyPrefix,
		UpperBound: prefixUpperBound(indexKeyPrefix),
	})
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for iter.First(); iter.Valid() && len(ids) < limit; iter.Next() {
		id, err := uuid.ParseBytes(iter.Value())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	jobs := make([]*ReconcileJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Close closes the database
func (s *PebbleJobStore) Close() error {
	return s.db.Close()
}

var _ JobStore = (*PebbleJobStore)(nil)
