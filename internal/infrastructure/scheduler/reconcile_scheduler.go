package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
)

// ReconcileScheduler runs reconcile jobs on a worker pool. Every state change
// is written to the JobStore, which is what pollers read.
type ReconcileScheduler struct {
	config   ReconcileSchedulerConfig
	executor ReconcileExecutor
	store    JobStore
	logger   *zap.Logger
	metrics  *telemetry.FulfillmentMetrics

	jobs      chan *ReconcileJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	retries   map[uuid.UUID]*time.Timer
}

// NewReconcileScheduler creates a new scheduler
func NewReconcileScheduler(config ReconcileSchedulerConfig, executor ReconcileExecutor, store JobStore, logger *zap.Logger) (*ReconcileScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewInMemoryJobStore(defaultHistoryLimit)
	}
	return &ReconcileScheduler{
		config:   config,
		executor: executor,
		store:    store,
		logger:   logger,
		jobs:     make(chan *ReconcileJob, config.QueueSize),
		retries:  make(map[uuid.UUID]*time.Timer),
	}, nil
}

// SetMetrics sets the metrics collector
func (s *ReconcileScheduler) SetMetrics(m *telemetry.FulfillmentMetrics) {
	s.metrics = m
}

// Start starts the worker pool
func (s *ReconcileScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Reconcile scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, t := range s.retries {
		t.Stop()
		delete(s.retries, id)
	}
	close(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconcile scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reconcile scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a new job and returns its pending snapshot
func (s *ReconcileScheduler) Submit(ctx context.Context, kind JobKind, days int, trigger JobTrigger) (*ReconcileJob, error) {
	if kind != JobKindHealth && kind != JobKindGaps {
		return nil, ErrInvalidJobKind
	}
	job := NewReconcileJob(kind, days, trigger, s.config.RetryAttempts)
	if err := s.store.Save(ctx, job); err != nil {
		return nil, err
	}
	snapshot := job.Clone()
	if err := s.enqueue(job); err != nil {
		job.Fail(err.Error())
		_ = s.store.Save(ctx, job)
		return nil, err
	}

	s.logger.Debug("Reconcile job submitted",
		zap.String("job_id", snapshot.ID.String()),
		zap.String("kind", string(snapshot.Kind)),
		zap.String("trigger", string(snapshot.Trigger)),
	)
	return snapshot, nil
}

// Get returns the latest snapshot of a job
func (s *ReconcileScheduler) Get(ctx context.Context, id uuid.UUID) (*ReconcileJob, error) {
	return s.store.Get(ctx, id)
}

// History returns recent jobs, newest first
func (s *ReconcileScheduler) History(ctx context.Context, limit int) ([]*ReconcileJob, error) {
	return s.store.List(ctx, limit)
}

// enqueue holds mu across the send so Stop never closes the channel under it
func (s *ReconcileScheduler) enqueue(job *ReconcileJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	select {
	case s.jobs <- job:
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *ReconcileScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *ReconcileScheduler) processJob(ctx context.Context, job *ReconcileJob, workerID int) {
	job.Start()
	s.persist(job)
	s.logger.Info("Processing reconcile job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", job.RetryCount+1),
	)

	started := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	result, err := s.executor.Execute(jobCtx, job)
	cancel()

	if err == nil {
		job.Complete(result)
		s.persist(job)
		s.metrics.RecordReconcileJob(string(job.Kind), string(job.Status), time.Since(started))
		s.logger.Info("Reconcile job completed",
			zap.String("job_id", job.ID.String()),
			zap.Duration("elapsed", time.Since(started)),
		)
		return
	}

	job.Fail(err.Error())
	s.metrics.RecordReconcileJob(string(job.Kind), string(job.Status), time.Since(started))
	s.logger.Error("Reconcile job failed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Error(err),
	)

	// invalid input fails the same way every time
	if ctx.Err() == nil && retryable(err) && job.ShouldRetry() {
		delay := job.ScheduleRetry(s.config.RetryDelay)
		s.persist(job)
		s.scheduleRetry(job, delay)
		s.logger.Info("Reconcile job scheduled for retry",
			zap.String("job_id", job.ID.String()),
			zap.Int("retry_count", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Time("next_retry_at", *job.NextRetryAt),
		)
		return
	}
	s.persist(job)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch shared.CodeOf(err) {
	case shared.CodeInvalidInput, shared.CodeNotFound:
		return false
	}
	return true
}

func (s *ReconcileScheduler) scheduleRetry(job *ReconcileJob, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.retries[job.ID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.retries, job.ID)
		s.mu.Unlock()

		if err := s.enqueue(job); err != nil {
			job.Fail(err.Error())
			s.persist(job)
			s.logger.Warn("Failed to re-queue reconcile job for retry",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	})
}

// persist writes a snapshot. A store failure is logged; the job keeps
// running.
func (s *ReconcileScheduler) persist(job *ReconcileJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, job); err != nil {
		s.logger.Warn("Failed to store reconcile job snapshot",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}
