package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	appintegration "github.com/orderhub/backend/internal/application/integration"
	"github.com/orderhub/backend/internal/domain/integration"
)

// JobStatus represents the status of a reconcile job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// IsTerminal reports whether the job will not change again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// JobKind selects what a reconcile job computes
type JobKind string

const (
	JobKindHealth JobKind = "health"
	JobKindGaps   JobKind = "gaps"
)

// ParseJobKind parses a kind, defaulting to health
func ParseJobKind(s string) (JobKind, error) {
	switch JobKind(s) {
	case "", JobKindHealth:
		return JobKindHealth, nil
	case JobKindGaps:
		return JobKindGaps, nil
	}
	return "", ErrInvalidJobKind
}

// JobTrigger records who submitted a job
type JobTrigger string

const (
	JobTriggerManual   JobTrigger = "manual"
	JobTriggerPeriodic JobTrigger = "periodic"
)

// JobResult holds what a successful job computed
type JobResult struct {
	Health *integration.HealthReport `json:"health,omitempty"`
	Gaps   *appintegration.GapReport `json:"gaps,omitempty"`
}

// ReconcileJob is one asynchronous reconciliation run
type ReconcileJob struct {
	ID          uuid.UUID  `json:"id"`
	Kind        JobKind    `json:"kind"`
	Days        int        `json:"days,omitempty"`
	Trigger     JobTrigger `json:"trigger"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// NewReconcileJob creates a pending job
func NewReconcileJob(kind JobKind, days int, trigger JobTrigger, maxRetries int) *ReconcileJob {
	return &ReconcileJob{
		ID:          uuid.New(),
		Kind:        kind,
		Days:        days,
		Trigger:     trigger,
		Status:      JobStatusPending,
		SubmittedAt: time.Now().UTC(),
		MaxRetries:  maxRetries,
	}
}

// Start marks the job as running
func (j *ReconcileJob) Start() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.NextRetryAt = nil
	j.Error = ""
}

// Complete marks the job as successful
func (j *ReconcileJob) Complete(result *JobResult) {
	now := time.Now().UTC()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
	j.Result = result
}

// Fail marks the job as failed
func (j *ReconcileJob) Fail(err string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *ReconcileJob) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry moves the job back to pending with exponential backoff and
// returns the delay
func (j *ReconcileJob) ScheduleRetry(baseDelay time.Duration) time.Duration {
	j.RetryCount++
	j.Status = JobStatusPending
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	nextRetry := time.Now().UTC().Add(delay)
	j.NextRetryAt = &nextRetry
	j.CompletedAt = nil
	return delay
}

// Clone copies the job. Result is shared; it is never mutated after
// completion.
func (j *ReconcileJob) Clone() *ReconcileJob {
	c := *j
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.NextRetryAt = cloneTime(j.NextRetryAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

const maxRetryDelay = 10 * time.Minute

// ReconcileExecutor runs one job
type ReconcileExecutor interface {
	Execute(ctx context.Context, job *ReconcileJob) (*JobResult, error)
}

// ReconcileSchedulerConfig holds scheduler configuration
type ReconcileSchedulerConfig struct {
	// MaxConcurrentJobs is the worker count
	MaxConcurrentJobs int
	// JobTimeout bounds one attempt
	JobTimeout time.Duration
	// RetryAttempts is the number of retries after the first failure
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// QueueSize bounds jobs waiting for a worker
	QueueSize int
}

// DefaultReconcileSchedulerConfig returns default scheduler configuration
func DefaultReconcileSchedulerConfig() ReconcileSchedulerConfig {
	return ReconcileSchedulerConfig{
		MaxConcurrentJobs: 2,
		JobTimeout:        2 * time.Minute,
		RetryAttempts:     2,
		RetryDelay:        10 * time.Second,
		QueueSize:         64,
	}
}

// Validate validates the configuration
func (c *ReconcileSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 || c.JobTimeout <= 0 || c.RetryAttempts < 0 || c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts > 0 && c.RetryDelay <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
