package scheduler

import (
	"errors"

	"github.com/orderhub/backend/internal/domain/shared"
)

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrJobNotFound is returned when a job id is unknown or aged out of history
	ErrJobNotFound = shared.NewDomainError(shared.CodeNotFound, "reconcile job not found")

	// ErrInvalidJobKind is returned for unknown job kinds
	ErrInvalidJobKind = shared.NewDomainError(shared.CodeInvalidInput, "invalid reconcile job kind")
)
