package scheduler

import (
	"context"

	appintegration "github.com/orderhub/backend/internal/application/integration"
)

// ServiceExecutor runs jobs against the reconcile service
type ServiceExecutor struct {
	service *appintegration.ReconcileService
}

// NewServiceExecutor creates a new ServiceExecutor
func NewServiceExecutor(service *appintegration.ReconcileService) *ServiceExecutor {
	return &ServiceExecutor{service: service}
}

// Execute computes the job's report
func (e *ServiceExecutor) Execute(ctx context.Context, job *ReconcileJob) (*JobResult, error) {
	switch job.Kind {
	case JobKindHealth:
		report, err := e.service.ComputeHealth(ctx)
		if err != nil {
			return nil, err
		}
		return &JobResult{Health: report}, nil
	case JobKindGaps:
		report, err := e.service.FindGaps(ctx, job.Days)
		if err != nil {
			return nil, err
		}
		return &JobResult{Gaps: report}, nil
	}
	return nil, ErrInvalidJobKind
}

var _ ReconcileExecutor = (*ServiceExecutor)(nil)
