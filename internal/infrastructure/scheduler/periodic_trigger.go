package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PeriodicTrigger submits a health job every interval so the sync status
// gauges stay current without a caller
type PeriodicTrigger struct {
	interval  time.Duration
	scheduler *ReconcileScheduler
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewPeriodicTrigger creates a new trigger
func NewPeriodicTrigger(interval time.Duration, scheduler *ReconcileScheduler, logger *zap.Logger) *PeriodicTrigger {
	return &PeriodicTrigger{interval: interval, scheduler: scheduler, logger: logger}
}

// Start starts the trigger. A non-positive interval disables it.
func (p *PeriodicTrigger) Start(ctx context.Context) error {
	if p.interval <= 0 {
		p.logger.Info("Periodic reconcile disabled")
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.runLoop(ctx)

	p.logger.Info("Periodic reconcile started", zap.Duration("interval", p.interval))
	return nil
}

// Stop stops the trigger
func (p *PeriodicTrigger) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PeriodicTrigger) runLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.trigger(ctx)
		}
	}
}

func (p *PeriodicTrigger) trigger(ctx context.Context) {
	job, err := p.scheduler.Submit(ctx, JobKindHealth, 0, JobTriggerPeriodic)
	if err != nil {
		p.logger.Warn("Failed to submit periodic reconcile job", zap.Error(err))
		return
	}
	p.logger.Debug("Periodic reconcile job submitted", zap.String("job_id", job.ID.String()))
}
