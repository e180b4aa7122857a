// Package event exposes operator actions over the signal outbox: stats for
// health checks and dead-letter inspection and replay.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/shared"
)

const (
	defaultDeadPageSize = 20
	maxDeadPageSize     = 100
)

// OutboxService manages relayed order signals
type OutboxService struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(repo shared.OutboxRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{repo: repo, logger: logger}
}

// OutboxEntryDTO is an outbox entry without its payload
type OutboxEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OutboxFilter pages the dead-letter list
type OutboxFilter struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}

// OutboxListResult is one page of entries
type OutboxListResult struct {
	Entries []OutboxEntryDTO `json:"entries"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// OutboxStatsDTO counts entries per delivery state
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// GetDeadLetterEntries lists entries that exhausted their retries
func (s *OutboxService) GetDeadLetterEntries(ctx context.Context, filter OutboxFilter) (*OutboxListResult, error) {
	page := max(filter.Page, 1)
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = defaultDeadPageSize
	}
	perPage = min(perPage, maxDeadPageSize)

	entries, total, err := s.repo.FindDead(ctx, page, perPage)
	if err != nil {
		s.logger.Error("failed to list dead signals", zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "failed to list dead signals")
	}

	out := make([]OutboxEntryDTO, len(entries))
	for i, entry := range entries {
		out[i] = toOutboxEntryDTO(entry)
	}
	return &OutboxListResult{Entries: out, Total: total, Page: page, PerPage: perPage}, nil
}

// GetEntry returns one outbox entry
func (s *OutboxService) GetEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryDeadEntry puts a dead entry back in the relay queue
func (s *OutboxService) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.ResetForRetry(); err != nil {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidState, "signal %s is %s: %v", id, entry.Status, err)
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("failed to requeue signal", zap.Error(err), zap.String("id", id.String()))
		return nil, shared.NewDomainError(shared.CodeInternal, "failed to requeue signal")
	}

	s.logger.Info("dead signal requeued",
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType))
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryAllDeadEntries requeues every dead entry and returns how many moved
func (s *OutboxService) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	var count int64
	for {
		// requeued entries leave the dead set, so page 1 always holds the rest
		entries, _, err := s.repo.FindDead(ctx, 1, maxDeadPageSize)
		if err != nil {
			s.logger.Error("failed to list dead signals", zap.Error(err))
			return count, shared.NewDomainError(shared.CodeInternal, "failed to list dead signals")
		}
		if len(entries) == 0 {
			break
		}

		moved := 0
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			if entry.ResetForRetry() != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("failed to requeue signal", zap.Error(err), zap.String("id", entry.ID.String()))
				continue
			}
			moved++
		}
		count += int64(moved)
		if moved == 0 || len(entries) < maxDeadPageSize {
			break
		}
	}

	s.logger.Info("dead signals requeued", zap.Int64("count", count))
	return count, nil
}

// GetStats counts entries per status
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("failed to count signals", zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "failed to count signals")
	}

	stats := &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *OutboxService) find(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load signal", zap.Error(err), zap.String("id", id.String()))
		return nil, shared.NewDomainError(shared.CodeInternal, "failed to load signal")
	}
	if entry == nil {
		return nil, shared.NewDomainErrorf(shared.CodeNotFound, "outbox entry %s not found", id)
	}
	return entry, nil
}

func toOutboxEntryDTO(entry *shared.OutboxEntry) OutboxEntryDTO {
	return OutboxEntryDTO{
		ID:            entry.ID,
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		AggregateID:   entry.AggregateID,
		AggregateType: entry.AggregateType,
		Status:        string(entry.Status),
		RetryCount:    entry.RetryCount,
		MaxRetries:    entry.MaxRetries,
		LastError:     entry.LastError,
		NextRetryAt:   entry.NextRetryAt,
		ProcessedAt:   entry.ProcessedAt,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
	}
}
