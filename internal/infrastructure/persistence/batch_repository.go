package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/persistence/models"
)

// GormBatchRepository implements BatchRepository using GORM
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// FindByID loads a batch and its member ids
func (r *GormBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Batch, error) {
	db := r.db.WithContext(ctx)
	batch, err := r.loadBatch(db, id, false)
	if err != nil {
		return nil, err
	}
	if batch.MemberIDs, err = r.memberIDs(db, id); err != nil {
		return nil, err
	}
	return batch, nil
}

// FindAll lists batches, newest first by default. Member ids are not loaded.
func (r *GormBatchRepository) FindAll(ctx context.Context, query fulfillment.BatchQuery) ([]*fulfillment.Batch, int64, error) {
	filter := query.Filter.Normalize()

	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.BatchModel{})
		if query.Platform != nil {
			q = q.Where("scope = ?", fulfillment.ScopeKey(query.Platform))
		}
		if len(query.Statuses) > 0 {
			q = q.Where("status IN ?", query.Statuses)
		}
		if query.DateFrom != nil {
			q = q.Where("cutoff_at >= ?", query.DateFrom.UTC())
		}
		if query.DateTo != nil {
			q = q.Where("cutoff_at <= ?", query.DateTo.UTC())
		}
		if search := strings.TrimSpace(query.Search); search != "" {
			q = q.Where("LOWER(notes) LIKE ?", "%"+strings.ToLower(search)+"%")
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	field := ValidateSortField(filter.OrderBy, BatchSortFields, "created_at")
	var rows []models.BatchModel
	err := scoped().
		Order(field + " " + ValidateSortOrder(filter.OrderDir)).
		Order("batch_number DESC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	batches := make([]*fulfillment.Batch, len(rows))
	for i := range rows {
		batches[i] = rows[i].ToDomain()
	}
	return batches, total, nil
}

// CreateFromEligible selects the eligible orders, takes the next number in
// the scope, inserts the batch with its frozen membership and claims every
// member with a conditional update, all in one transaction.
func (r *GormBatchRepository) CreateFromEligible(ctx context.Context, sel fulfillment.BatchSelection, build fulfillment.BatchBuilder) (*fulfillment.Batch, error) {
	if len(sel.ReadyStatuses) == 0 {
		return nil, fulfillment.ErrNoEligibleOrders
	}

	var batch *fulfillment.Batch
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := skipLocked(eligibleScope(tx.Model(&models.OrderModel{}), sel.Platform, sel.ReadyStatuses)).
			Order("order_datetime ASC, id ASC").
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fulfillment.ErrNoEligibleOrders
		}

		scope := fulfillment.ScopeKey(sel.Platform)
		var last int64
		if err := tx.Model(&models.BatchModel{}).
			Where("scope = ?", scope).
			Select("COALESCE(MAX(batch_number), 0)").
			Scan(&last).Error; err != nil {
			return err
		}

		built, err := build(last+1, ids)
		if err != nil {
			return err
		}

		if err := tx.Create(models.BatchModelFromDomain(built)).Error; err != nil {
			return err
		}

		members := make([]models.BatchMemberModel, len(ids))
		for i, id := range ids {
			members[i] = models.BatchMemberModel{BatchID: built.ID, OrderID: id, Position: i + 1}
		}
		if err := tx.CreateInBatches(members, 500).Error; err != nil {
			return err
		}

		var claimed int64
		for _, chunk := range chunkIDs(ids, inClauseChunk) {
			result := tx.Model(&models.OrderModel{}).
				Where("id IN ? AND batch_id IS NULL AND status IN ?", chunk, sel.ReadyStatuses).
				Updates(map[string]any{
					"batch_id":   built.ID,
					"updated_at": batchTimestamp(built),
				})
			if result.Error != nil {
				return result.Error
			}
			claimed += result.RowsAffected
		}
		if claimed != int64(len(ids)) {
			return fulfillment.ErrConcurrentBatchConflict
		}

		batch = built
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fulfillment.ErrConcurrentBatchConflict
	}
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// UpdateProgress locks the batch row, loads its members and persists the
// counters when fn reports a change. Members are loaded without items.
func (r *GormBatchRepository) UpdateProgress(ctx context.Context, id uuid.UUID, fn fulfillment.ProgressUpdater) (*fulfillment.Batch, error) {
	var batch *fulfillment.Batch
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := r.loadBatch(tx, id, true)
		if err != nil {
			return err
		}
		if b.MemberIDs, err = r.memberIDs(tx, id); err != nil {
			return err
		}

		members := make([]*fulfillment.Order, 0, len(b.MemberIDs))
		for _, chunk := range chunkIDs(b.MemberIDs, inClauseChunk) {
			var rows []models.OrderModel
			if err := tx.Where("id IN ?", chunk).Find(&rows).Error; err != nil {
				return err
			}
			members = append(members, toDomainOrders(rows)...)
		}

		changed, err := fn(b, members)
		if err != nil {
			return err
		}
		if changed {
			if err := r.saveBatch(tx, b); err != nil {
				return err
			}
		}
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// CancelAndRelease locks the batch, applies fn and clears batch_id on every
// order still pointing at it. The membership rows are kept.
func (r *GormBatchRepository) CancelAndRelease(ctx context.Context, id uuid.UUID, fn func(batch *fulfillment.Batch) error) (*fulfillment.Batch, error) {
	var batch *fulfillment.Batch
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := r.loadBatch(tx, id, true)
		if err != nil {
			return err
		}
		if b.MemberIDs, err = r.memberIDs(tx, id); err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		if err := r.saveBatch(tx, b); err != nil {
			return err
		}

		if err := tx.Model(&models.OrderModel{}).
			Where("batch_id = ?", id).
			Updates(map[string]any{
				"batch_id":   nil,
				"updated_at": b.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *GormBatchRepository) loadBatch(db *gorm.DB, id uuid.UUID, lock bool) (*fulfillment.Batch, error) {
	q := db
	if lock {
		q = forUpdate(q)
	}
	var model models.BatchModel
	if err := q.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fulfillment.NewBatchNotFoundError(id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormBatchRepository) memberIDs(db *gorm.DB, batchID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.Model(&models.BatchMemberModel{}).
		Where("batch_id = ?", batchID).
		Order("position ASC").
		Pluck("order_id", &ids).Error
	return ids, err
}

// saveBatch writes counters and lifecycle fields with a version check
func (r *GormBatchRepository) saveBatch(tx *gorm.DB, b *fulfillment.Batch) error {
	result := tx.Model(&models.BatchModel{}).
		Where("id = ? AND version = ?", b.ID, b.Version).
		Updates(map[string]any{
			"packed_count":  b.PackedCount,
			"printed_count": b.PrintedCount,
			"status":        b.Status,
			"cancel_reason": b.CancelReason,
			"completed_at":  b.CompletedAt,
			"cancelled_at":  b.CancelledAt,
			"updated_at":    b.UpdatedAt,
			"version":       gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainErrorf(shared.CodeConcurrencyConflict, "batch %s was modified concurrently", b.ID)
	}
	b.IncrementVersion()
	return nil
}

// forUpdate adds a row lock where the dialect has one
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() != DriverPostgres {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// skipLocked lets concurrent selections step over rows another transaction
// is claiming
func skipLocked(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() != DriverPostgres {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
}

// batchTimestamp is used when a builder leaves CreatedAt unset
func batchTimestamp(b *fulfillment.Batch) time.Time {
	if b.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return b.CreatedAt
}

// Ensure GormBatchRepository implements BatchRepository
var _ fulfillment.BatchRepository = (*GormBatchRepository)(nil)
