package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/integration"
	"github.com/orderhub/backend/internal/infrastructure/persistence/models"
)

// GormOrderStatsRepository is the read-only order view used by the sync
// reconciler
type GormOrderStatsRepository struct {
	db *gorm.DB
}

// NewGormOrderStatsRepository creates a new GormOrderStatsRepository
func NewGormOrderStatsRepository(db *gorm.DB) *GormOrderStatsRepository {
	return &GormOrderStatsRepository{db: db}
}

// LatestSynced returns the most recently ingested order of a platform.
// Ingestion time is created_at, not the marketplace order_datetime.
func (r *GormOrderStatsRepository) LatestSynced(ctx context.Context, platform fulfillment.Channel) (*integration.SyncCursor, error) {
	var row struct {
		CreatedAt       time.Time
		ExternalOrderID *string
	}
	err := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Select("created_at, external_order_id").
		Where("channel = ?", platform).
		Order("created_at DESC, id DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	cursor := &integration.SyncCursor{LastOrderSyncedAt: row.CreatedAt.UTC()}
	if row.ExternalOrderID != nil {
		cursor.LastExternalID = *row.ExternalOrderID
	}
	return cursor, nil
}

// StreamOrderTimes scans order_datetime for the platform in [from, to)
// without materializing the rows
func (r *GormOrderStatsRepository) StreamOrderTimes(ctx context.Context, platform fulfillment.Channel, from, to time.Time, fn func(time.Time) error) error {
	rows, err := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Select("order_datetime").
		Where("channel = ? AND order_datetime >= ? AND order_datetime < ?", platform, from.UTC(), to.UTC()).
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return err
		}
		if err := fn(t.UTC()); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Ensure GormOrderStatsRepository implements OrderStatsReader
var _ integration.OrderStatsReader = (*GormOrderStatsRepository)(nil)
