package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/persistence/models"
)

func TestOutboxPublisher_SaveEvents_CommitsWithTx(t *testing.T) {
	db := setupSQLite(t)
	publisher := NewOutboxPublisher(NewEventSerializer(), 3)

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.SaveEvents(context.Background(), tx, newTestEvent("A"), newTestEvent("B"))
	})
	require.NoError(t, err)

	var rows []models.OutboxEntryModel
	require.NoError(t, db.Order("event_type").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].EventType)
	assert.Equal(t, 3, rows[0].MaxRetries)
	assert.Equal(t, shared.OutboxStatusPending, rows[0].Status)
	assert.Contains(t, string(rows[0].Payload), `"data":"test data"`)
}

func TestOutboxPublisher_SaveEvents_RollsBackWithTx(t *testing.T) {
	db := setupSQLite(t)
	publisher := NewOutboxPublisher(NewEventSerializer(), 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := publisher.SaveEvents(context.Background(), tx, newTestEvent("A")); err != nil {
			return err
		}
		return errors.New("aggregate write failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEntryModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestOutboxPublisher_SaveEvents_RejectsWrongTx(t *testing.T) {
	publisher := NewOutboxPublisher(NewEventSerializer(), 0)

	err := publisher.SaveEvents(context.Background(), "not a tx", newTestEvent("A"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "*gorm.DB")

	assert.NoError(t, publisher.SaveEvents(context.Background(), "ignored"))
}
