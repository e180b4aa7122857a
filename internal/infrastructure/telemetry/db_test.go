package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/orderhub/backend/internal/infrastructure/telemetry"
)

type probe struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestDBInstrumentation_RecordsQueries(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	meter := mp.Meter("test")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	inst, err := telemetry.NewDBInstrumentation(meter, telemetry.DBConfig{DBSystem: "sqlite"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Use(inst))
	require.NoError(t, inst.ObservePool(meter, db))

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).AutoMigrate(&probe{}))
	require.NoError(t, db.WithContext(ctx).Create(&probe{Name: "a"}).Error)
	var got []probe
	require.NoError(t, db.WithContext(ctx).Find(&got).Error)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "db_query_total" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				ops := map[string]int64{}
				for _, dp := range sum.DataPoints {
					op, _ := dp.Attributes.Value("operation")
					ops[op.AsString()] = dp.Value
				}
				assert.GreaterOrEqual(t, ops["CREATE"], int64(1))
				assert.GreaterOrEqual(t, ops["QUERY"], int64(1))
			}
		}
	}
	assert.True(t, found["db_query_total"])
	assert.True(t, found["db_query_duration_seconds"])
	assert.True(t, found["db_pool_connections"])
}
