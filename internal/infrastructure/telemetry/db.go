package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls GORM instrumentation
type DBConfig struct {
	Tracing            bool
	LogFullSQL         bool
	SlowQueryThreshold time.Duration
	DBSystem           string
}

// DBInstrumentation is a GORM plugin recording query spans, query metrics
// and connection pool gauges.
type DBInstrumentation struct {
	cfg    DBConfig
	logger *zap.Logger

	queries   metric.Int64Counter
	duration  metric.Float64Histogram
	slow      metric.Int64Counter
	poolGauge metric.Int64ObservableGauge
}

type queryStartKey struct{}

var dbDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// NewDBInstrumentation creates the plugin. Register it with db.Use.
func NewDBInstrumentation(meter metric.Meter, cfg DBConfig, logger *zap.Logger) (*DBInstrumentation, error) {
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	d := &DBInstrumentation{cfg: cfg, logger: logger}

	var err error
	if d.queries, err = meter.Int64Counter("db_query_total",
		metric.WithDescription("Database queries by operation"),
		metric.WithUnit("{query}")); err != nil {
		return nil, err
	}
	if d.duration, err = meter.Float64Histogram("db_query_duration_seconds",
		metric.WithDescription("Database query latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(dbDurationBuckets...)); err != nil {
		return nil, err
	}
	if d.slow, err = meter.Int64Counter("db_slow_query_total",
		metric.WithDescription("Queries slower than the configured threshold"),
		metric.WithUnit("{query}")); err != nil {
		return nil, err
	}
	if d.poolGauge, err = meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}")); err != nil {
		return nil, err
	}
	return d, nil
}

// Name implements gorm.Plugin
func (d *DBInstrumentation) Name() string {
	return "orderhub:db_instrumentation"
}

// Initialize implements gorm.Plugin
func (d *DBInstrumentation) Initialize(db *gorm.DB) error {
	if d.cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(d.cfg.DBSystem)}
		if !d.cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("orderhub:before_"+h.op, d.before); err != nil {
			return err
		}
		if err := h.after("orderhub:after_"+h.op, d.after(h.op)); err != nil {
			return err
		}
	}
	return nil
}

// ObservePool registers a callback reporting idle/in_use/open connections
func (d *DBInstrumentation) ObservePool(meter metric.Meter, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sqlDB.Stats()
		o.ObserveInt64(d.poolGauge, int64(s.Idle), metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(d.poolGauge, int64(s.InUse), metric.WithAttributes(attribute.String("state", "in_use")))
		o.ObserveInt64(d.poolGauge, int64(s.OpenConnections), metric.WithAttributes(attribute.String("state", "open")))
		return nil
	}, d.poolGauge)
	return err
}

func (d *DBInstrumentation) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (d *DBInstrumentation) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		start, ok := ctx.Value(queryStartKey{}).(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		opAttr := attribute.String("operation", strings.ToUpper(op))
		d.queries.Add(ctx, 1, metric.WithAttributes(opAttr))
		d.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(opAttr))

		span := trace.SpanFromContext(ctx)
		if span.IsRecording() {
			span.SetAttributes(
				attribute.String("db.sql.table", table),
				attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
			)
			if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
				RecordError(span, db.Error)
			}
		}

		if elapsed > d.cfg.SlowQueryThreshold {
			d.slow.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
			if span.IsRecording() {
				span.SetAttributes(attribute.Bool("db.slow_query", true))
			}
			d.logger.Warn("slow query",
				zap.String("table", table),
				zap.String("operation", op),
				zap.Duration("elapsed", elapsed),
				zap.String("trace_id", GetTraceID(ctx)),
			)
		}
	}
}
