package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appevent "github.com/orderhub/backend/internal/application/event"
	appfulfillment "github.com/orderhub/backend/internal/application/fulfillment"
	appintegration "github.com/orderhub/backend/internal/application/integration"
	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/integration"
	"github.com/orderhub/backend/internal/infrastructure/cache"
	"github.com/orderhub/backend/internal/infrastructure/config"
	"github.com/orderhub/backend/internal/infrastructure/ecommerce"
	"github.com/orderhub/backend/internal/infrastructure/event"
	"github.com/orderhub/backend/internal/infrastructure/logger"
	"github.com/orderhub/backend/internal/infrastructure/messaging"
	"github.com/orderhub/backend/internal/infrastructure/persistence"
	"github.com/orderhub/backend/internal/infrastructure/printing"
	"github.com/orderhub/backend/internal/infrastructure/scheduler"
	"github.com/orderhub/backend/internal/infrastructure/storage"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
	"github.com/orderhub/backend/internal/interfaces/http/handler"
	"github.com/orderhub/backend/internal/interfaces/http/router"
	"gorm.io/gorm"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Server exited gracefully")
}

// closer is a shutdown step run in reverse registration order
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

type lifecycle struct {
	closers []closer
	log     *zap.Logger
}

func (l *lifecycle) onShutdown(name string, fn func(ctx context.Context) error) {
	l.closers = append(l.closers, closer{name: name, fn: fn})
}

func (l *lifecycle) onClose(name string, c io.Closer) {
	l.onShutdown(name, func(context.Context) error { return c.Close() })
}

func (l *lifecycle) shutdown(ctx context.Context) {
	for i := len(l.closers) - 1; i >= 0; i-- {
		c := l.closers[i]
		if err := c.fn(ctx); err != nil {
			l.log.Warn("Shutdown step failed", zap.String("step", c.name), zap.Error(err))
		}
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	lc := &lifecycle{log: log}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		lc.shutdown(shutdownCtx)
	}()

	// Telemetry
	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, log)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	lc.onShutdown("telemetry", providers.Shutdown)
	log = telemetry.BridgeLogger(log, providers, zapcore.InfoLevel)
	lc.log = log

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: serviceName,
		ProfileTypes:    cfg.Telemetry.ProfileTypes,
	}, log)
	if err != nil {
		log.Warn("Continuous profiling disabled", zap.Error(err))
	} else {
		lc.onShutdown("profiler", func(context.Context) error { return profiler.Stop() })
		if cfg.Telemetry.SpanProfiles {
			providers.EnableSpanProfiles()
		}
	}

	metrics := telemetry.NewFulfillmentMetrics()

	log.Info("Starting order fulfillment core",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database
	var plugins []gorm.Plugin
	var instr *telemetry.DBInstrumentation
	if providers.Enabled() {
		dbSystem := "postgresql"
		if cfg.Database.Driver == persistence.DriverSQLite {
			dbSystem = "sqlite"
		}
		instr, err = telemetry.NewDBInstrumentation(providers.Meter("orderhub/db"), telemetry.DBConfig{
			Tracing:            cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
			DBSystem:           dbSystem,
		}, log)
		if err != nil {
			return fmt.Errorf("db instrumentation: %w", err)
		}
		plugins = append(plugins, instr)
	}
	db, err := persistence.NewDatabase(&cfg.Database, log, plugins...)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	lc.onClose("database", db)
	if instr != nil {
		if err := instr.ObservePool(providers.Meter("orderhub/db"), db.DB); err != nil {
			log.Warn("Connection pool metrics unavailable", zap.Error(err))
		}
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	coordination, err := cache.NewCoordination(ctx, cfg.Redis, cache.WithLogger(log))
	if err != nil {
		return fmt.Errorf("coordination stores: %w", err)
	}
	lc.onClose("coordination", coordination)

	// Outbox: repositories write signals in the order transaction, the
	// processor relays them to the bus, the forwarder delivers downstream.
	serializer := event.NewEventSerializer()
	event.RegisterFulfillmentEvents(serializer)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	outboxPublisher := event.NewOutboxPublisher(serializer, cfg.Event.MaxRetries)

	orderRepo := persistence.NewGormOrderRepository(db.DB, outboxPublisher)
	batchRepo := persistence.NewGormBatchRepository(db.DB)
	statsRepo := persistence.NewGormOrderStatsRepository(db.DB)

	sink, err := newSignalSink(cfg, log)
	if err != nil {
		return err
	}
	if c, ok := sink.(io.Closer); ok {
		lc.onClose("signal sink", c)
	}
	forwarder := appfulfillment.NewSignalForwarder(sink, log)
	forwarder.SetMetrics(metrics)

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewIdempotentHandler(forwarder, coordination.Idempotency, 0, log))
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	lc.onShutdown("event bus", bus.Stop)

	if cfg.Event.ProcessorEnabled {
		processor := event.NewOutboxProcessor(outboxRepo, bus, serializer, event.OutboxProcessorConfig{
			BatchSize:        cfg.Event.BatchSize,
			PollInterval:     cfg.Event.PollInterval,
			CleanupEnabled:   cfg.Event.CleanupEnabled,
			CleanupRetention: cfg.Event.CleanupRetention,
		}, log)
		if err := processor.Start(ctx); err != nil {
			return fmt.Errorf("start outbox processor: %w", err)
		}
		lc.onShutdown("outbox processor", processor.Stop)
	}

	// Fulfillment services
	readyStatuses, err := parseStatuses(cfg.Fulfillment.ReadyStatuses)
	if err != nil {
		return err
	}
	locks := appfulfillment.NewOrderLocks()
	statusService := appfulfillment.NewStatusService(orderRepo, locks, log)
	orderService := appfulfillment.NewOrderService(orderRepo, statusService, log)
	batchService := appfulfillment.NewBatchService(batchRepo, orderRepo, appfulfillment.BatchServiceConfig{
		ReadyStatuses: readyStatuses,
		ScopeLockTTL:  cfg.Fulfillment.ScopeLockTTL,
	}, log)
	labelService := appfulfillment.NewLabelService(orderRepo, locks, log)

	batchService.SetScopeLocker(coordination.Locker)
	statusService.SetBatchRecomputer(batchService)
	labelService.SetBatchRecomputer(batchService)
	statusService.SetMetrics(metrics)
	orderService.SetMetrics(metrics)
	batchService.SetMetrics(metrics)
	labelService.SetMetrics(metrics)

	renderer, err := newRenderer(cfg, log)
	if err != nil {
		return err
	}
	if c, ok := renderer.(io.Closer); ok {
		lc.onClose("label renderer", c)
	}
	labelService.SetRenderer(renderer)

	var fileHandler *handler.FileHandler
	switch cfg.Storage.Backend {
	case "s3":
		store, err := storage.NewS3LabelStore(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return fmt.Errorf("s3 label store: %w", err)
		}
		labelService.SetArtifactStore(store)
	case "", "filesystem":
		store, err := printing.NewFileSystemStorage(&printing.FileSystemStorageConfig{
			BasePath: cfg.Storage.LocalDir,
			BaseURL:  cfg.Storage.BaseURL,
			Logger:   log,
		})
		if err != nil {
			return fmt.Errorf("filesystem label store: %w", err)
		}
		labelService.SetArtifactStore(store)
		fileHandler = handler.NewFileHandler(store)
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	// Sync reconciliation
	policy, platforms, err := reconcilePolicy(cfg.Reconcile)
	if err != nil {
		return err
	}
	reconcileService, err := appintegration.NewReconcileService(statsRepo, platforms, policy, log)
	if err != nil {
		return fmt.Errorf("reconcile service: %w", err)
	}
	reconcileService.SetMetrics(metrics)
	if len(cfg.Reconcile.Feeds) > 0 {
		feed, err := ecommerce.NewHTTPFeed(cfg.Reconcile.Feeds, cfg.Reconcile.FeedTimeout, log)
		if err != nil {
			return fmt.Errorf("upstream feeds: %w", err)
		}
		reconcileService.SetSyncFeed(feed)
	}

	var jobs *scheduler.ReconcileScheduler
	if cfg.Scheduler.Enabled {
		jobs, err = startScheduler(ctx, cfg.Scheduler, reconcileService, metrics, lc, log)
		if err != nil {
			return err
		}
	}

	// HTTP
	outboxService := appevent.NewOutboxService(outboxRepo, log)
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version)
	systemHandler.AddCheck("database", func(context.Context) error { return db.Ping() })
	systemHandler.AddCheck("coordination", coordination.Ping)
	systemHandler.SetOutbox(outboxService)

	engine := router.NewEngine(router.EngineConfig{
		ServiceName:      serviceName,
		Release:          cfg.App.Env == "production",
		TracingEnabled:   providers.Enabled(),
		ProfilingEnabled: cfg.Telemetry.ProfilingEnabled,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
		CORSAllowOrigins: cfg.HTTP.CORSAllowOrigins,
		CORSAllowMethods: cfg.HTTP.CORSAllowMethods,
		CORSAllowHeaders: cfg.HTTP.CORSAllowHeaders,
		Metrics:          metrics,
		Logger:           log,
	}, router.Handlers{
		Orders:  handler.NewOrderHandler(orderService, statusService),
		Batches: handler.NewBatchHandler(batchService),
		Labels:  handler.NewLabelHandler(labelService),
		Files:   fileHandler,
		Sync:    handler.NewSyncHandler(reconcileService, jobs),
		Outbox:  handler.NewOutboxHandler(outboxService),
		System:  systemHandler,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func newSignalSink(cfg *config.Config, log *zap.Logger) (appfulfillment.SignalSink, error) {
	if !cfg.Kafka.Enabled {
		log.Info("Kafka disabled, downstream signals are logged only")
		return messaging.NewLogSignalSink(log), nil
	}
	sink, err := messaging.NewKafkaSignalSink(cfg.Kafka, log)
	if err != nil {
		return nil, fmt.Errorf("kafka signal sink: %w", err)
	}
	return sink, nil
}

func newRenderer(cfg *config.Config, log *zap.Logger) (fulfillment.LabelRenderer, error) {
	page := printing.DefaultLabelPage
	if cfg.Printing.PageWidthMM > 0 && cfg.Printing.PageHeightMM > 0 {
		page = printing.PageSize{WidthMM: cfg.Printing.PageWidthMM, HeightMM: cfg.Printing.PageHeightMM}
	}
	tmpl, err := printing.NewLabelTemplate(cfg.Printing.Locale, page)
	if err != nil {
		return nil, fmt.Errorf("label template: %w", err)
	}

	switch cfg.Printing.Renderer {
	case "html":
		return printing.NewHTMLRenderer(tmpl), nil
	case "", "chromedp":
		r, err := printing.NewChromedpRenderer(tmpl, &printing.ChromedpConfig{
			DefaultTimeout: cfg.Printing.RenderTimeout,
			ExecPath:       cfg.Printing.ChromePath,
			NoSandbox:      true,
			Logger:         log,
		})
		if err != nil {
			return nil, fmt.Errorf("chromedp renderer: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown label renderer %q", cfg.Printing.Renderer)
	}
}

func parseStatuses(names []string) ([]fulfillment.OrderStatus, error) {
	statuses := make([]fulfillment.OrderStatus, 0, len(names))
	for _, name := range names {
		s, err := fulfillment.ParseOrderStatus(name)
		if err != nil {
			return nil, fmt.Errorf("fulfillment.ready_statuses: %w", err)
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func reconcilePolicy(cfg config.ReconcileConfig) (integration.HealthPolicy, []fulfillment.Channel, error) {
	policy := integration.DefaultHealthPolicy()
	if cfg.StaleAfter > 0 {
		policy.StaleAfter = cfg.StaleAfter
	}
	if cfg.OffHoursStaleAfter > 0 {
		policy.OffHoursStaleAfter = cfg.OffHoursStaleAfter
	}
	if cfg.BusinessEndHour > 0 {
		policy.BusinessStartHour = cfg.BusinessStartHour
		policy.BusinessEndHour = cfg.BusinessEndHour
	}
	if cfg.CriticalFraction > 0 {
		policy.CriticalFraction = cfg.CriticalFraction
	}
	if cfg.LowVolumeRatio > 0 {
		policy.LowVolumeRatio = cfg.LowVolumeRatio
	}
	if cfg.TrailingDays > 0 {
		policy.TrailingDays = cfg.TrailingDays
	}
	if cfg.MinBaselineOrders > 0 {
		policy.MinBaselineOrders = cfg.MinBaselineOrders
	}
	if cfg.MaxGapDays > 0 {
		policy.MaxGapDays = cfg.MaxGapDays
	}
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return policy, nil, fmt.Errorf("reconcile.timezone: %w", err)
		}
		policy.Location = loc
	}

	if len(cfg.Platforms) == 0 {
		return policy, fulfillment.MarketplaceChannels(), nil
	}
	platforms := make([]fulfillment.Channel, 0, len(cfg.Platforms))
	for _, name := range cfg.Platforms {
		ch, err := fulfillment.ParseChannel(name)
		if err != nil {
			return policy, nil, fmt.Errorf("reconcile.platforms: %w", err)
		}
		platforms = append(platforms, ch)
	}
	return policy, platforms, nil
}

func startScheduler(
	ctx context.Context,
	cfg config.SchedulerConfig,
	reconcile *appintegration.ReconcileService,
	metrics *telemetry.FulfillmentMetrics,
	lc *lifecycle,
	log *zap.Logger,
) (*scheduler.ReconcileScheduler, error) {
	var store scheduler.JobStore
	if cfg.HistoryPath != "" {
		pebbleStore, err := scheduler.NewPebbleJobStore(cfg.HistoryPath, cfg.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("job history store: %w", err)
		}
		store = pebbleStore
	} else {
		store = scheduler.NewInMemoryJobStore(cfg.HistoryLimit)
	}
	lc.onClose("job history store", store)

	schedCfg := scheduler.DefaultReconcileSchedulerConfig()
	if cfg.MaxConcurrentJobs > 0 {
		schedCfg.MaxConcurrentJobs = cfg.MaxConcurrentJobs
	}
	if cfg.JobTimeout > 0 {
		schedCfg.JobTimeout = cfg.JobTimeout
	}
	if cfg.RetryAttempts >= 0 {
		schedCfg.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		schedCfg.RetryDelay = cfg.RetryDelay
	}

	jobs, err := scheduler.NewReconcileScheduler(schedCfg, scheduler.NewServiceExecutor(reconcile), store, log)
	if err != nil {
		return nil, fmt.Errorf("reconcile scheduler: %w", err)
	}
	jobs.SetMetrics(metrics)
	if err := jobs.Start(ctx); err != nil {
		return nil, fmt.Errorf("start reconcile scheduler: %w", err)
	}
	lc.onShutdown("reconcile scheduler", jobs.Stop)

	if cfg.ReconcileInterval > 0 {
		trigger := scheduler.NewPeriodicTrigger(cfg.ReconcileInterval, jobs, log)
		if err := trigger.Start(ctx); err != nil {
			return nil, fmt.Errorf("start periodic reconcile: %w", err)
		}
		lc.onShutdown("periodic reconcile", trigger.Stop)
	}
	return jobs, nil
}
