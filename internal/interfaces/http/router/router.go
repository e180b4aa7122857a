// Package router assembles the gin engine: middleware chain, system
// endpoints and the versioned fulfillment API.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/infrastructure/logger"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
	"github.com/orderhub/backend/internal/interfaces/http/handler"
	"github.com/orderhub/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages versioned API route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered by Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one resource before registration
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new resource route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// Group creates a sub-group within this group
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	subgroup := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, subgroup)
	return subgroup
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
	for _, subgroup := range dg.subgroups {
		subgroup.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Handlers holds every HTTP handler the engine serves. Files, Outbox and
// Metrics are optional.
type Handlers struct {
	Orders  *handler.OrderHandler
	Batches *handler.BatchHandler
	Labels  *handler.LabelHandler
	Files   *handler.FileHandler
	Sync    *handler.SyncHandler
	Outbox  *handler.OutboxHandler
	System  *handler.SystemHandler
}

// EngineConfig configures the middleware chain
type EngineConfig struct {
	ServiceName      string
	Release          bool
	TracingEnabled   bool
	ProfilingEnabled bool
	MaxBodySize      int64
	TrustedProxies   []string
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	Metrics          *telemetry.FulfillmentMetrics
	Logger           *zap.Logger
}

// NewEngine builds the gin engine with the full middleware chain and routes
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.ContextWithFallback = true
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn("Failed to set trusted proxies", zap.Error(err))
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.CORSAllowOrigins
	}
	if len(cfg.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.CORSAllowHeaders
	}
	cors.MaxAge = 12 * time.Hour

	// order matters: the request id must exist before tracing, logging and recovery read it
	engine.Use(
		middleware.RequestID(log),
		middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled),
		middleware.SpanAttributes(),
		middleware.Recovery(log),
		logger.GinMiddleware(log),
		middleware.Metrics(cfg.Metrics),
		middleware.Profiling(middleware.ProfilingConfig{
			Enabled:   cfg.ProfilingEnabled,
			SkipPaths: middleware.DefaultProfilingConfig().SkipPaths,
		}),
		middleware.Secure(),
		middleware.CORSWithConfig(cors),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}
	if cfg.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	for _, g := range apiGroups(h) {
		r.Register(g)
	}
	r.Setup()
	return engine
}

func apiGroups(h Handlers) []*DomainGroup {
	var groups []*DomainGroup

	if h.Orders != nil {
		orders := NewDomainGroup("orders", "/orders")
		orders.GET("", h.Orders.List).
			POST("", h.Orders.Create).
			POST("/ingest", h.Orders.Ingest).
			POST("/transition", h.Orders.BulkTransition).
			GET("/:id", h.Orders.GetByID).
			POST("/:id/transition", h.Orders.Transition)
		groups = append(groups, orders)
	}

	if h.Batches != nil {
		batches := NewDomainGroup("batches", "/batches")
		batches.GET("", h.Batches.List).
			POST("", h.Batches.Create).
			GET("/pending-count", h.Batches.PendingCount).
			GET("/:id", h.Batches.GetByID).
			POST("/:id/recompute", h.Batches.Recompute).
			POST("/:id/cancel", h.Batches.Cancel)
		groups = append(groups, batches)
	}

	if h.Labels != nil {
		labels := NewDomainGroup("labels", "/labels")
		labels.GET("/pending", h.Labels.Pending).
			POST("/mark-printed", h.Labels.MarkPrinted).
			GET("/artifact", h.Labels.Artifact)
		if h.Files != nil {
			labels.GET("/files/*path", h.Files.Serve)
		}
		groups = append(groups, labels)
	}

	if h.Sync != nil {
		sync := NewDomainGroup("sync", "/sync")
		sync.GET("/health", h.Sync.Health).
			GET("/gaps", h.Sync.Gaps)
		jobs := sync.Group("reconcile-jobs", "/reconcile-jobs")
		jobs.GET("", h.Sync.ListJobs).
			POST("", h.Sync.SubmitJob).
			GET("/:id", h.Sync.GetJob)
		groups = append(groups, sync)
	}

	if h.Outbox != nil {
		system := NewDomainGroup("system", "/system")
		outbox := system.Group("outbox", "/outbox")
		outbox.GET("/stats", h.Outbox.GetStats).
			GET("/dead", h.Outbox.GetDeadLetterEntries).
			POST("/dead/retry-all", h.Outbox.RetryAllDeadEntries).
			GET("/:id", h.Outbox.GetEntry).
			POST("/:id/retry", h.Outbox.RetryDeadEntry)
		groups = append(groups, system)
	}

	return groups
}
