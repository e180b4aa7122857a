package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appevent "github.com/orderhub/backend/internal/application/event"
	app "github.com/orderhub/backend/internal/application/fulfillment"
	appintegration "github.com/orderhub/backend/internal/application/integration"
	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/integration"
	"github.com/orderhub/backend/internal/infrastructure/config"
	"github.com/orderhub/backend/internal/infrastructure/event"
	"github.com/orderhub/backend/internal/infrastructure/persistence"
	"github.com/orderhub/backend/internal/infrastructure/printing"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
	"github.com/orderhub/backend/internal/interfaces/http/dto"
	"github.com/orderhub/backend/internal/interfaces/http/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	sub := group.Group("nested", "/nested")
	sub.POST("/echo", func(c *gin.Context) { c.String(http.StatusOK, "echo") })
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))
	assert.Equal(t, "pong", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/test/nested/echo", nil))
	assert.Equal(t, "echo", w.Body.String())

	assert.Equal(t, "test", group.Name())
	assert.Equal(t, "/test", group.Prefix())
}

func TestDomainGroupMiddleware(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("guarded", "/guarded").Use(func(c *gin.Context) {
		c.Header("X-Group", "guarded")
		c.Next()
	})
	group.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	NewRouter(engine).Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/guarded", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "guarded", w.Header().Get("X-Group"))
}

// ==================== Full stack ====================

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
	Meta    *dto.Meta       `json:"meta"`
}

type testAPI struct {
	t       *testing.T
	engine  *gin.Engine
	metrics *telemetry.FulfillmentMetrics
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{
		Driver:     persistence.DriverSQLite,
		SQLitePath: ":memory:",
		LogLevel:   "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.AutoMigrate())

	serializer := event.NewEventSerializer()
	event.RegisterFulfillmentEvents(serializer)

	log := zap.NewNop()
	metrics := telemetry.NewFulfillmentMetrics()
	orderRepo := persistence.NewGormOrderRepository(database.DB, event.NewOutboxPublisher(serializer, 0))
	batchRepo := persistence.NewGormBatchRepository(database.DB)
	locks := app.NewOrderLocks()

	status := app.NewStatusService(orderRepo, locks, log)
	orders := app.NewOrderService(orderRepo, status, log)
	batches := app.NewBatchService(batchRepo, orderRepo, app.BatchServiceConfig{}, log)
	labels := app.NewLabelService(orderRepo, locks, log)
	status.SetBatchRecomputer(batches)
	labels.SetBatchRecomputer(batches)
	batches.SetMetrics(metrics)

	tmpl, err := printing.NewLabelTemplate("", printing.DefaultLabelPage)
	require.NoError(t, err)
	labels.SetRenderer(printing.NewHTMLRenderer(tmpl))

	reconcile, err := appintegration.NewReconcileService(
		persistence.NewGormOrderStatsRepository(database.DB),
		fulfillment.MarketplaceChannels(),
		integration.DefaultHealthPolicy(),
		log,
	)
	require.NoError(t, err)

	outbox := appevent.NewOutboxService(event.NewGormOutboxRepository(database.DB), log)
	system := handler.NewSystemHandler("orderhub", "test")
	system.AddCheck("database", func(ctx context.Context) error { return database.Ping() })
	system.SetOutbox(outbox)

	engine := NewEngine(EngineConfig{ServiceName: "orderhub", MaxBodySize: 1 << 20, Metrics: metrics, Logger: log}, Handlers{
		Orders:  handler.NewOrderHandler(orders, status),
		Batches: handler.NewBatchHandler(batches),
		Labels:  handler.NewLabelHandler(labels),
		Sync:    handler.NewSyncHandler(reconcile, nil),
		Outbox:  handler.NewOutboxHandler(outbox),
		System:  system,
	})
	return &testAPI{t: t, engine: engine, metrics: metrics}
}

func (a *testAPI) do(method, path string, body any) (*httptest.ResponseRecorder, apiEnvelope) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env apiEnvelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (a *testAPI) createPaidOrder(externalID string) uuid.UUID {
	a.t.Helper()
	w, env := a.do(http.MethodPost, "/api/v1/orders", map[string]any{
		"channel":           "marketplace-A",
		"external_order_id": externalID,
		"recipient_name":    "Ada Lovelace",
		"shipping_address":  "1 Analytical Way",
		"items": []map[string]any{
			{"sku": "MUG-1", "name": "Mug", "quantity": 2, "unit_price": "9.50"},
		},
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())

	var order app.OrderResponse
	require.NoError(a.t, json.Unmarshal(env.Data, &order))
	assert.Equal(a.t, "NEW", order.Status)

	w, _ = a.do(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/transition", map[string]any{"status": "PAID"})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return order.ID
}

func TestEngine_OrderLifecycle(t *testing.T) {
	api := newTestAPI(t)
	id := api.createPaidOrder("A-1")

	t.Run("skipping a step is rejected", func(t *testing.T) {
		w, env := api.do(http.MethodPost, "/api/v1/orders/"+id.String()+"/transition",
			map[string]any{"status": "READY_TO_SHIP"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INVALID_TRANSITION", env.Error.Kind)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("detail carries status history", func(t *testing.T) {
		w, env := api.do(http.MethodGet, "/api/v1/orders/"+id.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var detail app.OrderDetailResponse
		require.NoError(t, json.Unmarshal(env.Data, &detail))
		assert.Equal(t, "PAID", detail.Status)
		assert.NotEmpty(t, detail.StatusHistory)
	})

	t.Run("list filters by status", func(t *testing.T) {
		w, env := api.do(http.MethodGet, "/api/v1/orders?status=PAID&platform=marketplace-A", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var data OrderListPayload
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.EqualValues(t, 1, data.Total)
		require.Len(t, data.Orders, 1)
		assert.Equal(t, id, data.Orders[0].ID)
	})

	t.Run("unknown order is 404", func(t *testing.T) {
		w, env := api.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", env.Error.Kind)
	})

	t.Run("malformed id is a validation error", func(t *testing.T) {
		w, env := api.do(http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Kind)
	})

	t.Run("unknown channel is reported per field", func(t *testing.T) {
		w, env := api.do(http.MethodPost, "/api/v1/orders", map[string]any{
			"channel": "fax",
			"items":   []map[string]any{{"sku": "X", "quantity": 1}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotEmpty(t, env.Error.Details)
		assert.Equal(t, "channel", env.Error.Details[0].Field)
	})
}

// OrderListPayload mirrors handler.OrderListData for decoding
type OrderListPayload struct {
	Orders []app.OrderResponse `json:"orders"`
	Total  int64               `json:"total"`
}

func TestEngine_BulkTransitionIsPartial(t *testing.T) {
	api := newTestAPI(t)
	id := api.createPaidOrder("A-2")
	missing := uuid.New()

	w, env := api.do(http.MethodPost, "/api/v1/orders/transition", map[string]any{
		"order_ids": []string{id.String(), missing.String()},
		"status":    "PACKING",
		"actor_id":  "picker-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result app.BulkTransitionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, "NOT_FOUND", result.Results[1].Error.Kind)
}

func TestEngine_Batches(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(http.MethodPost, "/api/v1/batches", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "NO_ELIGIBLE_ORDERS", env.Error.Kind)

	api.createPaidOrder("A-10")
	api.createPaidOrder("A-11")

	w, env = api.do(http.MethodGet, "/api/v1/batches/pending-count?platform=marketplace-A", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var count handler.CountData
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.EqualValues(t, 2, count.Count)

	w, env = api.do(http.MethodPost, "/api/v1/batches", map[string]any{"platform": "marketplace-A"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var batch app.BatchResponse
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.Equal(t, 2, batch.OrderCount)

	w, env = api.do(http.MethodGet, "/api/v1/batches/"+batch.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail app.BatchDetailResponse
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Len(t, detail.Members, detail.OrderCount)

	w, _ = api.do(http.MethodPost, "/api/v1/batches/"+batch.ID.String()+"/recompute", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = api.do(http.MethodPost, "/api/v1/batches/"+batch.ID.String()+"/cancel", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Kind)

	w, _ = api.do(http.MethodPost, "/api/v1/batches/"+batch.ID.String()+"/cancel", map[string]any{"reason": "courier strike"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = api.do(http.MethodGet, "/api/v1/batches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 1, env.Meta.Total)
}

func TestEngine_Labels(t *testing.T) {
	api := newTestAPI(t)
	a := api.createPaidOrder("A-20")
	b := api.createPaidOrder("A-21")

	w, env := api.do(http.MethodGet, "/api/v1/labels/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []app.OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Len(t, pending, 2)

	w = httptest.NewRecorder()
	api.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/labels/artifact?ids="+a.String()+","+b.String(), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")
	assert.Equal(t, "2", w.Header().Get("X-Label-Count"))

	body := map[string]any{"order_ids": []string{a.String(), b.String()}}
	w, env = api.do(http.MethodPost, "/api/v1/labels/mark-printed", body)
	require.Equal(t, http.StatusOK, w.Code)
	var early app.MarkPrintedResult
	require.NoError(t, json.Unmarshal(env.Data, &early))
	assert.Equal(t, 0, early.UpdatedCount)
	require.Len(t, early.Failed, 2)
	for _, f := range early.Failed {
		require.NotNil(t, f.Error)
		assert.Equal(t, "INVALID_STATE", f.Error.Kind)
	}

	w, _ = api.do(http.MethodPost, "/api/v1/orders/transition", map[string]any{
		"order_ids": []string{a.String(), b.String()},
		"status":    "PACKING",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = api.do(http.MethodPost, "/api/v1/labels/mark-printed", body)
	require.Equal(t, http.StatusOK, w.Code)
	var first app.MarkPrintedResult
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, 2, first.UpdatedCount)

	w, env = api.do(http.MethodPost, "/api/v1/labels/mark-printed", body)
	require.Equal(t, http.StatusOK, w.Code)
	var second app.MarkPrintedResult
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, 0, second.UpdatedCount)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, second.SkippedIDs)

	w, _ = api.do(http.MethodGet, "/api/v1/labels/artifact?ids=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEngine_SyncAndSystem(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(http.MethodGet, "/api/v1/sync/health", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report integration.HealthReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Len(t, report.Platforms, len(fulfillment.MarketplaceChannels()))

	w, _ = api.do(http.MethodGet, "/api/v1/sync/gaps?days=3", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = api.do(http.MethodGet, "/api/v1/sync/gaps?days=0", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = api.do(http.MethodPost, "/api/v1/sync/reconcile-jobs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, dto.KindServiceUnavailable, env.Error.Kind)

	w, env = api.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, handler.ComponentUp, health.Components["database"])
	assert.Equal(t, handler.ComponentUp, health.Components["outbox"])

	w, _ = api.do(http.MethodGet, "/api/v1/system/outbox/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	api.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/api/v1/sync/health"`)
}
