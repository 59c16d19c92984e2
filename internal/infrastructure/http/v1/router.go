package v1

import (
	"github.com/gin-gonic/gin"

	"orderflow/internal/app"
	"orderflow/internal/infrastructure/http/v1/handlers"
	"orderflow/internal/infrastructure/http/v1/middleware"
	"orderflow/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Services *app.Services

	// Logger for request logging
	Logger *logger.Logger

	// IdempotencyEnabled enables the X-Idempotency-Key middleware
	IdempotencyEnabled bool

	// StorageDriver and Version are reported by /health/info
	StorageDriver string
	Version       string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Services.Storage.Ping, cfg.Services.Storage.Stats, cfg.StorageDriver, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Actor())
	if cfg.IdempotencyEnabled {
		api.Use(middleware.Idempotency(cfg.Services.Storage.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerCatalogRoutes(api, base, cfg.Services)
	registerLedgerRoutes(api, base, cfg.Services)
	registerDocumentRoutes(api, base, cfg.Services)
	registerReportRoutes(api, base, cfg.Services)

	return router
}

func registerCatalogRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	RegisterCatalogRoutes(rg.Group("/products"), handlers.NewProductHandler(base, svc.Products))
}

func registerLedgerRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	h := handlers.NewLedgerHandler(base, svc.Ledger, svc.Aggregator)

	g := rg.Group("/ledger")
	g.GET("/balances", h.GetBalances)
	g.GET("/entries", h.GetEntries)
	g.POST("/transfers", h.Transfer)
	g.POST("/adjustments", h.Adjust)
	g.POST("/receipts", h.ReceiveProduction)
	g.POST("/verify", h.Verify)
	g.POST("/rebuild", h.Rebuild)
}

func registerDocumentRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	// --- QUOTATIONS ---
	{
		h := handlers.NewQuotationHandler(base, svc.Quotations)
		RegisterDocumentRoutes(rg.Group("/quotations"), h, map[string]gin.HandlerFunc{
			"send":    h.Send,
			"approve": h.Approve,
			"reject":  h.Reject,
			"convert": h.Convert,
			"revise":  h.Revise,
		})
	}

	// --- SALES ORDERS ---
	{
		h := handlers.NewSalesOrderHandler(base, svc.SalesOrders)
		g := rg.Group("/sales-orders")
		RegisterDocumentRoutes(g, h, map[string]gin.HandlerFunc{
			"confirm": h.Confirm,
			"ship":    h.Ship,
			"deliver": h.Deliver,
			"cancel":  h.Cancel,
		})
		g.PUT("/:id/payment-status", h.SetPaymentStatus)
		g.PUT("/:id/shipping-status", h.SetShippingStatus)
		g.GET("/:id/fulfillment", h.GetFulfillment)
	}

	// --- JOB ORDERS ---
	{
		h := handlers.NewJobOrderHandler(base, svc.JobOrders, svc.Engine, svc.Audit)
		g := rg.Group("/job-orders")
		RegisterDocumentRoutes(g, h, map[string]gin.HandlerFunc{
			"start":    h.Start,
			"hold":     h.Hold,
			"resume":   h.Resume,
			"complete": h.Complete,
			"cancel":   h.Cancel,
		})
		g.PATCH("/:id", h.UpdateHeader)
		g.GET("/:id/summary", h.Summary)

		lines := rg.Group("/job-order-lines")
		lines.GET("/:lineId", h.GetLine)
		lines.GET("/:lineId/history", h.LineHistory)
		lines.PUT("/:lineId/reservation", h.SetReservation)
		lines.PUT("/:lineId/tranches/:index", h.RecordTranche)
		lines.POST("/:lineId/recompute", h.Recompute)

		rg.POST("/maintenance/recompute-lines", h.RecomputeEverything)
	}
}

func registerReportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	h := handlers.NewReportsHandler(base, svc.Reports)

	g := rg.Group("/reports")
	g.GET("/stock-overview", h.GetStockOverview)
	g.GET("/low-stock", h.GetLowStock)
}
