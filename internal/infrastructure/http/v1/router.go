// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocktally/internal/core/tenant"
	"stocktally/internal/domain/inventory/adjustment"
	"stocktally/internal/domain/inventory/batch"
	"stocktally/internal/domain/inventory/movement"
	"stocktally/internal/domain/inventory/reconciliation"
	"stocktally/internal/domain/inventory/reservation"
	"stocktally/internal/domain/inventory/storefront"
	"stocktally/internal/domain/inventory/transfer"
	"stocktally/internal/domain/sales"
	"stocktally/internal/infrastructure/http/v1/handlers"
	"stocktally/internal/infrastructure/http/v1/middleware"
	"stocktally/internal/infrastructure/storage/postgres"
	"stocktally/internal/infrastructure/storage/postgres/inventory_repo"
	"stocktally/internal/infrastructure/storage/postgres/sales_repo"
	"stocktally/pkg/logger"
	"stocktally/pkg/numerator"
)

// RouterConfig holds router configuration for multi-tenant architecture.
type RouterConfig struct {
	// TenantManager manages database connections for all tenants
	TenantManager *tenant.Manager

	// MetaPool is connection to meta-database (for health checks)
	MetaPool *pgxpool.Pool

	// Logger for request logging
	Logger *logger.Logger

	// TokenValidator for bearer token validation
	TokenValidator middleware.TokenValidator

	// IdempotencyEnabled enables idempotency middleware
	IdempotencyEnabled bool

	// IdempotencyTTL is how long completed responses stay replayable.
	// Zero means the store default.
	IdempotencyTTL time.Duration

	// ReservationTTL overrides the default hold duration. Zero keeps
	// the service default.
	ReservationTTL time.Duration

	// OrphanPolicy decides whether orphaned holds block availability
	// or are released by the sweep. Empty keeps the service default.
	OrphanPolicy reservation.OrphanPolicy
}

// NewRouter creates and configures the Gin router for multi-tenant architecture.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth, no tenant required)
	healthHandler := handlers.NewHealthHandler(cfg.MetaPool, cfg.TenantManager)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
		health.GET("/tenants", healthHandler.TenantsStats)
	}

	// Audit store is a process-wide singleton; it picks up the tenant
	// TxManager from the request context on every Record call.
	auditStore, err := postgres.NewAuditStore()
	if err != nil {
		return nil, err
	}

	// API v1: TenantDB runs first so every downstream layer sees the
	// tenant pool and TxManager in context, then Auth.
	api := router.Group("/api/v1")
	api.Use(middleware.TenantDB(cfg.TenantManager))
	api.Use(middleware.Auth(cfg.TokenValidator))

	if cfg.IdempotencyEnabled {
		api.Use(idempotencyMiddleware(cfg.IdempotencyTTL))
	}

	registerInventoryRoutes(api, cfg, auditStore)
	registerSalesRoutes(api, cfg, auditStore)

	return router, nil
}

// idempotencyMiddleware creates idempotency middleware that builds the store
// from the tenant TxManager resolved for this request.
func idempotencyMiddleware(ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		txm := postgres.MustGetTxManager(c.Request.Context())
		store := postgres.NewIdempotencyStore(txm, ttl)
		middleware.Idempotency(store)(c)
	}
}

// registerInventoryRoutes registers stock, transfer, reservation, adjustment,
// movement and reconciliation endpoints.
//
// Repos and services are created once; the TxManager is obtained from the
// request context per call, so they are safe to share across tenants.
func registerInventoryRoutes(rg *gin.RouterGroup, cfg RouterConfig, auditStore *postgres.AuditStore) {
	baseHandler := handlers.NewBaseHandler()
	num := numerator.NewFromContext()

	batchRepo := inventory_repo.NewBatchRepo()
	storefrontRepo := inventory_repo.NewStorefrontRepo()
	adjustmentRepo := inventory_repo.NewAdjustmentRepo()
	transferRepo := inventory_repo.NewTransferRepo()
	reservationRepo := inventory_repo.NewReservationRepo()
	movementRepo := inventory_repo.NewMovementRepo()

	batchService := batch.NewService(batchRepo, nil)
	storefrontService := storefront.NewService(storefrontRepo)
	reservationService := reservation.NewService(reservationRepo, storefrontRepo, nil)
	if cfg.ReservationTTL > 0 || cfg.OrphanPolicy != "" {
		reservationService = reservationService.WithDefaults(cfg.ReservationTTL, cfg.OrphanPolicy)
	}
	adjustmentService := adjustment.NewService(adjustmentRepo, batchRepo, num, nil)
	transferService := transfer.NewService(transferRepo, batchRepo, storefrontRepo, num, nil)
	movementService := movement.NewService(movementRepo)
	reconciliationService := reconciliation.NewService(batchRepo, storefrontRepo, adjustmentRepo, reservationRepo, movementRepo)

	// --- BATCHES ---
	{
		handler := handlers.NewBatchHandler(baseHandler, batchService, auditStore)
		handler.RegisterRoutes(rg.Group("/batches"))
	}

	// --- STOREFRONTS ---
	{
		handler := handlers.NewStorefrontHandler(baseHandler, storefrontService, reservationService)
		handler.RegisterRoutes(rg.Group("/storefronts"))
	}

	// --- RESERVATIONS ---
	{
		handler := handlers.NewReservationHandler(baseHandler, reservationService, auditStore)
		handler.RegisterRoutes(rg.Group("/reservations"))
	}

	// --- TRANSFERS ---
	{
		handler := handlers.NewTransferHandler(baseHandler, transferService, auditStore)
		handler.RegisterRoutes(rg.Group("/transfers"))
	}

	// --- ADJUSTMENTS ---
	{
		handler := handlers.NewAdjustmentHandler(baseHandler, adjustmentService, auditStore)
		handler.RegisterRoutes(rg.Group("/adjustments", middleware.RequireRole("manager")))
	}

	// --- MOVEMENTS ---
	{
		handler := handlers.NewMovementHandler(baseHandler, movementService)
		handler.RegisterRoutes(rg.Group("/movements"))
	}

	// --- RECONCILIATION ---
	{
		handler := handlers.NewReconciliationHandler(baseHandler, reconciliationService)
		handler.RegisterRoutes(rg.Group("/reconciliation", middleware.RequireRole("manager")))
	}
}

// registerSalesRoutes registers cart endpoints.
func registerSalesRoutes(rg *gin.RouterGroup, cfg RouterConfig, auditStore *postgres.AuditStore) {
	baseHandler := handlers.NewBaseHandler()
	num := numerator.NewFromContext()

	storefrontRepo := inventory_repo.NewStorefrontRepo()
	reservationRepo := inventory_repo.NewReservationRepo()
	reservationService := reservation.NewService(reservationRepo, storefrontRepo, nil)
	if cfg.ReservationTTL > 0 || cfg.OrphanPolicy != "" {
		reservationService = reservationService.WithDefaults(cfg.ReservationTTL, cfg.OrphanPolicy)
	}

	saleRepo := sales_repo.NewSaleRepo()
	saleService := sales.NewService(saleRepo, reservationService, num, nil)

	handler := handlers.NewSaleHandler(baseHandler, saleService, auditStore)
	handler.RegisterRoutes(rg.Group("/sales"))
}
