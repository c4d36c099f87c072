// Package main is the entry point for the stocktally background worker.
// Multi-tenant architecture: sweeps expired holds and stale system records
// for all active tenants.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stocktally/internal/core/tenant"
	"stocktally/internal/domain/inventory/reservation"
	"stocktally/internal/infrastructure/storage/postgres"
	"stocktally/internal/infrastructure/storage/postgres/inventory_repo"
	"stocktally/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting stocktally multi-tenant worker")

	metaPool, err := pgxpool.New(ctx, mustEnv("META_DATABASE_URL"))
	if err != nil {
		log.Fatalw("failed to connect to meta database", "error", err)
	}
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)

	managerCfg := tenant.DefaultManagerConfig()
	managerCfg.DBUser = mustEnv("TENANT_DB_USER")
	managerCfg.DBPassword = mustEnv("TENANT_DB_PASSWORD")
	managerCfg.PoolIdleTimeout = 10 * time.Minute // Shorter for worker

	manager := tenant.NewManager(managerCfg, registry, log)
	defer manager.Close()

	worker := NewSweepWorker(manager, log, getEnvDuration("SWEEP_INTERVAL", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// SweepWorker runs the reservation expiry sweep and system-table cleanup
// for every active tenant.
type SweepWorker struct {
	manager       *tenant.Manager
	log           *logger.Logger
	sweepInterval time.Duration
}

func NewSweepWorker(manager *tenant.Manager, log *logger.Logger, sweepInterval time.Duration) *SweepWorker {
	return &SweepWorker{
		manager:       manager,
		log:           log.WithComponent("worker"),
		sweepInterval: sweepInterval,
	}
}

// Run starts a sweep goroutine per active tenant and keeps the set in sync
// with the registry.
func (w *SweepWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	var wg sync.WaitGroup
	tenantContexts := make(map[string]context.CancelFunc) // tenant_id -> cancel
	var mu sync.Mutex

	w.refreshTenants(ctx, &wg, tenantContexts, &mu)

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, cancel := range tenantContexts {
				cancel()
			}
			mu.Unlock()
			wg.Wait()
			return

		case <-ticker.C:
			w.refreshTenants(ctx, &wg, tenantContexts, &mu)
		}
	}
}

func (w *SweepWorker) refreshTenants(ctx context.Context, wg *sync.WaitGroup, tenantContexts map[string]context.CancelFunc, mu *sync.Mutex) {
	tenants, err := w.manager.GetActiveTenants(ctx)
	if err != nil {
		w.log.Errorw("failed to get active tenants", "error", err)
		return
	}

	activeTenants := make(map[string]*tenant.Tenant, len(tenants))
	for _, t := range tenants {
		activeTenants[t.ID] = t
	}

	mu.Lock()
	defer mu.Unlock()

	for tenantID, cancel := range tenantContexts {
		if _, active := activeTenants[tenantID]; !active {
			cancel()
			delete(tenantContexts, tenantID)
			w.log.Infow("stopped sweep for inactive tenant", "tenant_id", tenantID)
		}
	}

	for _, t := range tenants {
		if _, exists := tenantContexts[t.ID]; !exists {
			tenantCtx, tenantCancel := context.WithCancel(ctx)
			tenantContexts[t.ID] = tenantCancel

			wg.Add(1)
			go func(t *tenant.Tenant) {
				defer wg.Done()
				w.runTenantSweep(tenantCtx, t)
			}(t)

			w.log.Infow("started sweep for tenant", "tenant_id", t.ID)
		}
	}
}

func (w *SweepWorker) runTenantSweep(ctx context.Context, t *tenant.Tenant) {
	mp, err := w.manager.GetPool(ctx, t.ID)
	if err != nil {
		w.log.Errorw("failed to get pool for tenant", "tenant_id", t.ID, "error", err)
		return
	}
	mp.AcquireRef()
	defer mp.ReleaseRef()

	txManager := postgres.NewTxManagerFromRawPool(mp.Pool())

	// Domain services resolve the TxManager and tenant settings from
	// context, same as in the HTTP path.
	tenantCtx := tenant.WithPool(ctx, mp.Pool())
	tenantCtx = tenant.WithTxManager(tenantCtx, txManager)
	tenantCtx = tenant.WithTenant(tenantCtx, t)

	storefrontRepo := inventory_repo.NewStorefrontRepo()
	reservationRepo := inventory_repo.NewReservationRepo()
	reservations := reservation.NewService(reservationRepo, storefrontRepo, nil)
	if policy := reservation.OrphanPolicy(getEnv("RESERVATION_ORPHAN_POLICY", "")); policy != "" {
		reservations = reservations.WithDefaults(0, policy)
	}

	idempotency := postgres.NewIdempotencyStore(txManager, 0)

	sweepTicker := time.NewTicker(w.sweepInterval)
	defer sweepTicker.Stop()

	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("stopping sweep for tenant", "tenant_id", t.ID)
			return
		case <-sweepTicker.C:
			if _, err := reservations.ExpireSweep(tenantCtx); err != nil {
				w.log.Errorw("reservation sweep failed", "tenant_id", t.ID, "error", err)
			}
		case <-cleanupTicker.C:
			w.cleanupIdempotency(tenantCtx, idempotency, t.ID)
		}
	}
}

func (w *SweepWorker) cleanupIdempotency(ctx context.Context, store *postgres.IdempotencyStore, tenantID string) {
	removed, err := store.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "tenant_id", tenantID, "error", err)
		return
	}
	if removed > 0 {
		w.log.Infow("cleaned up idempotency keys", "tenant_id", tenantID, "count", removed)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
