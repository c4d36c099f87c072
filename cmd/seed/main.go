// Package main provides a CLI tool for seeding a tenant database with demo
// inventory. Batch intake uses COPY, so large volumes load quickly.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"stocktally/internal/core/id"
	"stocktally/internal/core/tenant"
	"stocktally/internal/core/types"
	"stocktally/internal/infrastructure/storage/postgres"
	"stocktally/internal/infrastructure/storage/postgres/inventory_repo"
	"stocktally/pkg/logger"
)

var batchColumns = []string{
	"id", "product_id", "warehouse_id",
	"recorded_quantity", "remaining_quantity",
	"unit_cost", "retail_price", "wholesale_price",
	"received_at", "created_at", "updated_at", "created_by", "version",
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// DATABASE_URL points at one tenant database, not the meta database.
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to tenant database")

	txManager := postgres.NewTxManager(pool)
	ctx = tenant.WithTxManager(ctx, txManager)

	products := getEnvInt("SEED_PRODUCTS", 50)
	warehouses := getEnvInt("SEED_WAREHOUSES", 2)
	storefronts := getEnvInt("SEED_STOREFRONTS", 3)
	batchesPerProduct := getEnvInt("SEED_BATCHES_PER_PRODUCT", 4)

	productIDs := newIDs(products)
	warehouseIDs := newIDs(warehouses)
	storefrontIDs := newIDs(storefronts)

	inserted, err := seedBatches(ctx, txManager, productIDs, warehouseIDs, batchesPerProduct)
	if err != nil {
		log.Fatalw("failed to seed stock batches", "error", err)
	}
	log.Infow("stock batches seeded", "count", inserted)

	if err := seedStorefronts(ctx, productIDs, storefrontIDs); err != nil {
		log.Fatalw("failed to seed storefront inventory", "error", err)
	}
	log.Infow("storefront inventory seeded",
		"storefronts", storefronts,
		"positions", storefronts*products,
	)

	log.Info("seeding completed successfully")
}

// seedBatches streams generated intake rows through the COPY-based inserter.
func seedBatches(ctx context.Context, txManager *postgres.TxManager, productIDs, warehouseIDs []id.ID, perProduct int) (int64, error) {
	inserter := postgres.NewBatchInserter(txManager, "inv_stock_batches", batchColumns)

	rows := make(chan []any)
	go func() {
		defer close(rows)
		now := time.Now()

		for _, productID := range productIDs {
			unitCost := types.NewMoney(1 + rand.Float64()*90)
			retail := unitCost.Mul(types.NewMoney(1.4))

			for i := 0; i < perProduct; i++ {
				warehouseID := warehouseIDs[rand.Intn(len(warehouseIDs))]
				qty := types.NewQuantityFromInt(int64(10 + rand.Intn(200)))
				receivedAt := now.AddDate(0, 0, -rand.Intn(90))

				rows <- []any{
					id.New(), productID, warehouseID,
					qty, qty,
					unitCost, retail, nil,
					receivedAt, now, now, "seed", 1,
				}
			}
		}
	}()

	return inserter.InsertFromChannel(ctx, rows)
}

// seedStorefronts puts a small shelf quantity of every product in every
// storefront. Goes through the repo so it exercises the same upsert the
// transfer completion path uses.
func seedStorefronts(ctx context.Context, productIDs, storefrontIDs []id.ID) error {
	repo := inventory_repo.NewStorefrontRepo()

	for _, storefrontID := range storefrontIDs {
		for _, productID := range productIDs {
			qty := types.NewQuantityFromInt(int64(1 + rand.Intn(20)))
			if err := repo.UpsertAdd(ctx, storefrontID, productID, qty); err != nil {
				return fmt.Errorf("upsert position: %w", err)
			}
		}
	}
	return nil
}

func newIDs(n int) []id.ID {
	ids := make([]id.ID, n)
	for i := range ids {
		ids[i] = id.New()
	}
	return ids
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}
