// Package main imports legacy warehouse transfers into the adjustment
// ledger. Each input row becomes a pair of transfer legs sharing one
// reference, so the movement feed shows history recorded before the
// transfer workflow existed.
//
// Input is CSV with a header row:
//
//	source_batch_id,dest_batch_id,quantity,reference,occurred_at
//
// Usage: backfill <transfers.csv>
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"stocktally/internal/core/id"
	"stocktally/internal/core/tenant"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/adjustment"
	"stocktally/internal/infrastructure/storage/postgres"
	"stocktally/internal/infrastructure/storage/postgres/inventory_repo"
	"stocktally/pkg/logger"
	"stocktally/pkg/numerator"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: backfill <transfers.csv>")
		os.Exit(1)
	}
	path := os.Args[1]

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	ctx = tenant.WithTxManager(ctx, txManager)

	adjustments := adjustment.NewService(
		inventory_repo.NewAdjustmentRepo(),
		inventory_repo.NewBatchRepo(),
		numerator.NewFromContext(),
		nil,
	)

	file, err := os.Open(path)
	if err != nil {
		log.Fatalw("failed to open input file", "path", path, "error", err)
	}
	defer file.Close()

	imported, failed, err := importTransfers(ctx, adjustments, file, log)
	if err != nil {
		log.Fatalw("backfill aborted", "error", err)
	}

	log.Infow("backfill finished", "imported", imported, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func importTransfers(ctx context.Context, adjustments *adjustment.Service, input io.Reader, log *logger.Logger) (imported, failed int, err error) {
	reader := csv.NewReader(input)
	reader.FieldsPerRecord = 5

	// Header row.
	if _, err := reader.Read(); err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, failed, fmt.Errorf("line %d: %w", line, err)
		}

		row, err := parseRow(record)
		if err != nil {
			log.Errorw("skipping malformed row", "line", line, "error", err)
			failed++
			continue
		}

		err = adjustments.ApplyTransferPair(ctx, row.sourceBatchID, row.destBatchID, row.quantity, row.reference, row.occurredAt)
		if err != nil {
			log.Errorw("failed to import transfer", "line", line, "reference", row.reference, "error", err)
			failed++
			continue
		}
		imported++
	}

	return imported, failed, nil
}

type transferRow struct {
	sourceBatchID id.ID
	destBatchID   id.ID
	quantity      types.Quantity
	reference     string
	occurredAt    time.Time
}

func parseRow(record []string) (transferRow, error) {
	var row transferRow
	var err error

	if row.sourceBatchID, err = id.Parse(record[0]); err != nil {
		return row, fmt.Errorf("source_batch_id: %w", err)
	}
	if row.destBatchID, err = id.Parse(record[1]); err != nil {
		return row, fmt.Errorf("dest_batch_id: %w", err)
	}

	var qty types.Quantity
	if err = qty.UnmarshalJSON([]byte(record[2])); err != nil {
		return row, fmt.Errorf("quantity: %w", err)
	}
	row.quantity = qty

	row.reference = record[3]
	if row.reference == "" {
		return row, fmt.Errorf("reference is required")
	}

	if row.occurredAt, err = time.Parse(time.RFC3339, record[4]); err != nil {
		return row, fmt.Errorf("occurred_at: %w", err)
	}
	return row, nil
}
