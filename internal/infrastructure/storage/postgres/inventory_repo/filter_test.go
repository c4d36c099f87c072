package inventory_repo

import (
	"testing"

	"stocktally/internal/core/id"
	"stocktally/internal/domain/inventory/batch"
	"stocktally/internal/domain/inventory/movement"
	"stocktally/internal/domain/inventory/transfer"
)

func TestBatchRepo_ApplyFilter(t *testing.T) {
	repo := NewBatchRepo()
	productID := id.New()
	warehouseID := id.New()

	tests := []struct {
		name     string
		filter   batch.Filter
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "no filter",
			filter:   batch.Filter{},
			wantSQL:  "SELECT * FROM inv_stock_batches",
			wantArgs: 0,
		},
		{
			name:     "product only",
			filter:   batch.Filter{ProductID: &productID},
			wantSQL:  "SELECT * FROM inv_stock_batches WHERE product_id = $1",
			wantArgs: 1,
		},
		{
			name:     "product, warehouse and non-empty",
			filter:   batch.Filter{ProductID: &productID, WarehouseID: &warehouseID, NonEmpty: true},
			wantSQL:  "SELECT * FROM inv_stock_batches WHERE product_id = $1 AND warehouse_id = $2 AND remaining_quantity > $3",
			wantArgs: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := repo.applyFilter(repo.builder.Select("*").From(stockBatchesTable), tt.filter)

			sql, args, err := q.ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}

			if sql != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", tt.wantSQL, sql)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("Args count mismatch\nwant: %d\ngot:  %d", tt.wantArgs, len(args))
			}
		})
	}
}

func TestTransferRepo_ApplyFilter(t *testing.T) {
	repo := NewTransferRepo()
	sourceID := id.New()
	status := transfer.StatusInTransit

	q := repo.applyFilter(
		repo.builder.Select("*").From(transfersTable),
		transfer.Filter{SourceWarehouseID: &sourceID, Status: &status},
	)

	sql, args, err := q.ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	wantSQL := "SELECT * FROM inv_transfers WHERE source_warehouse_id = $1 AND status = $2"
	if sql != wantSQL {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", wantSQL, sql)
	}
	if len(args) != 2 {
		t.Fatalf("Args count mismatch\nwant: 2\ngot:  %d", len(args))
	}
	if args[1] != status {
		t.Errorf("Args mismatch\nwant: %v\ngot:  %v", status, args[1])
	}
}

func TestMovementFilterArgs(t *testing.T) {
	productID := id.New()
	kind := movement.KindTransfer

	args := movementFilterArgs(movement.Filter{ProductID: &productID, Kind: &kind})

	if len(args) != 6 {
		t.Fatalf("expected 6 positional args, got %d", len(args))
	}
	if args[0] != productID {
		t.Errorf("product arg mismatch: %v", args[0])
	}
	if args[3] != string(kind) {
		t.Errorf("kind arg mismatch: %v", args[3])
	}
	// Unset filters must stay NULL so the SQL falls through.
	for _, i := range []int{1, 2, 4, 5} {
		if args[i] != nil {
			t.Errorf("arg %d should be nil, got %v", i, args[i])
		}
	}
}
