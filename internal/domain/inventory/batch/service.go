package batch

import (
	"context"
	"fmt"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/tenant"
	"stocktally/internal/core/tx"
	"stocktally/internal/core/types"
	"stocktally/pkg/logger"
)

// Service provides business operations for stock batches.
// In Database-per-Tenant architecture, TxManager is obtained from context.
type Service struct {
	repo      Repository
	txManager tx.Manager // Optional. If nil, obtained from context (DB-per-tenant).
}

// NewService creates a new batch service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{repo: repo, txManager: txManager}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// Intake registers a received lot. Remaining starts equal to recorded and the
// recorded quantity is immutable from here on.
func (s *Service) Intake(ctx context.Context, b *StockBatch) error {
	if b.RemainingQuantity.IsZero() && !b.RecordedQuantity.IsZero() {
		b.RemainingQuantity = b.RecordedQuantity
	}
	if err := b.Validate(ctx); err != nil {
		return err
	}
	if b.RemainingQuantity != b.RecordedQuantity {
		return apperror.NewValidation("batch must be received in full").
			WithDetail("recorded", b.RecordedQuantity.String()).
			WithDetail("remaining", b.RemainingQuantity.String())
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, b); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "stock batch received",
		"id", b.ID,
		"product_id", b.ProductID,
		"warehouse_id", b.WarehouseID,
		"quantity", b.RecordedQuantity.String(),
	)
	return nil
}

// GetByID retrieves a batch.
func (s *Service) GetByID(ctx context.Context, batchID id.ID) (*StockBatch, error) {
	return s.repo.GetByID(ctx, batchID)
}

// List returns batches matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]StockBatch, int64, error) {
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// WarehouseOnHand returns the summed remaining quantity for a product at a warehouse.
func (s *Service) WarehouseOnHand(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error) {
	return s.repo.SumRemaining(ctx, productID, warehouseID)
}
