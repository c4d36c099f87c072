package transfer

import (
	"context"
	"fmt"
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/tenant"
	"stocktally/internal/core/tx"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/batch"
	"stocktally/internal/domain/inventory/storefront"
	"stocktally/pkg/logger"
	"stocktally/pkg/numerator"
)

// NumeratorStrategy for transfer references.
const NumeratorStrategy = numerator.StrategyCached

// Service drives the transfer workflow.
// In Database-per-Tenant architecture, TxManager is obtained from context.
type Service struct {
	repo        Repository
	batches     batch.Repository
	storefronts storefront.Repository
	numerator   *numerator.Service
	txManager   tx.Manager // Optional. If nil, obtained from context (DB-per-tenant).
}

// NewService creates a new transfer service.
func NewService(
	repo Repository,
	batches batch.Repository,
	storefronts storefront.Repository,
	num *numerator.Service,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:        repo,
		batches:     batches,
		storefronts: storefronts,
		numerator:   num,
		txManager:   txManager,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// Create validates availability and registers a pending transfer. Source
// batches are locked for the duration of the check so concurrent creates
// cannot both claim the last units. Nothing moves yet: the claim only
// shrinks what later creates see as available.
func (s *Service) Create(ctx context.Context, t *Transfer) error {
	if err := t.Validate(ctx); err != nil {
		return err
	}

	if t.Reference == "" {
		cfg := numerator.DefaultConfig("TRF")
		ref, err := s.numerator.GetNextNumber(ctx, cfg, &numerator.Options{Strategy: NumeratorStrategy}, time.Now())
		if err != nil {
			return fmt.Errorf("generate reference: %w", err)
		}
		t.Reference = ref
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// Lines of this document claiming the same batch count against
		// each other, not just against other transfers.
		ownClaims := make(map[id.ID]types.Quantity, len(t.Lines))
		for _, line := range t.Lines {
			b, err := s.batches.GetByIDForUpdate(ctx, line.BatchID)
			if err != nil {
				return err
			}
			if b.WarehouseID != t.SourceWarehouseID {
				return apperror.NewValidation("batch does not belong to source warehouse").
					WithDetail("batchId", b.ID.String()).
					WithDetail("lineNo", line.LineNo)
			}
			if b.ProductID != line.ProductID {
				return apperror.NewValidation("line product does not match batch").
					WithDetail("lineNo", line.LineNo)
			}

			claimed, err := s.repo.ClaimedQuantity(ctx, line.BatchID, t.ID)
			if err != nil {
				return fmt.Errorf("sum claims: %w", err)
			}
			available := b.RemainingQuantity - claimed - ownClaims[line.BatchID]
			if line.Quantity > available {
				return apperror.NewInsufficientStock(
					b.ProductID.String(),
					line.Quantity.String(),
					available.String(),
				).WithDetail("batch_id", b.ID.String())
			}
			ownClaims[line.BatchID] += line.Quantity
		}

		if err := s.repo.Create(ctx, t); err != nil {
			return fmt.Errorf("create transfer: %w", err)
		}
		if err := s.repo.SaveLines(ctx, t.ID, t.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "transfer created",
		"id", t.ID,
		"reference", t.Reference,
		"source_warehouse_id", t.SourceWarehouseID,
		"destination_type", t.DestinationType,
		"lines", len(t.Lines),
	)
	return nil
}

// Dispatch moves a pending transfer to in_transit.
func (s *Service) Dispatch(ctx context.Context, transferID id.ID) error {
	return s.updateState(ctx, transferID, StatusInTransit, "")
}

// Cancel terminates a non-completed transfer, releasing its claim.
func (s *Service) Cancel(ctx context.Context, transferID id.ID, reason string) error {
	return s.updateState(ctx, transferID, StatusCancelled, reason)
}

func (s *Service) updateState(ctx context.Context, transferID id.ID, to Status, reason string) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetByIDForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if err := t.transition(to); err != nil {
			return err
		}
		t.CancelReason = reason
		return s.repo.UpdateStatus(ctx, t)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "transfer state changed", "id", transferID, "status", to)
	return nil
}

// Complete executes the movement: re-validates every source batch, decrements
// sources, credits the destination, and marks the document completed, all in
// one transaction. Any failure rolls the whole document back.
func (s *Service) Complete(ctx context.Context, transferID id.ID) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetByIDForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if err := t.transition(StatusCompleted); err != nil {
			return err
		}

		lines, err := s.repo.GetLines(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		t.Lines = lines

		for i := range t.Lines {
			if err := s.completeLine(ctx, t, &t.Lines[i]); err != nil {
				return err
			}
		}

		now := time.Now()
		t.CompletedAt = &now
		if err := s.repo.UpdateStatus(ctx, t); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if t.DestinationType == DestinationWarehouse {
			// persist DestinationBatchID set by completeLine
			if err := s.repo.SaveLines(ctx, t.ID, t.Lines); err != nil {
				return fmt.Errorf("save lines: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "transfer completed", "id", transferID)
	return nil
}

// completeLine moves one line's quantity. Must run inside the transaction.
func (s *Service) completeLine(ctx context.Context, t *Transfer, line *Line) error {
	src, err := s.batches.GetByIDForUpdate(ctx, line.BatchID)
	if err != nil {
		return err
	}

	// The claim was validated at create time, but stock may have been
	// adjusted away since.
	if line.Quantity > src.RemainingQuantity {
		return apperror.NewInsufficientStock(
			src.ProductID.String(),
			line.Quantity.String(),
			src.RemainingQuantity.String(),
		).WithDetail("batch_id", src.ID.String()).
			WithDetail("transfer_id", t.ID.String())
	}

	if err := s.batches.ApplyDelta(ctx, src.ID, line.Quantity.Neg()); err != nil {
		return fmt.Errorf("decrement source: %w", err)
	}

	switch t.DestinationType {
	case DestinationStorefront:
		if err := s.storefronts.UpsertAdd(ctx, *t.DestinationStorefrontID, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("credit storefront: %w", err)
		}
	case DestinationWarehouse:
		// A transfer-in is a receipt: the destination gets its own batch
		// with the transferred quantity as the recorded quantity.
		dst := batch.NewStockBatch(line.ProductID, *t.DestinationWarehouseID, line.Quantity)
		dst.UnitCost = src.UnitCost
		dst.RetailPrice = src.RetailPrice
		dst.WholesalePrice = src.WholesalePrice
		dst.CreatedBy = t.CreatedBy
		if err := s.batches.Create(ctx, dst); err != nil {
			return fmt.Errorf("create destination batch: %w", err)
		}
		line.DestinationBatchID = &dst.ID
	}
	return nil
}

// GetByID retrieves a transfer with lines.
func (s *Service) GetByID(ctx context.Context, transferID id.ID) (*Transfer, error) {
	t, err := s.repo.GetByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	t.Lines = lines
	return t, nil
}

// List returns transfers matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Transfer, int64, error) {
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
