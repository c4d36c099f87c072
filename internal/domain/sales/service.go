package sales

import (
	"context"
	"fmt"
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/security"
	"stocktally/internal/core/tenant"
	"stocktally/internal/core/tx"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/reservation"
	"stocktally/pkg/logger"
	"stocktally/pkg/numerator"
)

// NumeratorStrategy for sale numbers. Cached: receipts are high-volume.
const NumeratorStrategy = numerator.StrategyCached

// Service drives the cart lifecycle. Every line added to a draft places a
// reservation; completing the cart commits all of them atomically with the
// status change.
// In Database-per-Tenant architecture, TxManager is obtained from context.
type Service struct {
	repo         Repository
	reservations *reservation.Service
	numerator    *numerator.Service
	txManager    tx.Manager // Optional. If nil, obtained from context (DB-per-tenant).
}

// NewService creates a new sales service.
func NewService(repo Repository, reservations *reservation.Service, num *numerator.Service, txManager tx.Manager) *Service {
	return &Service{
		repo:         repo,
		reservations: reservations,
		numerator:    num,
		txManager:    txManager,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// CreateDraft opens a cart at a storefront.
func (s *Service) CreateDraft(ctx context.Context, storefrontID id.ID) (*SaleOrder, error) {
	if err := security.RequireStorefront(ctx, storefrontID.String()); err != nil {
		return nil, err
	}

	sale := NewSaleOrder(storefrontID)
	if err := sale.Validate(ctx); err != nil {
		return nil, err
	}

	cfg := numerator.DefaultConfig("SAL")
	number, err := s.numerator.GetNextNumber(ctx, cfg, &numerator.Options{Strategy: NumeratorStrategy}, time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	sale.Number = number

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sale draft created", "id", sale.ID, "number", sale.Number, "storefront_id", storefrontID)
	return sale, nil
}

// AddLine reserves the quantity and appends the line, atomically. The
// reservation failure (insufficient stock) aborts the line add with no
// partial state.
func (s *Service) AddLine(ctx context.Context, saleID, productID id.ID, qty types.Quantity, unitPrice types.Money) (*SaleLine, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if unitPrice.IsNegative() {
		return nil, apperror.NewValidation("unit price cannot be negative").
			WithDetail("field", "unitPrice")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var line *SaleLine
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		sale, err := s.repo.GetByIDForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if err := sale.CanModify(); err != nil {
			return err
		}

		hold := &reservation.Reservation{
			StorefrontID: sale.StorefrontID,
			ProductID:    productID,
			CartID:       sale.ID,
			Quantity:     qty,
		}
		if err := s.reservations.Create(ctx, hold); err != nil {
			return err
		}

		lines, err := s.repo.GetLines(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		amount := unitPrice.Mul(types.NewMoney(qty.Float64()))
		line = &SaleLine{
			LineID:        id.New(),
			SaleID:        sale.ID,
			LineNo:        len(lines) + 1,
			ProductID:     productID,
			Quantity:      qty,
			UnitPrice:     unitPrice,
			Amount:        amount,
			ReservationID: hold.ID,
		}
		sale.Lines = append(lines, *line)
		sale.RecalculateTotals()

		if err := s.repo.SaveLines(ctx, sale.ID, sale.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return s.repo.Update(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sale line added",
		"sale_id", saleID,
		"product_id", productID,
		"quantity", qty.String(),
		"reservation_id", line.ReservationID,
	)
	return line, nil
}

// RemoveLine drops a line and releases its hold.
func (s *Service) RemoveLine(ctx context.Context, saleID, lineID id.ID) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		sale, err := s.repo.GetByIDForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if err := sale.CanModify(); err != nil {
			return err
		}

		lines, err := s.repo.GetLines(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		var removed *SaleLine
		kept := make([]SaleLine, 0, len(lines))
		for i := range lines {
			if lines[i].LineID == lineID {
				removed = &lines[i]
				continue
			}
			kept = append(kept, lines[i])
		}
		if removed == nil {
			return apperror.NewNotFound("sale_line", lineID)
		}

		if err := s.reservations.Release(ctx, removed.ReservationID); err != nil {
			return err
		}
		if err := s.repo.DeleteLine(ctx, sale.ID, lineID); err != nil {
			return fmt.Errorf("delete line: %w", err)
		}

		sale.Lines = kept
		sale.RecalculateTotals()
		return s.repo.Update(ctx, sale)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "sale line removed", "sale_id", saleID, "line_id", lineID)
	return nil
}

// Complete closes the cart: every line's reservation is committed (on-hand
// decremented, hold consumed) and the sale flips to completed, all in one
// transaction. A dead hold on any line fails the whole completion.
func (s *Service) Complete(ctx context.Context, saleID id.ID) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		sale, err := s.repo.GetByIDForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != StatusDraft {
			return apperror.NewInvalidStateTransition("sale", string(sale.Status), string(StatusCompleted)).
				WithDetail("id", sale.ID.String())
		}

		lines, err := s.repo.GetLines(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		if len(lines) == 0 {
			return apperror.NewValidation("cannot complete an empty sale")
		}

		for _, line := range lines {
			if err := s.reservations.CommitInTx(ctx, line.ReservationID); err != nil {
				return err
			}
		}

		now := time.Now()
		sale.Status = StatusCompleted
		sale.CompletedAt = &now
		sale.UpdatedAt = now
		return s.repo.Update(ctx, sale)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "sale completed", "id", saleID)
	return nil
}

// Cancel abandons the cart, releasing every hold.
func (s *Service) Cancel(ctx context.Context, saleID id.ID) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		sale, err := s.repo.GetByIDForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != StatusDraft {
			return apperror.NewInvalidStateTransition("sale", string(sale.Status), string(StatusCancelled)).
				WithDetail("id", sale.ID.String())
		}

		lines, err := s.repo.GetLines(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		for _, line := range lines {
			// Release is a no-op for already-dead holds.
			if err := s.reservations.Release(ctx, line.ReservationID); err != nil {
				return err
			}
		}

		sale.Status = StatusCancelled
		sale.UpdatedAt = time.Now()
		return s.repo.Update(ctx, sale)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "sale cancelled", "id", saleID)
	return nil
}

// GetByID retrieves a sale with lines.
func (s *Service) GetByID(ctx context.Context, saleID id.ID) (*SaleOrder, error) {
	sale, err := s.repo.GetByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	sale.Lines = lines
	return sale, nil
}

// List returns sales matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]SaleOrder, int64, error) {
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
