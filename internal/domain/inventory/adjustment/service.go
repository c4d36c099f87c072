package adjustment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/security"
	"stocktally/internal/core/tenant"
	"stocktally/internal/core/tx"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/batch"
	"stocktally/pkg/logger"
	"stocktally/pkg/numerator"
)

// NumeratorStrategy for adjustment references. Strict keeps the ledger gap-free.
const NumeratorStrategy = numerator.StrategyStrict

// Service applies adjustments to stock batches.
// In Database-per-Tenant architecture, TxManager is obtained from context.
type Service struct {
	repo      Repository
	batches   batch.Repository
	numerator *numerator.Service
	txManager tx.Manager // Optional. If nil, obtained from context (DB-per-tenant).

	// compiled tenant policies, keyed by expression
	policies sync.Map
}

// NewService creates a new adjustment service.
func NewService(repo Repository, batches batch.Repository, num *numerator.Service, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		batches:   batches,
		numerator: num,
		txManager: txManager,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// policyFor returns the tenant's compiled mutation policy.
func (s *Service) policyFor(ctx context.Context) (*security.MutationPolicy, error) {
	expr := security.DefaultPolicyExpr
	if t := tenant.GetTenant(ctx); t != nil {
		expr = t.SettingString(tenant.SettingMutationPolicy, security.DefaultPolicyExpr)
	}
	if cached, ok := s.policies.Load(expr); ok {
		return cached.(*security.MutationPolicy), nil
	}
	p, err := security.CompileMutationPolicy(expr)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("policy", expr)
	}
	s.policies.Store(expr, p)
	return p, nil
}

// Apply validates an adjustment against the tenant policy and the batch
// balance, then appends it to the ledger and moves the batch remaining
// quantity, all in one transaction under a row lock.
func (s *Service) Apply(ctx context.Context, a *Adjustment) error {
	if id.IsNil(a.ID) {
		a.ID = id.New()
	}
	now := time.Now()
	if a.OccurredAt.IsZero() {
		a.OccurredAt = now
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	// The entry and the batch mutation land together, so it is born completed.
	a.Status = StatusCompleted

	if err := a.Validate(ctx); err != nil {
		return err
	}

	policy, err := s.policyFor(ctx)
	if err != nil {
		return err
	}
	backdated := a.OccurredAt.Before(now.Truncate(24 * time.Hour))
	if err := policy.Check(string(a.Kind), a.Quantity.Float64(), backdated); err != nil {
		return err
	}

	if a.Reference == "" {
		cfg := numerator.DefaultConfig("ADJ")
		ref, err := s.numerator.GetNextNumber(ctx, cfg, &numerator.Options{Strategy: NumeratorStrategy}, now)
		if err != nil {
			return fmt.Errorf("generate reference: %w", err)
		}
		a.Reference = ref
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.applyLocked(ctx, a)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "adjustment applied",
		"id", a.ID,
		"batch_id", a.BatchID,
		"kind", a.Kind,
		"quantity", a.Quantity.String(),
		"reference", a.Reference,
	)
	return nil
}

// applyLocked performs the lock-validate-mutate-append sequence.
// Must run inside a transaction.
func (s *Service) applyLocked(ctx context.Context, a *Adjustment) error {
	b, err := s.batches.GetByIDForUpdate(ctx, a.BatchID)
	if err != nil {
		return err
	}

	next := b.RemainingQuantity + a.Quantity
	if next.IsNegative() {
		return apperror.NewWouldGoNegative(
			b.ID.String(),
			a.Quantity.String(),
			b.RemainingQuantity.String(),
		)
	}

	if err := s.batches.ApplyDelta(ctx, b.ID, a.Quantity); err != nil {
		return fmt.Errorf("apply delta: %w", err)
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ApplyTransferPair records a legacy transfer as two transfer_leg entries
// sharing one reference: a negative leg on the source batch and a positive
// leg on the destination batch, atomically. Used by the history backfill.
func (s *Service) ApplyTransferPair(ctx context.Context, sourceBatchID, destBatchID id.ID, qty types.Quantity, reference string, occurredAt time.Time) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("transfer quantity must be positive")
	}
	if reference == "" {
		return apperror.NewValidation("paired legs need a shared reference")
	}

	now := time.Now()
	out := &Adjustment{
		ID:         id.New(),
		BatchID:    sourceBatchID,
		Kind:       KindTransferLeg,
		Status:     StatusCompleted,
		Quantity:   qty.Neg(),
		Reference:  reference,
		OccurredAt: occurredAt,
		CreatedAt:  now,
	}
	in := &Adjustment{
		ID:         id.New(),
		BatchID:    destBatchID,
		Kind:       KindTransferLeg,
		Status:     StatusCompleted,
		Quantity:   qty,
		Reference:  reference,
		OccurredAt: occurredAt,
		CreatedAt:  now,
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.applyLocked(ctx, out); err != nil {
			return err
		}
		return s.applyLocked(ctx, in)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "paired transfer legs applied",
		"reference", reference,
		"source_batch_id", sourceBatchID,
		"dest_batch_id", destBatchID,
		"quantity", qty.String(),
	)
	return nil
}

// GetByID retrieves a ledger entry.
func (s *Service) GetByID(ctx context.Context, adjustmentID id.ID) (*Adjustment, error) {
	return s.repo.GetByID(ctx, adjustmentID)
}

// List returns ledger entries matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Adjustment, int64, error) {
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

// ListByReference returns all entries sharing a reference.
func (s *Service) ListByReference(ctx context.Context, reference string) ([]Adjustment, error) {
	return s.repo.ListByReference(ctx, reference)
}
