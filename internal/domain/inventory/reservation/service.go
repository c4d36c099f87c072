package reservation

import (
	"context"
	"fmt"
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/security"
	"stocktally/internal/core/tenant"
	"stocktally/internal/core/tx"
	"stocktally/internal/domain/inventory/storefront"
	"stocktally/pkg/logger"
)

// OrphanPolicy selects handling of holds whose cart disappeared.
type OrphanPolicy string

const (
	// OrphanPolicyBlock keeps orphaned holds counting until they expire.
	OrphanPolicyBlock OrphanPolicy = "block"
	// OrphanPolicyAutoRelease releases orphaned holds during the sweep.
	OrphanPolicyAutoRelease OrphanPolicy = "auto-release"
)

// Service manages reservation lifecycle against storefront inventory.
// In Database-per-Tenant architecture, TxManager is obtained from context.
type Service struct {
	repo        Repository
	storefronts storefront.Repository
	txManager   tx.Manager // Optional. If nil, obtained from context (DB-per-tenant).

	// defaults when the tenant carries no settings
	defaultTTL    time.Duration
	defaultOrphan OrphanPolicy
}

// NewService creates a new reservation service.
func NewService(repo Repository, storefronts storefront.Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:          repo,
		storefronts:   storefronts,
		txManager:     txManager,
		defaultTTL:    DefaultTTL,
		defaultOrphan: OrphanPolicyBlock,
	}
}

// WithDefaults overrides the process-wide TTL and orphan policy defaults
// (tenant settings still win).
func (s *Service) WithDefaults(ttl time.Duration, orphan OrphanPolicy) *Service {
	if ttl > 0 {
		s.defaultTTL = ttl
	}
	if orphan != "" {
		s.defaultOrphan = orphan
	}
	return s
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

func (s *Service) ttl(ctx context.Context) time.Duration {
	if t := tenant.GetTenant(ctx); t != nil {
		if minutes := t.SettingInt(tenant.SettingReservationTTLMinutes, 0); minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return s.defaultTTL
}

func (s *Service) orphanPolicy(ctx context.Context) OrphanPolicy {
	if t := tenant.GetTenant(ctx); t != nil {
		switch OrphanPolicy(t.SettingString(tenant.SettingOrphanPolicy, "")) {
		case OrphanPolicyBlock:
			return OrphanPolicyBlock
		case OrphanPolicyAutoRelease:
			return OrphanPolicyAutoRelease
		}
	}
	return s.defaultOrphan
}

// Create places a hold. The check-then-insert runs under the storefront
// inventory row lock, so N concurrent requests for the last units serialize
// and only as many as fit succeed.
func (s *Service) Create(ctx context.Context, r *Reservation) error {
	if id.IsNil(r.ID) {
		r.ID = id.New()
	}
	if err := r.Validate(ctx); err != nil {
		return err
	}
	if err := security.RequireStorefront(ctx, r.StorefrontID.String()); err != nil {
		return err
	}

	now := time.Now()
	r.Status = StatusActive
	r.CreatedAt = now
	if r.ExpiresAt.IsZero() {
		r.ExpiresAt = now.Add(s.ttl(ctx))
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		inv, err := s.storefronts.GetForUpdate(ctx, r.StorefrontID, r.ProductID)
		if err != nil {
			return err
		}
		reserved, err := s.repo.SumActive(ctx, r.StorefrontID, r.ProductID, now)
		if err != nil {
			return fmt.Errorf("sum active holds: %w", err)
		}

		available := inv.OnHand - reserved
		if r.Quantity > available {
			return apperror.NewInsufficientStock(
				r.ProductID.String(),
				r.Quantity.String(),
				available.String(),
			).WithDetail("storefront_id", r.StorefrontID.String())
		}

		if err := s.repo.Create(ctx, r); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "reservation created",
		"id", r.ID,
		"storefront_id", r.StorefrontID,
		"product_id", r.ProductID,
		"cart_id", r.CartID,
		"quantity", r.Quantity.String(),
		"expires_at", r.ExpiresAt,
	)
	return nil
}

// Release frees a hold. Releasing a reservation that is already released,
// expired or committed is a no-op: abandon flows retry freely.
func (s *Service) Release(ctx context.Context, reservationID id.ID) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	var released bool
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetByIDForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != StatusActive {
			return nil
		}
		released = true
		return s.repo.SetStatus(ctx, r.ID, StatusReleased, time.Now())
	})
	if err != nil {
		return err
	}
	if released {
		logger.Info(ctx, "reservation released", "id", reservationID)
	}
	return nil
}

// Commit consumes a hold at sale completion: the storefront on-hand drops by
// the reserved quantity and the reservation leaves the active set, atomically.
// Only a live (active, unexpired) reservation can be committed.
func (s *Service) Commit(ctx context.Context, reservationID id.ID) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.commitLocked(ctx, reservationID)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "reservation committed", "id", reservationID)
	return nil
}

// commitLocked performs the commit inside an existing transaction. The sales
// service calls this for each cart line within its own transaction.
func (s *Service) commitLocked(ctx context.Context, reservationID id.ID) error {
	now := time.Now()
	r, err := s.repo.GetByIDForUpdate(ctx, reservationID)
	if err != nil {
		return err
	}
	if !r.IsActive(now) {
		from := string(r.Status)
		if r.Status == StatusActive {
			from = string(StatusExpired)
		}
		return apperror.NewInvalidStateTransition("reservation", from, string(StatusCommitted)).
			WithDetail("id", r.ID.String())
	}

	if _, err := s.storefronts.GetForUpdate(ctx, r.StorefrontID, r.ProductID); err != nil {
		return err
	}
	if err := s.storefronts.Deduct(ctx, r.StorefrontID, r.ProductID, r.Quantity); err != nil {
		return fmt.Errorf("deduct on-hand: %w", err)
	}
	return s.repo.SetStatus(ctx, r.ID, StatusCommitted, now)
}

// CommitInTx is commitLocked exposed for services composing a larger
// transaction (sale completion commits every line's hold in one tx).
func (s *Service) CommitInTx(ctx context.Context, reservationID id.ID) error {
	return s.commitLocked(ctx, reservationID)
}

// Availability returns the read-time position: on-hand, reserved and
// available-to-promise. Expired-but-unswept holds do not count.
func (s *Service) Availability(ctx context.Context, storefrontID, productID id.ID) (*storefront.Availability, error) {
	if err := security.RequireStorefront(ctx, storefrontID.String()); err != nil {
		return nil, err
	}

	inv, err := s.storefronts.Get(ctx, storefrontID, productID)
	if err != nil {
		return nil, err
	}
	reserved, err := s.repo.SumActive(ctx, storefrontID, productID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("sum active holds: %w", err)
	}

	return &storefront.Availability{
		StorefrontID: storefrontID,
		ProductID:    productID,
		OnHand:       inv.OnHand,
		Reserved:     reserved,
		Available:    inv.OnHand - reserved,
	}, nil
}

// SweepResult reports one expiry sweep.
type SweepResult struct {
	Expired  int64 `json:"expired"`
	Orphaned int64 `json:"orphaned"`
}

// ExpireSweep flips past-expiry holds to expired and, when the tenant policy
// is auto-release, frees holds whose cart is gone. The sweep is hygiene, not
// correctness: availability reads never count dead holds regardless.
func (s *Service) ExpireSweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := time.Now()

	expired, err := s.repo.MarkExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("mark expired: %w", err)
	}
	result.Expired = expired

	if s.orphanPolicy(ctx) == OrphanPolicyAutoRelease {
		orphaned, err := s.repo.ReleaseOrphaned(ctx, now)
		if err != nil {
			return result, fmt.Errorf("release orphaned: %w", err)
		}
		result.Orphaned = orphaned
	}

	if result.Expired > 0 || result.Orphaned > 0 {
		logger.Info(ctx, "reservation sweep",
			"expired", result.Expired,
			"orphaned", result.Orphaned,
		)
	}
	return result, nil
}

// GetByID retrieves a reservation.
func (s *Service) GetByID(ctx context.Context, reservationID id.ID) (*Reservation, error) {
	return s.repo.GetByID(ctx, reservationID)
}
