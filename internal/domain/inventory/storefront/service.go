package storefront

import (
	"context"

	"stocktally/internal/core/id"
	"stocktally/internal/core/security"
	"stocktally/internal/core/types"
)

// Service provides read operations over storefront inventory.
// Mutations happen inside transfer completion and reservation commit.
type Service struct {
	repo Repository
}

// NewService creates a new storefront inventory service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the position for storefront+product (zero row when absent).
func (s *Service) Get(ctx context.Context, storefrontID, productID id.ID) (*Inventory, error) {
	if err := security.RequireStorefront(ctx, storefrontID.String()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, storefrontID, productID)
}

// ListByStorefront returns all positions at a storefront.
func (s *Service) ListByStorefront(ctx context.Context, storefrontID id.ID) ([]Inventory, error) {
	if err := security.RequireStorefront(ctx, storefrontID.String()); err != nil {
		return nil, err
	}
	return s.repo.ListByStorefront(ctx, storefrontID)
}

// OnHand returns total on_hand for a product across storefronts.
func (s *Service) OnHand(ctx context.Context, storefrontIDs []id.ID, productID id.ID) (types.Quantity, error) {
	return s.repo.SumOnHand(ctx, storefrontIDs, productID)
}
