// Package security provides authorization scope and tenant policy evaluation.
package security

import (
	"context"

	appctx "stocktally/internal/core/context"
	"stocktally/internal/core/apperror"
)

// Role defines a set of permissions.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
	RoleViewer  Role = "viewer"
)

// AccessScope defines the boundaries of data visibility for the current request.
// The tenant resolver (auth middleware) builds it from JWT claims; the inventory
// core trusts the storefront set and applies no further authorization logic.
type AccessScope struct {
	// TenantID is the current tenant (from request/JWT).
	TenantID string

	// UserID is the authenticated user.
	UserID string

	// StorefrontIDs the caller is permitted to operate on.
	StorefrontIDs []string

	// IsAdmin bypasses the per-storefront grant.
	IsAdmin bool
}

// ScopeFromContext builds an AccessScope from the actor in context.
func ScopeFromContext(ctx context.Context) *AccessScope {
	a := appctx.GetActor(ctx)
	if a == nil {
		return nil
	}
	return &AccessScope{
		TenantID:      a.TenantID,
		UserID:        a.UserID,
		StorefrontIDs: a.StorefrontIDs,
		IsAdmin:       a.IsAdmin,
	}
}

// AllowsStorefront reports whether the scope permits the given storefront.
func (s *AccessScope) AllowsStorefront(storefrontID string) bool {
	if s == nil {
		return false
	}
	if s.IsAdmin {
		return true
	}
	for _, id := range s.StorefrontIDs {
		if id == storefrontID {
			return true
		}
	}
	return false
}

// RequireStorefront returns a Forbidden error when the scope does not permit
// the storefront.
func RequireStorefront(ctx context.Context, storefrontID string) error {
	scope := ScopeFromContext(ctx)
	if scope == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	if !scope.AllowsStorefront(storefrontID) {
		return apperror.NewForbidden("no access to storefront").
			WithDetail("storefront_id", storefrontID)
	}
	return nil
}
