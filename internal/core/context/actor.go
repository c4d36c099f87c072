// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Actor contains the authenticated caller: who is acting, for which tenant,
// and which storefronts the tenant resolver granted. The inventory core trusts
// this set and applies no further authorization logic.
type Actor struct {
	UserID        string
	TenantID      string
	Email         string
	Roles         []string
	StorefrontIDs []string // Storefronts the caller may sell from
	IsAdmin       bool
	SessionID     string
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.UserID
	}
	return ""
}

// GetTenantID returns tenant ID from context or empty string.
func GetTenantID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.TenantID
	}
	return ""
}

// HasRole checks if the actor has a specific role.
func HasRole(ctx context.Context, role string) bool {
	a := GetActor(ctx)
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasStorefrontAccess checks if the actor may operate on a storefront.
// Admins bypass the per-storefront grant.
func HasStorefrontAccess(ctx context.Context, storefrontID string) bool {
	a := GetActor(ctx)
	if a == nil {
		return false
	}
	if a.IsAdmin {
		return true
	}
	for _, id := range a.StorefrontIDs {
		if id == storefrontID {
			return true
		}
	}
	return false
}
