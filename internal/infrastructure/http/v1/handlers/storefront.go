package handlers

import (
	"github.com/gin-gonic/gin"

	"stocktally/internal/domain/inventory/reservation"
	"stocktally/internal/domain/inventory/storefront"
)

// StorefrontHandler handles HTTP requests for storefront inventory.
// Availability goes through the reservation service so live holds are
// already netted out of the numbers clients see.
type StorefrontHandler struct {
	*BaseHandler
	inventory    *storefront.Service
	reservations *reservation.Service
}

// NewStorefrontHandler creates a new storefront inventory handler.
func NewStorefrontHandler(base *BaseHandler, inventory *storefront.Service, reservations *reservation.Service) *StorefrontHandler {
	return &StorefrontHandler{BaseHandler: base, inventory: inventory, reservations: reservations}
}

// Availability returns on-hand, reserved and available for one product.
// GET /storefronts/:storefrontId/availability/:productId
func (h *StorefrontHandler) Availability(c *gin.Context) {
	storefrontID, ok := h.ParseID(c, "storefrontId")
	if !ok {
		return
	}
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	avail, err := h.reservations.Availability(c.Request.Context(), storefrontID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, avail)
}

// Inventory lists all positions at a storefront.
// GET /storefronts/:storefrontId/inventory
func (h *StorefrontHandler) Inventory(c *gin.Context) {
	storefrontID, ok := h.ParseID(c, "storefrontId")
	if !ok {
		return
	}

	items, err := h.inventory.ListByStorefront(c.Request.Context(), storefrontID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": items})
}

// RegisterRoutes registers storefront routes.
func (h *StorefrontHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:storefrontId/inventory", h.Inventory)
	rg.GET("/:storefrontId/availability/:productId", h.Availability)
}
