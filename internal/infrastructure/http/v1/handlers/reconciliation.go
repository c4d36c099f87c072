package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/domain/inventory/reconciliation"
)

// ReconciliationHandler handles HTTP requests for reconciliation runs.
type ReconciliationHandler struct {
	*BaseHandler
	service *reconciliation.Service
}

// NewReconciliationHandler creates a new reconciliation handler.
func NewReconciliationHandler(base *BaseHandler, service *reconciliation.Service) *ReconciliationHandler {
	return &ReconciliationHandler{BaseHandler: base, service: service}
}

// Check reconciles one product across a warehouse and a storefront set.
// The report is always computed; with strict=true a non-zero delta comes
// back as a 409 instead of a 200.
// GET /reconciliation?productId=&warehouseId=&storefrontIds=a,b&strict=
func (h *ReconciliationHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	productID := h.ParseIDQuery(c, "productId")
	warehouseID := h.ParseIDQuery(c, "warehouseId")
	if productID == nil || warehouseID == nil {
		h.Error(c, errMissingIDQuery("productId", "warehouseId"))
		return
	}

	var storefrontIDs []id.ID
	if raw := c.Query("storefrontIds"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			parsed, err := id.Parse(strings.TrimSpace(part))
			if err != nil {
				h.Error(c, apperror.NewValidation("invalid storefront id").WithDetail("value", part))
				return
			}
			storefrontIDs = append(storefrontIDs, parsed)
		}
	}

	result, err := h.service.Check(ctx, *productID, *warehouseID, storefrontIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	if !result.Consistent() && c.Query("strict") == "true" {
		h.Error(c, apperror.NewReconciliationMismatch(productID.String(), result.Breakdown()))
		return
	}

	h.OK(c, result)
}

// RegisterRoutes registers reconciliation routes.
func (h *ReconciliationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Check)
}
