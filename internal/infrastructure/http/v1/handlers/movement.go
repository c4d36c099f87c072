package handlers

import (
	"github.com/gin-gonic/gin"

	"stocktally/internal/domain/inventory/movement"
	"stocktally/internal/infrastructure/http/v1/dto"
)

// MovementHandler handles HTTP requests for the merged movement feed.
type MovementHandler struct {
	*BaseHandler
	service *movement.Service
}

// NewMovementHandler creates a new movement feed handler.
func NewMovementHandler(base *BaseHandler, service *movement.Service) *MovementHandler {
	return &MovementHandler{BaseHandler: base, service: service}
}

func (h *MovementHandler) filter(c *gin.Context) movement.Filter {
	f := movement.Filter{
		ProductID:    h.ParseIDQuery(c, "productId"),
		WarehouseID:  h.ParseIDQuery(c, "warehouseId"),
		StorefrontID: h.ParseIDQuery(c, "storefrontId"),
		From:         h.ParseTimeQuery(c, "from"),
		To:           h.ParseTimeQuery(c, "to"),
		Limit:        h.ParseIntQuery(c, "limit", 0),
		Offset:       h.ParseIntQuery(c, "offset", 0),
	}
	if kind := c.Query("kind"); kind != "" {
		k := movement.Kind(kind)
		f.Kind = &k
	}
	return f
}

// List returns the chronological movement feed.
// GET /movements
func (h *MovementHandler) List(c *gin.Context) {
	f := h.filter(c)

	items, total, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: total,
		Limit:      f.Limit,
		Offset:     f.Offset,
	})
}

// Summary returns per-kind aggregates over the filtered feed.
// GET /movements/summary
func (h *MovementHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summarize(c.Request.Context(), h.filter(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// RegisterRoutes registers movement feed routes.
func (h *MovementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/summary", h.Summary)
}
