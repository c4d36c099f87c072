package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stocktally/internal/core/id"
	"stocktally/internal/domain/sales"
	"stocktally/internal/infrastructure/http/v1/dto"
	"stocktally/internal/infrastructure/storage/postgres"
)

// SaleHandler handles HTTP requests for sale orders (carts).
type SaleHandler struct {
	*BaseHandler
	service *sales.Service
	audit   *postgres.AuditStore
}

// NewSaleHandler creates a new sale handler.
func NewSaleHandler(base *BaseHandler, service *sales.Service, audit *postgres.AuditStore) *SaleHandler {
	return &SaleHandler{BaseHandler: base, service: service, audit: audit}
}

// Create opens a draft sale at a storefront.
// POST /sales
func (h *SaleHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.service.CreateDraft(ctx, id.MustParse(req.StorefrontID))
	if err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntitySale, sale.ID.String(), postgres.AuditActionCreate, sale)
	h.Created(c, sale)
}

// Get returns a sale with its lines.
// GET /sales/:id
func (h *SaleHandler) Get(c *gin.Context) {
	saleID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	sale, err := h.service.GetByID(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sale)
}

// List returns sales filtered by storefront and status.
// GET /sales
func (h *SaleHandler) List(c *gin.Context) {
	f := sales.Filter{
		StorefrontID: h.ParseIDQuery(c, "storefrontId"),
		Limit:        h.ParseIntQuery(c, "limit", 50),
		Offset:       h.ParseIntQuery(c, "offset", 0),
	}
	if s := c.Query("status"); s != "" {
		status := sales.Status(s)
		f.Status = &status
	}

	items, total, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: items, TotalCount: total, Limit: f.Limit, Offset: f.Offset})
}

// AddLine adds a product to a draft sale and places the storefront hold.
// POST /sales/:id/lines
func (h *SaleHandler) AddLine(c *gin.Context) {
	ctx := c.Request.Context()

	saleID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.AddSaleLineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	line, err := h.service.AddLine(ctx, saleID, id.MustParse(req.ProductID), req.Quantity, req.UnitPrice)
	if err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntitySale, saleID.String(), "add_line", line)
	h.Created(c, line)
}

// RemoveLine drops a line from a draft sale and releases its hold.
// DELETE /sales/:id/lines/:lineId
func (h *SaleHandler) RemoveLine(c *gin.Context) {
	saleID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}

	if err := h.service.RemoveLine(c.Request.Context(), saleID, lineID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Complete finalizes a draft sale, committing every hold.
// POST /sales/:id/complete
func (h *SaleHandler) Complete(c *gin.Context) {
	h.transition(c, postgres.AuditActionComplete, h.service.Complete)
}

// Cancel voids a draft sale, releasing every hold.
// POST /sales/:id/cancel
func (h *SaleHandler) Cancel(c *gin.Context) {
	h.transition(c, postgres.AuditActionCancel, h.service.Cancel)
}

func (h *SaleHandler) transition(c *gin.Context, action string, fn func(ctx context.Context, saleID id.ID) error) {
	ctx := c.Request.Context()

	saleID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := fn(ctx, saleID); err != nil {
		h.Error(c, err)
		return
	}

	sale, err := h.service.GetByID(ctx, saleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntitySale, saleID.String(), action, sale)
	h.OK(c, sale)
}

// RegisterRoutes registers sale routes.
func (h *SaleHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/lines", h.AddLine)
	rg.DELETE("/:id/lines/:lineId", h.RemoveLine)
	rg.POST("/:id/complete", h.Complete)
	rg.POST("/:id/cancel", h.Cancel)
}
