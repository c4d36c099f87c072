package handlers

import (
	"github.com/gin-gonic/gin"

	"stocktally/internal/domain/inventory/adjustment"
	"stocktally/internal/infrastructure/http/v1/dto"
	"stocktally/internal/infrastructure/storage/postgres"
)

// AdjustmentHandler handles HTTP requests for the adjustment ledger.
type AdjustmentHandler struct {
	*BaseHandler
	service *adjustment.Service
	audit   *postgres.AuditStore
}

// NewAdjustmentHandler creates a new adjustment handler.
func NewAdjustmentHandler(base *BaseHandler, service *adjustment.Service, audit *postgres.AuditStore) *AdjustmentHandler {
	return &AdjustmentHandler{BaseHandler: base, service: service, audit: audit}
}

// Apply appends a ledger entry and moves the batch balance.
// POST /adjustments
func (h *AdjustmentHandler) Apply(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateAdjustmentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	a := req.ToEntity()
	a.CreatedBy = h.GetUserID(c)

	if err := h.service.Apply(ctx, a); err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntityAdjustment, a.ID.String(), postgres.AuditActionApply, a)
	h.Created(c, a)
}

// Get returns one ledger entry.
// GET /adjustments/:id
func (h *AdjustmentHandler) Get(c *gin.Context) {
	adjustmentID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.GetByID(c.Request.Context(), adjustmentID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// List returns ledger entries matching the query filter.
// GET /adjustments
func (h *AdjustmentHandler) List(c *gin.Context) {
	f := adjustment.Filter{
		BatchID:   h.ParseIDQuery(c, "batchId"),
		ProductID: h.ParseIDQuery(c, "productId"),
		Reference: c.Query("reference"),
		Limit:     h.ParseIntQuery(c, "limit", 50),
		Offset:    h.ParseIntQuery(c, "offset", 0),
	}
	if kind := c.Query("kind"); kind != "" {
		k := adjustment.Kind(kind)
		f.Kind = &k
	}

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

// RegisterRoutes registers adjustment routes.
func (h *AdjustmentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Apply)
	rg.GET("/:id", h.Get)
}
