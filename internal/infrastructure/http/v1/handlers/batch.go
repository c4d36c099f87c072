package handlers

import (
	"github.com/gin-gonic/gin"

	"stocktally/internal/domain/inventory/batch"
	"stocktally/internal/infrastructure/http/v1/dto"
	"stocktally/internal/infrastructure/storage/postgres"
)

// BatchHandler handles HTTP requests for stock batches.
type BatchHandler struct {
	*BaseHandler
	service *batch.Service
	audit   *postgres.AuditStore
}

// NewBatchHandler creates a new stock batch handler.
func NewBatchHandler(base *BaseHandler, service *batch.Service, audit *postgres.AuditStore) *BatchHandler {
	return &BatchHandler{BaseHandler: base, service: service, audit: audit}
}

// Intake records a receipt of goods.
// POST /batches
func (h *BatchHandler) Intake(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IntakeBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	b := req.ToEntity()
	b.CreatedBy = h.GetUserID(c)

	if err := h.service.Intake(ctx, b); err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntityBatch, b.ID.String(), postgres.AuditActionCreate, b)
	h.Created(c, b)
}

// Get returns one batch.
// GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batchID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// List returns batches matching the query filter.
// GET /batches
func (h *BatchHandler) List(c *gin.Context) {
	f := batch.Filter{
		ProductID:   h.ParseIDQuery(c, "productId"),
		WarehouseID: h.ParseIDQuery(c, "warehouseId"),
		NonEmpty:    c.Query("nonEmpty") == "true",
		Limit:       h.ParseIntQuery(c, "limit", 50),
		Offset:      h.ParseIntQuery(c, "offset", 0),
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

// OnHand returns the warehouse balance for a product.
// GET /batches/on-hand?productId=&warehouseId=
func (h *BatchHandler) OnHand(c *gin.Context) {
	productID := h.ParseIDQuery(c, "productId")
	warehouseID := h.ParseIDQuery(c, "warehouseId")
	if productID == nil || warehouseID == nil {
		h.Error(c, errMissingIDQuery("productId", "warehouseId"))
		return
	}

	total, err := h.service.WarehouseOnHand(c.Request.Context(), *productID, *warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{
		"productId":   productID.String(),
		"warehouseId": warehouseID.String(),
		"onHand":      total,
	})
}

// RegisterRoutes registers stock batch routes.
func (h *BatchHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Intake)
	rg.GET("/on-hand", h.OnHand)
	rg.GET("/:id", h.Get)
}
