package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stocktally/internal/core/id"
	"stocktally/internal/domain/inventory/transfer"
	"stocktally/internal/infrastructure/http/v1/dto"
	"stocktally/internal/infrastructure/storage/postgres"
)

// TransferHandler handles HTTP requests for transfer documents.
type TransferHandler struct {
	*BaseHandler
	service *transfer.Service
	audit   *postgres.AuditStore
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(base *BaseHandler, service *transfer.Service, audit *postgres.AuditStore) *TransferHandler {
	return &TransferHandler{BaseHandler: base, service: service, audit: audit}
}

// Create opens a pending transfer and claims the source batches.
// POST /transfers
func (h *TransferHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	t, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}
	t.CreatedBy = h.GetUserID(c)

	if err := h.service.Create(ctx, t); err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntityTransfer, t.ID.String(), postgres.AuditActionCreate, t)
	h.Created(c, t)
}

// Get returns one transfer with its lines.
// GET /transfers/:id
func (h *TransferHandler) Get(c *gin.Context) {
	transferID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	t, err := h.service.GetByID(c.Request.Context(), transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// List returns transfers matching the query filter.
// GET /transfers
func (h *TransferHandler) List(c *gin.Context) {
	f := transfer.Filter{
		SourceWarehouseID: h.ParseIDQuery(c, "sourceWarehouseId"),
		Limit:             h.ParseIntQuery(c, "limit", 50),
		Offset:            h.ParseIntQuery(c, "offset", 0),
	}
	if status := c.Query("status"); status != "" {
		st := transfer.Status(status)
		f.Status = &st
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

// Dispatch moves a pending transfer to in_transit.
// POST /transfers/:id/dispatch
func (h *TransferHandler) Dispatch(c *gin.Context) {
	h.transition(c, postgres.AuditActionDispatch, h.service.Dispatch)
}

// Complete applies the stock movement and closes the transfer.
// POST /transfers/:id/complete
func (h *TransferHandler) Complete(c *gin.Context) {
	h.transition(c, postgres.AuditActionComplete, h.service.Complete)
}

// Cancel voids a non-terminal transfer and releases its claims.
// POST /transfers/:id/cancel
func (h *TransferHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()

	transferID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.CancelTransferRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.Cancel(ctx, transferID, req.Reason); err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntityTransfer, transferID.String(), postgres.AuditActionCancel, req)
	h.Success(c, "transfer cancelled")
}

func (h *TransferHandler) transition(c *gin.Context, action string, fn func(ctx context.Context, transferID id.ID) error) {
	ctx := c.Request.Context()

	transferID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	if err := fn(ctx, transferID); err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntityTransfer, transferID.String(), action, nil)

	t, err := h.service.GetByID(ctx, transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// RegisterRoutes registers transfer routes.
func (h *TransferHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/dispatch", h.Dispatch)
	rg.POST("/:id/complete", h.Complete)
	rg.POST("/:id/cancel", h.Cancel)
}
