package handlers

import (
	"github.com/gin-gonic/gin"

	"stocktally/internal/domain/inventory/reservation"
	"stocktally/internal/infrastructure/http/v1/dto"
	"stocktally/internal/infrastructure/storage/postgres"
)

// ReservationHandler handles HTTP requests for cart reservations.
type ReservationHandler struct {
	*BaseHandler
	service *reservation.Service
	audit   *postgres.AuditStore
}

// NewReservationHandler creates a new reservation handler.
func NewReservationHandler(base *BaseHandler, service *reservation.Service, audit *postgres.AuditStore) *ReservationHandler {
	return &ReservationHandler{BaseHandler: base, service: service, audit: audit}
}

// Create places a hold against storefront availability.
// POST /reservations
func (h *ReservationHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	r := req.ToEntity()
	r.CreatedBy = h.GetUserID(c)

	if err := h.service.Create(ctx, r); err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntityReservation, r.ID.String(), postgres.AuditActionCreate, r)
	h.Created(c, r)
}

// Get returns one reservation.
// GET /reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	reservationID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	r, err := h.service.GetByID(c.Request.Context(), reservationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}

// Release frees a hold. Releasing an already-final reservation is a no-op.
// POST /reservations/:id/release
func (h *ReservationHandler) Release(c *gin.Context) {
	ctx := c.Request.Context()

	reservationID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Release(ctx, reservationID); err != nil {
		h.Error(c, err)
		return
	}

	_ = h.audit.Record(ctx, postgres.AuditEntityReservation, reservationID.String(), postgres.AuditActionRelease, nil)
	h.Success(c, "reservation released")
}

// RegisterRoutes registers reservation routes.
func (h *ReservationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/release", h.Release)
}
