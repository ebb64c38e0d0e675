package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/hexadelivery/internal/delivery/application"
	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedQuery "github.com/davicafu/hexadelivery/internal/shared/infra/platform/query"
	"github.com/davicafu/hexadelivery/pkg/utils"
)

// deliveryErrors traduce los errores del dominio de entregas a códigos HTTP.
var deliveryErrors = utils.ErrorMap{
	{Err: deliveryDomain.ErrInvalidDelivery, Status: http.StatusBadRequest},
	{Err: deliveryDomain.ErrUnknownTransition, Status: http.StatusBadRequest},
	{Err: deliveryDomain.ErrDeliveryNotFound, Status: http.StatusNotFound},
	{Err: deliveryDomain.ErrDeliveryAlreadyExists, Status: http.StatusConflict},
	{Err: deliveryDomain.ErrIllegalTransition, Status: http.StatusConflict},
	{Err: deliveryDomain.ErrConcurrentModification, Status: http.StatusConflict},
}

// DeliveryHandler encapsula los endpoints HTTP de entregas.
type DeliveryHandler struct {
	service *application.DeliveryService
}

func NewDeliveryHandler(service *application.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{service: service}
}

type addressRequest struct {
	Street     string `json:"street" binding:"required"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

// CreateDelivery endpoint POST /deliveries
func (h *DeliveryHandler) CreateDelivery(c *gin.Context) {
	var req struct {
		ID            string         `json:"id"`
		OrderNumber   string         `json:"orderNumber" binding:"required"`
		Address       addressRequest `json:"address" binding:"required"`
		ScheduledDate *time.Time     `json:"scheduledDate"`
		Notes         string         `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	address, err := deliveryDomain.NewAddress(req.Address.Street, req.Address.City, req.Address.State, req.Address.PostalCode, req.Address.Country)
	if err != nil {
		utils.SendDomainError(c, deliveryErrors, err)
		return
	}

	d, err := h.service.CreateDelivery(c.Request.Context(), application.CreateDeliveryCommand{
		ID:            req.ID,
		OrderNumber:   req.OrderNumber,
		Address:       address,
		ScheduledDate: req.ScheduledDate,
		Notes:         req.Notes,
	})
	if err != nil {
		utils.SendDomainError(c, deliveryErrors, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, d)
}

// DeleteDelivery endpoint DELETE /deliveries/:id
func (h *DeliveryHandler) DeleteDelivery(c *gin.Context) {
	if err := h.service.DeleteDelivery(c.Request.Context(), c.Param("id")); err != nil {
		utils.SendDomainError(c, deliveryErrors, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDelivery endpoint GET /deliveries/:id
func (h *DeliveryHandler) GetDelivery(c *gin.Context) {
	d, err := h.service.GetDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendDomainError(c, deliveryErrors, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, d)
}

// ListDeliveries endpoint GET /deliveries con filtros, paginación y ordenamiento
func (h *DeliveryHandler) ListDeliveries(c *gin.Context) {
	var criterias []sharedDomain.Criteria

	// --- Filtros desde query params ---
	if status := c.Query("status"); status != "" {
		s := deliveryDomain.DeliveryStatus(status)
		if !s.IsValid() {
			utils.SendBadRequest(c, "invalid status "+status)
			return
		}
		criterias = append(criterias, deliveryDomain.StatusCriteria{Status: s})
	}
	if orderNumber := c.Query("orderNumber"); orderNumber != "" {
		criterias = append(criterias, deliveryDomain.OrderNumberCriteria{OrderNumber: orderNumber})
	}
	if city := c.Query("city"); city != "" {
		criterias = append(criterias, deliveryDomain.CityCriteria{City: city})
	}

	var criteria sharedDomain.Criteria
	if len(criterias) > 0 {
		criteria = sharedDomain.And(criterias...)
	}

	// --- Sort ---
	sortParam := sharedQuery.Sort{Field: "created_at", Desc: true}
	if sortField := c.Query("sort_field"); sortField != "" {
		sortParam.Field = sortField
		sortParam.Desc = c.Query("sort_desc") == "true"
	}

	// --- Paginación ---
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	pagination := sharedQuery.OffsetPagination{Limit: limit, Offset: offset}.Normalize()

	deliveries, err := h.service.ListDeliveries(c.Request.Context(), criteria, pagination, sortParam)
	if err != nil {
		utils.SendDomainError(c, deliveryErrors, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, deliveries)
}

// Transition devuelve el handler de POST /deliveries/:id/<kind>.
// Sólo schedule lleva cuerpo: {"scheduledDate": "..."}.
func (h *DeliveryHandler) Transition(kind deliveryDomain.Transition) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params deliveryDomain.TransitionParams
		if kind == deliveryDomain.TransitionSchedule {
			var req struct {
				ScheduledDate *time.Time `json:"scheduledDate" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				utils.SendBadRequest(c, err.Error())
				return
			}
			params.ScheduledDate = req.ScheduledDate
		}

		d, err := h.service.PerformTransition(c.Request.Context(), c.Param("id"), kind, params)
		if err != nil {
			utils.SendDomainError(c, deliveryErrors, err)
			return
		}
		utils.SendSuccess(c, http.StatusOK, d)
	}
}

// UpdateNotes endpoint PUT /deliveries/:id/notes
func (h *DeliveryHandler) UpdateNotes(c *gin.Context) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	d, err := h.service.UpdateNotes(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		utils.SendDomainError(c, deliveryErrors, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, d)
}
