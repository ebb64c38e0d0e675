package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/davicafu/hexadelivery/internal/order/application"
	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	"github.com/davicafu/hexadelivery/pkg/utils"
)

var orderErrors = utils.ErrorMap{
	{Err: orderDomain.ErrInvalidOrder, Status: http.StatusBadRequest},
	{Err: orderDomain.ErrUnknownTransition, Status: http.StatusBadRequest},
	{Err: orderDomain.ErrOrderNotFound, Status: http.StatusNotFound},
	{Err: orderDomain.ErrOrderAlreadyExists, Status: http.StatusConflict},
	{Err: orderDomain.ErrIllegalTransition, Status: http.StatusConflict},
	{Err: orderDomain.ErrConcurrentModification, Status: http.StatusConflict},
}

// OrderHandler encapsula los endpoints HTTP de pedidos.
type OrderHandler struct {
	service *application.OrderService
}

func NewOrderHandler(service *application.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// orderResponse añade el total calculado al pedido.
type orderResponse struct {
	*orderDomain.Order
	Total decimal.Decimal `json:"total"`
}

func toResponse(o *orderDomain.Order) orderResponse {
	return orderResponse{Order: o, Total: o.Total()}
}

// CreateOrder endpoint POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req struct {
		OrderNumber string `json:"orderNumber"`
		CustomerID  string `json:"customerId" binding:"required"`
		Address     struct {
			Street     string `json:"street" binding:"required"`
			City       string `json:"city" binding:"required"`
			PostalCode string `json:"postalCode" binding:"required"`
			Country    string `json:"country" binding:"required"`
		} `json:"address"`
		Items []struct {
			ProductNumber string          `json:"productNumber" binding:"required"`
			Quantity      int             `json:"quantity" binding:"required,gt=0"`
			UnitPrice     decimal.Decimal `json:"unitPrice"`
		} `json:"items" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	items := make([]orderDomain.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orderDomain.Item{ProductNumber: it.ProductNumber, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	o, err := h.service.CreateOrder(c.Request.Context(), application.CreateOrderCommand{
		OrderNumber: req.OrderNumber,
		CustomerID:  req.CustomerID,
		Address: orderDomain.ShippingAddress{
			Street:     req.Address.Street,
			City:       req.Address.City,
			PostalCode: req.Address.PostalCode,
			Country:    req.Address.Country,
		},
		Items: items,
	})
	if err != nil {
		utils.SendDomainError(c, orderErrors, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, toResponse(o))
}

// GetOrder endpoint GET /orders/:orderNumber
func (h *OrderHandler) GetOrder(c *gin.Context) {
	o, err := h.service.GetOrder(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		utils.SendDomainError(c, orderErrors, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, toResponse(o))
}

// DeleteOrder endpoint DELETE /orders/:orderNumber
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	if err := h.service.DeleteOrder(c.Request.Context(), c.Param("orderNumber")); err != nil {
		utils.SendDomainError(c, orderErrors, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Transition devuelve el handler de POST /orders/:orderNumber/<kind>.
func (h *OrderHandler) Transition(kind orderDomain.Transition) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := h.service.PerformTransition(c.Request.Context(), c.Param("orderNumber"), kind)
		if err != nil {
			utils.SendDomainError(c, orderErrors, err)
			return
		}
		utils.SendSuccess(c, http.StatusOK, toResponse(o))
	}
}
