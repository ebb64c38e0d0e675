package http

import (
	"github.com/gin-gonic/gin"

	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
)

func RegisterOrderRoutes(r gin.IRouter, handler *OrderHandler) {
	orders := r.Group("/orders")
	{
		orders.POST("", handler.CreateOrder)
		orders.GET("/:orderNumber", handler.GetOrder)
		orders.DELETE("/:orderNumber", handler.DeleteOrder)
		orders.POST("/:orderNumber/confirm", handler.Transition(orderDomain.TransitionConfirm))
		orders.POST("/:orderNumber/cancel", handler.Transition(orderDomain.TransitionCancel))
	}
}
