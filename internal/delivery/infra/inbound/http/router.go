package http

import (
	"github.com/gin-gonic/gin"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
)

// RegisterDeliveryRoutes registra las rutas HTTP para el dominio de Entregas.
func RegisterDeliveryRoutes(r gin.IRouter, handler *DeliveryHandler) {
	deliveries := r.Group("/deliveries")
	{
		deliveries.POST("", handler.CreateDelivery)
		deliveries.GET("", handler.ListDeliveries)
		deliveries.GET("/:id", handler.GetDelivery)
		deliveries.DELETE("/:id", handler.DeleteDelivery)
		deliveries.PUT("/:id/notes", handler.UpdateNotes)

		// Una ruta por transición de la máquina de estados
		for _, kind := range []deliveryDomain.Transition{
			deliveryDomain.TransitionSchedule,
			deliveryDomain.TransitionConfirm,
			deliveryDomain.TransitionStart,
			deliveryDomain.TransitionComplete,
			deliveryDomain.TransitionCancel,
		} {
			deliveries.POST("/:id/"+string(kind), handler.Transition(kind))
		}
	}
}
