package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"

	// --- Importaciones compartidas ---
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
	sharedUtils "github.com/davicafu/hexadelivery/internal/shared/infra/utils"
)

const handleTimeout = 2 * time.Second

// DeliveryCreator es lo único que el consumidor necesita del servicio de entregas.
type DeliveryCreator interface {
	CreateDeliveryFromOrder(ctx context.Context, evt sharedEvents.OrderConfirmed) (*deliveryDomain.Delivery, error)
}

// OrderConfirmedConsumer crea la entrega de cada pedido confirmado.
type OrderConfirmedConsumer struct {
	service DeliveryCreator
	log     *zap.Logger
}

func NewOrderConfirmedConsumer(service DeliveryCreator, logger *zap.Logger) *OrderConfirmedConsumer {
	return &OrderConfirmedConsumer{
		service: service,
		log:     logger,
	}
}

// HandleMessage ignora cualquier evento que no sea OrderConfirmed.
// Un OrderConfirmed repetido no es un error: el id de la entrega se deriva del pedido.
func (c *OrderConfirmedConsumer) HandleMessage(ctx context.Context, key string, payload []byte) error {
	header, err := sharedEvents.Header(payload)
	if err != nil {
		c.log.Warn("Failed to unmarshal integration event", zap.String("key", key), zap.Error(err))
		return err
	}

	if header.EventType != sharedEvents.OrderConfirmedType {
		c.log.Debug("Evento ignorado", zap.String("event_type", header.EventType), zap.String("key", key))
		return nil
	}

	return sharedUtils.UnmarshalAndHandle[sharedEvents.OrderConfirmed](c.log, payload, func(evt sharedEvents.OrderConfirmed) error {
		ctxCreate, cancel := context.WithTimeout(ctx, handleTimeout)
		defer cancel()

		d, err := c.service.CreateDeliveryFromOrder(ctxCreate, evt)
		if errors.Is(err, deliveryDomain.ErrDeliveryAlreadyExists) {
			c.log.Info("Evento 'OrderConfirmed' duplicado ignorado", zap.String("order_number", evt.OrderNumber))
			return nil
		}
		if errors.Is(err, deliveryDomain.ErrInvalidDelivery) {
			// Reintentar no lo arregla: el evento no describe una entrega válida.
			return fmt.Errorf("%w: %w", sharedEvents.ErrMalformedPayload, err)
		}
		if err != nil {
			c.log.Warn("Failed to create delivery from order",
				zap.String("order_number", evt.OrderNumber),
				zap.Error(err),
			)
			return err
		}

		c.log.Info("🚚 Entrega creada desde pedido confirmado",
			zap.String("order_number", evt.OrderNumber),
			zap.String("delivery_id", d.ID),
		)
		return nil
	})
}
