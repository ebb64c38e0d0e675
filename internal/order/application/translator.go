package application

import (
	"encoding/json"
	"errors"
	"fmt"

	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
)

var ErrUnknownEvent = errors.New("unknown order event")

// Translate produce el contrato de integración de un evento de pedido.
// OrderConfirmed lleva dirección y líneas: es lo que consume el servicio de entregas.
func Translate(evt orderDomain.Event, snapshot *orderDomain.Order) (sharedEvents.Translated, error) {
	if evt.OrderNumber == "" {
		return sharedEvents.Translated{}, sharedDomain.ErrMissingAggregateID
	}
	if snapshot == nil {
		snapshot = &orderDomain.Order{OrderNumber: evt.OrderNumber}
	}

	header := sharedEvents.IntegrationEvent{
		EventType:           string(evt.Kind),
		AggregateBusinessID: evt.OrderNumber,
		OccurredAt:          evt.At.UTC(),
	}

	var payload interface{}
	switch evt.Kind {
	case orderDomain.EventCreated:
		payload = sharedEvents.OrderCreated{
			IntegrationEvent: header,
			OrderNumber:      evt.OrderNumber,
			CustomerID:       sharedEvents.OrDefault(snapshot.CustomerID),
			Status:           string(evt.Status),
			Total:            snapshot.Total(),
		}
	case orderDomain.EventConfirmed:
		items := make([]sharedEvents.OrderItem, 0, len(snapshot.Items))
		for _, it := range snapshot.Items {
			items = append(items, sharedEvents.OrderItem{
				ProductNumber: it.ProductNumber,
				Quantity:      it.Quantity,
				UnitPrice:     it.UnitPrice,
			})
		}
		payload = sharedEvents.OrderConfirmed{
			IntegrationEvent: header,
			OrderAddress: sharedEvents.OrderAddress{
				Street:     sharedEvents.OrDefault(snapshot.Address.Street),
				City:       sharedEvents.OrDefault(snapshot.Address.City),
				PostalCode: sharedEvents.OrDefault(snapshot.Address.PostalCode),
				Country:    sharedEvents.OrDefault(snapshot.Address.Country),
			},
			OrderNumber: evt.OrderNumber,
			CustomerID:  sharedEvents.OrDefault(snapshot.CustomerID),
			ConfirmedAt: evt.At.UTC(),
			Items:       items,
			Total:       snapshot.Total(),
		}
	case orderDomain.EventCancelled:
		payload = sharedEvents.OrderCancelled{
			IntegrationEvent: header,
			OrderNumber:      evt.OrderNumber,
			Status:           string(evt.Status),
		}
	case orderDomain.EventDeleted:
		payload = sharedEvents.OrderDeleted{
			IntegrationEvent: header,
			OrderNumber:      evt.OrderNumber,
			Status:           string(evt.Status),
		}
	default:
		return sharedEvents.Translated{}, fmt.Errorf("%w: %q", ErrUnknownEvent, evt.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return sharedEvents.Translated{}, fmt.Errorf("failed to marshal %s: %w", evt.Kind, err)
	}
	return sharedEvents.Translated{
		AggregateType: sharedEvents.AggregateOrder,
		EventType:     string(evt.Kind),
		BusinessID:    evt.OrderNumber,
		Payload:       data,
	}, nil
}
