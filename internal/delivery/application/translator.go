package application

import (
	"encoding/json"
	"errors"
	"fmt"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
)

var ErrUnknownEvent = errors.New("unknown delivery event")

// Translate convierte un evento de dominio + la foto actual de la entrega en el contrato
// de integración. Es determinista: occurredAt sale del evento, nunca del reloj.
// Los campos opcionales ausentes se rellenan con sharedEvents.UnknownField (dirección)
// o null (fecha programada). Sin id de negocio no hay aggregate_id: error.
func Translate(evt deliveryDomain.Event, snapshot *deliveryDomain.Delivery) (sharedEvents.Translated, error) {
	if evt.DeliveryID == "" {
		return sharedEvents.Translated{}, sharedDomain.ErrMissingAggregateID
	}
	if snapshot == nil {
		snapshot = &deliveryDomain.Delivery{ID: evt.DeliveryID}
	}

	header := sharedEvents.IntegrationEvent{
		EventType:           string(evt.Kind),
		AggregateBusinessID: evt.DeliveryID,
		OccurredAt:          evt.At.UTC(),
	}
	address := flattenAddress(snapshot.Address)

	var payload interface{}
	switch evt.Kind {
	case deliveryDomain.EventCreated:
		payload = sharedEvents.DeliveryCreated{
			IntegrationEvent: header,
			DeliveryAddress:  address,
			OrderNumber:      sharedEvents.OrDefault(snapshot.OrderNumber),
			Status:           string(evt.Status),
			ScheduledDate:    snapshot.ScheduledDate,
			Notes:            snapshot.Notes,
		}
	case deliveryDomain.EventStatusChanged:
		payload = sharedEvents.DeliveryStatusChanged{
			IntegrationEvent: header,
			DeliveryAddress:  address,
			OrderNumber:      sharedEvents.OrDefault(snapshot.OrderNumber),
			Status:           string(evt.Status),
			ScheduledDate:    snapshot.ScheduledDate,
		}
	case deliveryDomain.EventDeleted:
		payload = sharedEvents.DeliveryDeleted{
			IntegrationEvent: header,
			OrderNumber:      sharedEvents.OrDefault(snapshot.OrderNumber),
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
		AggregateType: sharedEvents.AggregateDelivery,
		EventType:     string(evt.Kind),
		BusinessID:    evt.DeliveryID,
		Payload:       data,
	}, nil
}

func flattenAddress(a deliveryDomain.Address) sharedEvents.DeliveryAddress {
	return sharedEvents.DeliveryAddress{
		Street:     sharedEvents.OrDefault(a.Street),
		City:       sharedEvents.OrDefault(a.City),
		State:      sharedEvents.OrDefault(a.State),
		PostalCode: sharedEvents.OrDefault(a.PostalCode),
		Country:    sharedEvents.OrDefault(a.Country),
	}
}
