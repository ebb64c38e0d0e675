package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPayload marca un payload que no decodifica. Reintentarlo no sirve de nada.
var ErrMalformedPayload = errors.New("malformed integration event")

// UnknownField sustituye a los campos opcionales que el agregado no tiene informados.
const UnknownField = "unknown"

// IntegrationEvent es la cabecera común de todos los eventos de integración.
// Se embebe en cada contrato para que el JSON quede plano.
type IntegrationEvent struct {
	EventType           string    `json:"eventType"`
	AggregateBusinessID string    `json:"aggregateBusinessId"`
	OccurredAt          time.Time `json:"occurredAt"`
}

// Translated es el resultado de traducir un evento de dominio: lo que se guarda en el outbox.
type Translated struct {
	AggregateType string
	EventType     string
	BusinessID    string
	Payload       []byte
}

func (t Translated) RoutingKey() string {
	return t.AggregateType + "." + t.EventType
}

// Header lee sólo la cabecera de un payload, para enrutar antes de decodificar el contrato completo.
func Header(payload []byte) (IntegrationEvent, error) {
	var h IntegrationEvent
	if err := json.Unmarshal(payload, &h); err != nil {
		return h, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return h, nil
}

// OrDefault devuelve UnknownField si v está vacío.
func OrDefault(v string) string {
	if v == "" {
		return UnknownField
	}
	return v
}
