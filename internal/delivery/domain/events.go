package domain

import (
	"time"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
)

type EventKind string

const (
	EventCreated       EventKind = "DeliveryCreated"
	EventStatusChanged EventKind = "DeliveryStatusChanged"
	EventDeleted       EventKind = "DeliveryDeleted"
)

// Event es el evento de dominio de Delivery. Kind hace de discriminador:
// el traductor hace switch sobre él, no sobre tipos concretos.
type Event struct {
	Kind       EventKind
	DeliveryID string
	Status     DeliveryStatus
	At         time.Time
}

func (e Event) EventType() string     { return string(e.Kind) }
func (e Event) AggregateID() string   { return e.DeliveryID }
func (e Event) OccurredAt() time.Time { return e.At }

var _ sharedDomain.DomainEvent = Event{}
