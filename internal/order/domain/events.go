package domain

import (
	"time"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
)

type EventKind string

const (
	EventCreated   EventKind = "OrderCreated"
	EventConfirmed EventKind = "OrderConfirmed"
	EventCancelled EventKind = "OrderCancelled"
	EventDeleted   EventKind = "OrderDeleted"
)

type Event struct {
	Kind        EventKind
	OrderNumber string
	Status      OrderStatus
	At          time.Time
}

func (e Event) EventType() string     { return string(e.Kind) }
func (e Event) AggregateID() string   { return e.OrderNumber }
func (e Event) OccurredAt() time.Time { return e.At }

var _ sharedDomain.DomainEvent = Event{}
