package domain

import "time"

// DomainEvent es la señal en memoria que devuelve una transición de un agregado.
// Nunca se persiste tal cual: se traduce a un evento de integración antes de ir al outbox.
type DomainEvent interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}
