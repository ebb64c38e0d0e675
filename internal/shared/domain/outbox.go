package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOutboxMessageNotFound   = errors.New("outbox message not found")
	ErrInvalidOutboxMessage    = errors.New("invalid outbox message")
	ErrMissingAggregateID      = errors.New("aggregate business id is required")
	ErrInvalidOutboxTransition = errors.New("invalid outbox status transition")
)

// OutboxStatus es el ciclo de vida de una fila del outbox.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxProcessed  OutboxStatus = "PROCESSED"
	OutboxFailed     OutboxStatus = "FAILED"
)

func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxPending, OutboxProcessing, OutboxProcessed, OutboxFailed:
		return true
	}
	return false
}

// CanTransitionTo indica si el relayer puede mover una fila de s a next.
// PROCESSING -> PENDING es el reclaim de filas colgadas; FAILED -> PENDING el reencolado.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch s {
	case OutboxPending:
		return next == OutboxProcessing
	case OutboxProcessing:
		return next == OutboxProcessed || next == OutboxFailed || next == OutboxPending
	case OutboxFailed:
		return next == OutboxPending
	}
	return false
}

// ResolveUnapplied decide qué significa un UPDATE condicional que no tocó ninguna fila,
// dado el estado que la fila tiene realmente. Repetir una transición ya aplicada
// (o fallar algo ya publicado) es un no-op; cualquier otra cosa es un error.
func ResolveUnapplied(current, target OutboxStatus) error {
	if current == target || current == OutboxProcessed {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidOutboxTransition, current, target)
}

// OutboxMessage es la fila persistida en la tabla outbox.
type OutboxMessage struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       string
	Status        OutboxStatus
	Attempts      int
	CreatedAt     time.Time
	ClaimedAt     *time.Time
	ProcessedAt   *time.Time
	ErrorMessage  *string
}

// NewOutboxMessage prepara un mensaje PENDING listo para insertarse en la transacción del agregado.
func NewOutboxMessage(aggregateType, businessID, eventType string, payload []byte, now time.Time) (OutboxMessage, error) {
	if strings.TrimSpace(businessID) == "" {
		return OutboxMessage{}, ErrMissingAggregateID
	}
	msg := OutboxMessage{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   AggregateUUID(aggregateType, businessID),
		EventType:     eventType,
		Payload:       string(payload),
		Status:        OutboxPending,
		CreatedAt:     now.UTC(),
	}
	if err := msg.Validate(); err != nil {
		return OutboxMessage{}, err
	}
	return msg, nil
}

// Validate se llama antes de cada INSERT: un mensaje inválido aborta la transacción entera.
func (m OutboxMessage) Validate() error {
	switch {
	case m.ID == uuid.Nil:
		return fmt.Errorf("%w: id is required", ErrInvalidOutboxMessage)
	case m.AggregateID == uuid.Nil:
		return ErrMissingAggregateID
	case m.AggregateType == "":
		return fmt.Errorf("%w: aggregate type is required", ErrInvalidOutboxMessage)
	case m.EventType == "":
		return fmt.Errorf("%w: event type is required", ErrInvalidOutboxMessage)
	case m.Payload == "":
		return fmt.Errorf("%w: payload is required", ErrInvalidOutboxMessage)
	}
	return nil
}

// Topic es la routing key {aggregateType}.{eventType}.
func (m OutboxMessage) Topic() string {
	return RoutingKey(m.AggregateType, m.EventType)
}

func RoutingKey(aggregateType, eventType string) string {
	return aggregateType + "." + eventType
}

// AggregateUUID deriva un UUID estable (v5) a partir del id de negocio.
// El espacio de nombres es el tipo de agregado, así "DEL-1" de Delivery y de Order no colisionan.
// Restricción: un id de negocio no se reutiliza nunca dentro del mismo tipo de agregado;
// si se reutiliza, ambos agregados comparten aggregate_id en el outbox.
func AggregateUUID(aggregateType, businessID string) uuid.UUID {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(aggregateType)))
	return uuid.NewSHA1(ns, []byte(businessID))
}

// OutboxStore es el puerto que usa el relayer. El "stage" no está aquí: cada repositorio
// inserta sus mensajes dentro de su propia transacción.
type OutboxStore interface {
	FetchDue(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	ReclaimStuck(ctx context.Context, claimedBefore time.Time) (int64, error)
	RequeueFailed(ctx context.Context, maxAttempts int) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
	Get(ctx context.Context, id uuid.UUID) (OutboxMessage, error)
}
