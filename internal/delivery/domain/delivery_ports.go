package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedQuery "github.com/davicafu/hexadelivery/internal/shared/infra/platform/query"
)

var (
	ErrDeliveryNotFound       = errors.New("delivery not found")
	ErrDeliveryAlreadyExists  = errors.New("delivery already exists")
	ErrInvalidDelivery        = errors.New("invalid delivery")
	ErrIllegalTransition      = errors.New("illegal delivery state transition")
	ErrUnknownTransition      = errors.New("unknown delivery transition")
	ErrConcurrentModification = errors.New("delivery was modified concurrently")
)

// --- Repositorio de Deliveries ---
// Create y Update escriben el agregado y los mensajes del outbox en UNA transacción:
// o quedan visibles ambos o ninguno.
type DeliveryRepository interface {
	Create(ctx context.Context, d *Delivery, msgs []sharedDomain.OutboxMessage) error
	Update(ctx context.Context, d *Delivery, msgs []sharedDomain.OutboxMessage) error
	// Delete borra la entrega y encola msgs en la misma transacción. ErrDeliveryNotFound si no existe.
	Delete(ctx context.Context, id string, msgs []sharedDomain.OutboxMessage) error
	GetByID(ctx context.Context, id string) (*Delivery, error)
	ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*Delivery, error)
}

// StatusChange es una fila de la proyección analítica de cambios de estado.
type StatusChange struct {
	DeliveryID  string
	OrderNumber string
	Status      DeliveryStatus
	OccurredAt  time.Time
}

type StatusCount struct {
	Status DeliveryStatus
	Count  uint64
}

type DeliveryAnalyticsRepository interface {
	LogBatch(ctx context.Context, changes []StatusChange) error
	CountByStatus(ctx context.Context, start, end time.Time) ([]StatusCount, error)
}

func DeliveryCacheKeyByID(id string) string {
	return fmt.Sprintf("delivery:id:%s", id)
}
