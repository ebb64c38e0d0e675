package domain

import (
	"context"
	"errors"
	"fmt"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderAlreadyExists     = errors.New("order already exists")
	ErrInvalidOrder           = errors.New("invalid order")
	ErrIllegalTransition      = errors.New("illegal order state transition")
	ErrUnknownTransition      = errors.New("unknown order transition")
	ErrConcurrentModification = errors.New("order was modified concurrently")
)

// OrderRepository persiste el pedido y sus mensajes del outbox en la misma transacción.
type OrderRepository interface {
	Create(ctx context.Context, o *Order, msgs []sharedDomain.OutboxMessage) error
	Update(ctx context.Context, o *Order, msgs []sharedDomain.OutboxMessage) error
	Delete(ctx context.Context, orderNumber string, msgs []sharedDomain.OutboxMessage) error
	GetByNumber(ctx context.Context, orderNumber string) (*Order, error)
}

func OrderCacheKeyByNumber(orderNumber string) string {
	return fmt.Sprintf("order:number:%s", orderNumber)
}
