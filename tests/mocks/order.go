package mocks

import (
	"context"
	"sync"

	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
)

// InMemoryOrderRepo simula OrderRepository con outbox incluido.
type InMemoryOrderRepo struct {
	Orders map[string]orderDomain.Order
	Outbox []sharedDomain.OutboxMessage
	mu     sync.Mutex
}

func NewInMemoryOrderRepo() *InMemoryOrderRepo {
	return &InMemoryOrderRepo{
		Orders: make(map[string]orderDomain.Order),
		Outbox: []sharedDomain.OutboxMessage{},
	}
}

var _ orderDomain.OrderRepository = (*InMemoryOrderRepo)(nil)

func (r *InMemoryOrderRepo) Create(ctx context.Context, o *orderDomain.Order, msgs []sharedDomain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Orders[o.OrderNumber]; ok {
		return orderDomain.ErrOrderAlreadyExists
	}
	r.Orders[o.OrderNumber] = *o
	r.Outbox = append(r.Outbox, msgs...)
	return nil
}

func (r *InMemoryOrderRepo) Update(ctx context.Context, o *orderDomain.Order, msgs []sharedDomain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.Orders[o.OrderNumber]
	if !ok {
		return orderDomain.ErrOrderNotFound
	}
	if stored.Version != o.Version {
		return orderDomain.ErrConcurrentModification
	}
	o.Version++
	r.Orders[o.OrderNumber] = *o
	r.Outbox = append(r.Outbox, msgs...)
	return nil
}

func (r *InMemoryOrderRepo) Delete(ctx context.Context, orderNumber string, msgs []sharedDomain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Orders[orderNumber]; !ok {
		return orderDomain.ErrOrderNotFound
	}
	delete(r.Orders, orderNumber)
	r.Outbox = append(r.Outbox, msgs...)
	return nil
}

func (r *InMemoryOrderRepo) GetByNumber(ctx context.Context, orderNumber string) (*orderDomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.Orders[orderNumber]
	if !ok {
		return nil, orderDomain.ErrOrderNotFound
	}
	o.Items = append([]orderDomain.Item(nil), o.Items...)
	return &o, nil
}
