package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedQuery "github.com/davicafu/hexadelivery/internal/shared/infra/platform/query"
)

// InMemoryDeliveryRepo simula DeliveryRepository con outbox incluido.
// Guarda copias: lo que devuelve GetByID no comparte memoria con lo almacenado,
// igual que una base de datos real.
type InMemoryDeliveryRepo struct {
	Deliveries map[string]deliveryDomain.Delivery
	Outbox     []sharedDomain.OutboxMessage
	// FailWrites, si no es nil, hace fallar la siguiente escritura sin guardar nada (rollback).
	FailWrites error
	mu         sync.Mutex
}

func NewInMemoryDeliveryRepo() *InMemoryDeliveryRepo {
	return &InMemoryDeliveryRepo{
		Deliveries: make(map[string]deliveryDomain.Delivery),
		Outbox:     []sharedDomain.OutboxMessage{},
	}
}

var _ deliveryDomain.DeliveryRepository = (*InMemoryDeliveryRepo)(nil)

func (r *InMemoryDeliveryRepo) Create(ctx context.Context, d *deliveryDomain.Delivery, msgs []sharedDomain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	if _, ok := r.Deliveries[d.ID]; ok {
		return deliveryDomain.ErrDeliveryAlreadyExists
	}
	r.Deliveries[d.ID] = *d
	r.Outbox = append(r.Outbox, msgs...)
	return nil
}

func (r *InMemoryDeliveryRepo) Update(ctx context.Context, d *deliveryDomain.Delivery, msgs []sharedDomain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	stored, ok := r.Deliveries[d.ID]
	if !ok {
		return deliveryDomain.ErrDeliveryNotFound
	}
	if stored.Version != d.Version {
		return deliveryDomain.ErrConcurrentModification
	}
	d.Version++
	r.Deliveries[d.ID] = *d
	r.Outbox = append(r.Outbox, msgs...)
	return nil
}

func (r *InMemoryDeliveryRepo) Delete(ctx context.Context, id string, msgs []sharedDomain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	if _, ok := r.Deliveries[id]; !ok {
		return deliveryDomain.ErrDeliveryNotFound
	}
	delete(r.Deliveries, id)
	r.Outbox = append(r.Outbox, msgs...)
	return nil
}

func (r *InMemoryDeliveryRepo) GetByID(ctx context.Context, id string) (*deliveryDomain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.Deliveries[id]
	if !ok {
		return nil, deliveryDomain.ErrDeliveryNotFound
	}
	return &d, nil
}

func (r *InMemoryDeliveryRepo) ListByCriteria(
	ctx context.Context,
	criteria sharedDomain.Criteria,
	pagination sharedQuery.Pagination,
	sorts sharedQuery.Sort,
) ([]*deliveryDomain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []*deliveryDomain.Delivery
	for _, d := range r.Deliveries {
		d := d
		if criteria == nil || matchDeliveryCriterion(&d, criteria.ToConditions()) {
			list = append(list, &d)
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		return compareDeliveries(list[i], list[j], sorts.Field, sorts.Desc)
	})

	if p, ok := pagination.(sharedQuery.OffsetPagination); ok {
		start := p.Offset
		if start > len(list) {
			return []*deliveryDomain.Delivery{}, nil
		}
		end := start + p.Limit
		if end > len(list) {
			end = len(list)
		}
		return list[start:end], nil
	}
	return list, nil
}

// Snapshot devuelve una copia de la entrega guardada (para asserts).
func (r *InMemoryDeliveryRepo) Snapshot(id string) (deliveryDomain.Delivery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.Deliveries[id]
	return d, ok
}

func (r *InMemoryDeliveryRepo) OutboxLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Outbox)
}

func (r *InMemoryDeliveryRepo) takeFailure() error {
	err := r.FailWrites
	r.FailWrites = nil
	return err
}

func matchDeliveryCriterion(d *deliveryDomain.Delivery, conds []sharedDomain.Criterion) bool {
	for _, cond := range conds {
		val := fmt.Sprintf("%v", cond.Value)
		var match bool
		switch strings.ToLower(cond.Field) {
		case "status":
			match = string(d.Status) == val
		case "order_number":
			match = d.OrderNumber == val
		case "city":
			match = strings.Contains(strings.ToLower(d.Address.City), strings.ToLower(strings.Trim(val, "%")))
		}
		if !match {
			return false
		}
	}
	return true
}

func compareDeliveries(a, b *deliveryDomain.Delivery, field string, desc bool) bool {
	var result bool
	switch strings.ToLower(field) {
	case "status":
		result = a.Status < b.Status
	case "created_at":
		result = a.CreatedAt.Before(b.CreatedAt)
	default:
		result = a.ID < b.ID
	}
	if desc {
		return !result
	}
	return result
}
